package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/teris-io/cli"
	"its-hmny.dev/minicc/pkg/cc"
	"its-hmny.dev/minicc/pkg/x86"
)

var Description = strings.ReplaceAll(`
The minicc compiler translates programs written in a small C subset into x86-64 assembly
(Intel syntax, GNU assembler flavor) following the System V AMD64 calling convention. The
emitted .s file is meant to be handed to an external assembler/linker to produce the final
executable. The source program is passed directly on the command line, not as a file path.
`, "\n", " ")

var Compiler = cli.New(Description).
	// The source program itself, provided as a single argument string
	WithArg(cli.NewArg("source", "The source program to be compiled").WithType(cli.TypeString)).
	// The destination path of the generated assembly listing
	WithArg(cli.NewArg("output", "The compiled assembly output (.s)").WithType(cli.TypeString)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "ERROR: Not enough arguments provided, use --help\n")
		return -1
	}
	source, outPath := args[0], args[1]

	// Instantiate a parser for the source program
	parser := cc.NewParser(strings.NewReader(source))
	// Parses the source content and extracts a typed AST (as a 'cc.Program') from it,
	// with every variable use already resolved to its stack slot.
	program, err := parser.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to complete 'parsing' pass: %s\n", err)
		return -1
	}

	// Instantiate a lowerer to convert the program from the typed AST to abstract x86-64
	lowerer := cc.NewLowerer(program)
	// Lowers the 'cc.Program' to an in-memory/IR representation of its x86-64 counterpart.
	asmProgram, err := lowerer.Lower()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to complete 'lowering' pass: %s\n", err)
		return -1
	}

	// Now, instantiates a code generator for the x86 (compiled) program
	codegen := x86.NewCodeGenerator(asmProgram)
	// Iterates over each instruction and spits out the relative textual representation.
	compiled, err := codegen.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to complete 'codegen' pass: %s\n", err)
		return -1
	}

	output, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to open output file: %s\n", err)
		return -1
	}
	defer output.Close()

	for _, comp := range compiled {
		line := fmt.Sprintf("%s\n", comp)
		if _, err := output.Write([]byte(line)); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Unable to write output file: %s\n", err)
			return -1
		}
	}

	return 0
}

func main() { os.Exit(Compiler.Run(os.Args, os.Stdout)) }
