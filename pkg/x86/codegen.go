package x86

import (
	"errors"
	"fmt"
)

// The fixed directives opening every emitted file: Intel syntax for the GNU
// assembler and the exported entrypoint expected by the C runtime startup.
var Header = []string{".intel_syntax noprefix", ".globl main"}

// ----------------------------------------------------------------------------
// Code Generator

// Takes an 'x86.Program' and spits out its textual assembly counterpart.
//
// The translation can be done without any additional data structure but the program:
// every abstract instruction maps to exactly one output line. Instructions are indented
// by two spaces, label and function declarations are flush-left and end with ':'.
type CodeGenerator struct {
	program Program // The set of instructions to convert to assembly text
}

// Initializes and returns to the caller a brand new 'CodeGenerator' struct.
// Requires that argument Program 'p' (what we want to translate) is non-nil.
func NewCodeGenerator(p Program) CodeGenerator {
	return CodeGenerator{program: p}
}

// Translates each instruction in the 'program' field to its assembly line.
//
// Each instruction will pass through the following step: evaluation, validation and
// then conversion to its textual representation (a string) so that it can be further
// elaborated by the caller (e.g. dumping to a .s file for the external assembler).
// The returned slice starts with the fixed file header.
func (cg *CodeGenerator) Generate() ([]string, error) {
	asm := make([]string, 0, len(Header)+len(cg.program))
	asm = append(asm, Header...)

	for _, instruction := range cg.program {
		var generated string = ""
		var err error = nil

		switch tInstruction := instruction.(type) {
		case PushOp:
			generated, err = cg.GeneratePushOp(tInstruction)
		case PopOp:
			generated, err = cg.GeneratePopOp(tInstruction)
		case BinaryOp:
			generated, err = cg.GenerateBinaryOp(tInstruction)
		case CqoOp:
			generated, err = cg.GenerateCqoOp(tInstruction)
		case IdivOp:
			generated, err = cg.GenerateIdivOp(tInstruction)
		case SetOp:
			generated, err = cg.GenerateSetOp(tInstruction)
		case MovzbOp:
			generated, err = cg.GenerateMovzbOp(tInstruction)
		case LoadOp:
			generated, err = cg.GenerateLoadOp(tInstruction)
		case StoreOp:
			generated, err = cg.GenerateStoreOp(tInstruction)
		case LabelDecl:
			generated, err = cg.GenerateLabelDecl(tInstruction)
		case JumpOp:
			generated, err = cg.GenerateJumpOp(tInstruction)
		case FuncDecl:
			generated, err = cg.GenerateFuncDecl(tInstruction)
		case CallOp:
			generated, err = cg.GenerateCallOp(tInstruction)
		case RetOp:
			generated, err = cg.GenerateRetOp(tInstruction)
		default:
			return nil, fmt.Errorf("unrecognized instruction '%T'", instruction)
		}

		if err != nil {
			return nil, err
		}
		asm = append(asm, generated)
	}

	return asm, nil
}

// Renders an operand as either the register name or the decimal immediate.
func (CodeGenerator) RenderOperand(op Operand) (string, error) {
	switch tOp := op.(type) {
	case Register:
		if tOp == "" {
			return "", errors.New("unable to render an unnamed register")
		}
		return string(tOp), nil
	case Immediate:
		return fmt.Sprintf("%d", int32(tOp)), nil
	default:
		return "", fmt.Errorf("unrecognized operand '%T'", op)
	}
}

// Specialized function to convert a 'PushOp' instruction to assembly text.
func (cg *CodeGenerator) GeneratePushOp(inst PushOp) (string, error) {
	src, err := cg.RenderOperand(inst.Src)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("  push %s", src), nil
}

// Specialized function to convert a 'PopOp' instruction to assembly text.
func (cg *CodeGenerator) GeneratePopOp(inst PopOp) (string, error) {
	dst, err := cg.RenderOperand(inst.Dst)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("  pop %s", dst), nil
}

// Specialized function to convert a 'BinaryOp' instruction to assembly text.
func (cg *CodeGenerator) GenerateBinaryOp(inst BinaryOp) (string, error) {
	if inst.Op == "" {
		return "", errors.New("expected a mnemonic in BinaryOp")
	}

	dst, err := cg.RenderOperand(inst.Dst)
	if err != nil {
		return "", err
	}
	src, err := cg.RenderOperand(inst.Src)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("  %s %s, %s", string(inst.Op), dst, src), nil
}

// Specialized function to convert a 'CqoOp' instruction to assembly text.
func (CodeGenerator) GenerateCqoOp(inst CqoOp) (string, error) {
	return "  cqo", nil
}

// Specialized function to convert an 'IdivOp' instruction to assembly text.
func (cg *CodeGenerator) GenerateIdivOp(inst IdivOp) (string, error) {
	divisor, err := cg.RenderOperand(inst.Divisor)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("  idiv %s", divisor), nil
}

// Specialized function to convert a 'SetOp' instruction to assembly text.
func (cg *CodeGenerator) GenerateSetOp(inst SetOp) (string, error) {
	if inst.Cond == "" {
		return "", errors.New("expected a condition in SetOp")
	}
	// The set-on-condition family writes a single byte, the target must be 'al'
	if inst.Dst != Al {
		return "", fmt.Errorf("invalid SetOp target '%s', only 'al' is addressable", inst.Dst)
	}

	return fmt.Sprintf("  %s %s", string(inst.Cond), string(inst.Dst)), nil
}

// Specialized function to convert a 'MovzbOp' instruction to assembly text.
func (cg *CodeGenerator) GenerateMovzbOp(inst MovzbOp) (string, error) {
	if inst.Src != Al {
		return "", fmt.Errorf("invalid MovzbOp source '%s', only 'al' is addressable", inst.Src)
	}

	dst, err := cg.RenderOperand(inst.Dst)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("  movzb %s, %s", dst, string(inst.Src)), nil
}

// Specialized function to convert a 'LoadOp' instruction to assembly text.
func (cg *CodeGenerator) GenerateLoadOp(inst LoadOp) (string, error) {
	dst, err := cg.RenderOperand(inst.Dst)
	if err != nil {
		return "", err
	}
	addr, err := cg.RenderOperand(inst.Addr)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("  mov %s, [%s]", dst, addr), nil
}

// Specialized function to convert a 'StoreOp' instruction to assembly text.
func (cg *CodeGenerator) GenerateStoreOp(inst StoreOp) (string, error) {
	addr, err := cg.RenderOperand(inst.Addr)
	if err != nil {
		return "", err
	}
	src, err := cg.RenderOperand(inst.Src)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("  mov [%s], %s", addr, src), nil
}

// Specialized function to convert a 'LabelDecl' instruction to assembly text.
func (CodeGenerator) GenerateLabelDecl(inst LabelDecl) (string, error) {
	if inst.Tag == "" {
		return "", errors.New("unable to produce empty label declaration")
	}

	return fmt.Sprintf(".L%s%d:", string(inst.Tag), inst.Index), nil
}

// Specialized function to convert a 'JumpOp' instruction to assembly text.
func (CodeGenerator) GenerateJumpOp(inst JumpOp) (string, error) {
	if inst.Jump == "" {
		return "", errors.New("expected a jump kind in JumpOp")
	}
	if inst.Tag == "" {
		return "", errors.New("unable to produce empty jump label")
	}

	return fmt.Sprintf("  %s .L%s%d", string(inst.Jump), string(inst.Tag), inst.Index), nil
}

// Specialized function to convert a 'FuncDecl' instruction to assembly text.
func (CodeGenerator) GenerateFuncDecl(inst FuncDecl) (string, error) {
	if inst.Name == "" {
		return "", errors.New("unable to produce empty function declaration")
	}

	return fmt.Sprintf("%s:", inst.Name), nil
}

// Specialized function to convert a 'CallOp' instruction to assembly text.
func (CodeGenerator) GenerateCallOp(inst CallOp) (string, error) {
	if inst.Name == "" {
		return "", errors.New("unable to produce empty function call")
	}

	return fmt.Sprintf("  call %s", inst.Name), nil
}

// Specialized function to convert a 'RetOp' instruction to assembly text.
func (CodeGenerator) GenerateRetOp(inst RetOp) (string, error) {
	return "  ret", nil
}
