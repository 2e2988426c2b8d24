package cc

import (
	"fmt"
	"io"
	"os"
	"strconv"

	pc "github.com/prataprc/goparsec"
	"github.com/samber/lo"
)

// ----------------------------------------------------------------------------
// Parser Combinator(s)

// This section defines the Parser Combinator for every token & construct of the language.
//
// The grammar follows the classic expression-precedence ladder (assign -> equality ->
// relational -> additive -> factor -> unary -> atom) with every left-associative level
// encoded as 'first { op rest }' so no left recursion arises; the fold direction is
// restored while extracting the typed AST. Comments can appear between top-level
// definitions and between statements and are discarded.

// Top level object, will generate the traversable AST based on the input plus the PCs below.
var ast = pc.NewAST("c_program", 0)

var (
	// Generic Identifier parser (variables, parameters and function names)
	// NOTE: An ident can be any sequence of letters, digits and underscores.
	// NOTE: An ident cannot begin with a leading digit.
	pIdent = pc.Token(`[A-Za-z_][0-9A-Za-z_]*`, "IDENT")
	// Unsigned decimal literal, the sign comes from the unary minus rule
	pNumber = pc.Token(`[0-9]+`, "NUM")

	// Keywords carry a trailing word boundary so that 'returnx' lexes as an ident
	pReturnKw = pc.Token(`return\b`, "RETURN")
	pIfKw     = pc.Token(`if\b`, "IF")
	pElseKw   = pc.Token(`else\b`, "ELSE")
	pWhileKw  = pc.Token(`while\b`, "WHILE")
	pForKw    = pc.Token(`for\b`, "FOR")
	pIntKw    = pc.Token(`int\b`, "INT")

	pSemi   = pc.Atom(";", "SEMI")
	pComma  = pc.Atom(",", "COMMA")
	pLBrace = pc.Atom("{", "LBRACE")
	pRBrace = pc.Atom("}", "RBRACE")
	pLParen = pc.Atom("(", "LPAREN")
	pRParen = pc.Atom(")", "RPAREN")
	pStar   = pc.Atom("*", "STAR")

	// Binary operator tokens, one per precedence level. The two-char forms come
	// first in each alternation so that '<=' is never split into '<' and '='.
	pAssignOp = pc.Atom("=", "ASSIGNOP")
	pEqOp     = pc.Token(`(==|!=)`, "EQOP")
	pRelOp    = pc.Token(`(<=|>=|<|>)`, "RELOP")
	pAddOp    = pc.Token(`(\+|-)`, "ADDOP")
	pMulOp    = pc.Token(`(\*|/)`, "MULOP")
)

// The grammar is mutually recursive (statements nest through blocks, expressions
// through parentheses, calls and the unary rule), so the combinators are wired up
// bottom-up inside init() and the recursive loops are closed through the *Ref
// trampolines below, which are only entered at parse time.
var (
	pProgram, pFuncDef, pTypeSpec, pComment           pc.Parser
	pStatement, pReturnStmt, pIfStmt, pWhileStmt      pc.Parser
	pForStmt, pBlock, pDeclStmt, pExprStmt            pc.Parser
	pExpr, pEquality, pRelational, pAdditive, pFactor pc.Parser
	pUnary, pAtom, pFuncCall, pVarRef, pGroup         pc.Parser
)

func exprRef(s pc.Scanner) (pc.ParsecNode, pc.Scanner)      { return pExpr(s) }
func statementRef(s pc.Scanner) (pc.ParsecNode, pc.Scanner) { return pStatement(s) }
func unaryRef(s pc.Scanner) (pc.ParsecNode, pc.Scanner)     { return pUnary(s) }

func init() {
	// Atoms: literal, call, variable or parenthesized expression. The call branch
	// comes before the variable branch so that an ident followed by '(' is never
	// mistaken for a variable read.
	pFuncCall = ast.And("func_call", nil, pIdent, pLParen,
		ast.Kleene("args", nil, pc.Parser(exprRef), pComma), pRParen)
	pVarRef = ast.And("var_ref", nil, pIdent)
	pGroup = ast.And("group_expr", nil, pLParen, pc.Parser(exprRef), pRParen)
	pAtom = ast.OrdChoice("atom", nil, pNumber, pFuncCall, pVarRef, pGroup)

	// Expression ladder, highest binding power first. Assignment is the only
	// right-associative level: its flat '= rhs' tail list is re-folded rightwards
	// while building the typed AST.
	pUnary = ast.OrdChoice("unary", nil,
		ast.And("neg_expr", nil, pc.Atom("-", "MINUS"), pc.Parser(unaryRef)),
		ast.And("pos_expr", nil, pc.Atom("+", "PLUS"), pc.Parser(unaryRef)),
		ast.And("addr_expr", nil, pc.Atom("&", "AMP"), pc.Parser(unaryRef)),
		ast.And("deref_expr", nil, pStar, pc.Parser(unaryRef)),
		pAtom,
	)

	pFactor = ast.And("factor", nil, pUnary,
		ast.Kleene("factor_tail", nil, ast.And("factor_rhs", nil, pMulOp, pUnary)))

	pAdditive = ast.And("additive", nil, pFactor,
		ast.Kleene("additive_tail", nil, ast.And("additive_rhs", nil, pAddOp, pFactor)))

	pRelational = ast.And("relational", nil, pAdditive,
		ast.Kleene("relational_tail", nil, ast.And("relational_rhs", nil, pRelOp, pAdditive)))

	pEquality = ast.And("equality", nil, pRelational,
		ast.Kleene("equality_tail", nil, ast.And("equality_rhs", nil, pEqOp, pRelational)))

	pExpr = ast.And("assign", nil, pEquality,
		ast.Kleene("assign_tail", nil, ast.And("assign_rhs", nil, pAssignOp, pEquality)))

	// Parser combinator for comments, both the single and the multi line flavor
	pComment = ast.OrdChoice("comment", nil,
		// Single line comments (e.g. "// This is a comment")
		ast.And("sl_comment", nil, pc.Atom("//", "//"), pc.Token(`(?m).*$`, "COMMENT")),
		// Multi line comments (e.g. "/* This is a comment */")
		ast.And("ml_comment", nil, pc.Token(`/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`, "COMMENT")),
	)

	// Statements. Optional pieces (the 'else' clause and the three 'for' clauses)
	// are encoded as Kleene wrappers so every node keeps a fixed child layout; the
	// typed-AST walk rejects wrappers that matched more than once.
	pBlock = ast.And("block", nil, pLBrace,
		ast.Kleene("block_items", nil, ast.OrdChoice("block_item", nil, pComment, pc.Parser(statementRef))),
		pRBrace)

	pReturnStmt = ast.And("return_stmt", nil, pReturnKw, pExpr, pSemi)

	pIfStmt = ast.And("if_stmt", nil, pIfKw, pLParen, pExpr, pRParen, pc.Parser(statementRef),
		ast.Kleene("else_tail", nil, ast.And("else_clause", nil, pElseKw, pc.Parser(statementRef))))

	pWhileStmt = ast.And("while_stmt", nil, pWhileKw, pLParen, pExpr, pRParen, pc.Parser(statementRef))

	pForStmt = ast.And("for_stmt", nil, pForKw, pLParen,
		ast.Kleene("opt_init", nil, pExpr), pSemi,
		ast.Kleene("opt_cond", nil, pExpr), pSemi,
		ast.Kleene("opt_tail", nil, pExpr), pRParen, pc.Parser(statementRef))

	pTypeSpec = ast.And("type_spec", nil, pIntKw, ast.Kleene("stars", nil, pStar))

	pDeclStmt = ast.And("decl_stmt", nil, pTypeSpec, pIdent, pSemi)
	pExprStmt = ast.And("expr_stmt", nil, pExpr, pSemi)

	pStatement = ast.OrdChoice("statement", nil,
		pReturnStmt, pIfStmt, pWhileStmt, pForStmt, pBlock, pDeclStmt, pExprStmt)

	// Top-level: one or more function definitions (and comments) up to EOF
	pFuncDef = ast.And("func_def", nil, pTypeSpec, pIdent, pLParen,
		ast.Kleene("params", nil, ast.And("param", nil, pTypeSpec, pIdent), pComma),
		pRParen, pBlock)

	pProgram = ast.ManyUntil("program", nil,
		ast.OrdChoice("toplevel", nil, pComment, pFuncDef), pc.End())
}

// ----------------------------------------------------------------------------
// Source Parser

// This section defines the Parser for the accepted C subset.
//
// It uses parser combinator(s) to obtain the AST from the source code (the latter can be
// provided in multiple ways using a generic io.Reader), the library reads up the feature
// flags (as env vars):
// - PARSEC_DEBUG: Verbose logging to inspect which of the PCs gets triggered and match
// - EXPORT_AST:   Exports in the DEBUG_FOLDER a Graphviz representation of the AST
// - PRINT_AST:    Print on the stdout a textual representation of the AST
type Parser struct {
	reader io.Reader
	scopes *SymbolTable // The symbol environment of the function being walked
}

// Initializes and returns to the caller a brand new 'Parser' struct.
// Requires the argument io.Reader 'r' to be valid and usable.
func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

// Parser entrypoint divides the 2 phases of the parsing pipeline
// Text --> AST: This step is done using PCs and returns a generic traversable AST
// AST --> IR: This step is done by traversing the AST and extracting the 'cc.Program'
func (p *Parser) Parse() (Program, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return nil, fmt.Errorf("cannot read from 'io.Reader': %s", err)
	}

	root, err := p.FromSource(content)
	if err != nil {
		return nil, err
	}

	return p.FromAST(root)
}

// Scans the textual input stream coming from the 'reader' method and returns a traversable
// AST (Abstract Syntax Tree) that can be eventually visited to extract/transform the info
// available. A grammar mismatch (including trailing unparsed input) is reported together
// with the byte offset the scanner stopped at.
func (p *Parser) FromSource(source []byte) (pc.Queryable, error) {

	// Feature flag: Enable 'goparsec' library's debug logs
	if os.Getenv("PARSEC_DEBUG") != "" {
		ast.SetDebug()
	}

	// We generate the traversable Abstract Syntax Tree from the source content
	root, scanner := ast.Parsewith(pProgram, pc.NewScanner(source))
	if root == nil {
		return nil, fmt.Errorf("source does not match the grammar near offset %d", scanner.GetCursor())
	}
	if _, rest := scanner.SkipWS(); !rest.Endof() {
		return nil, fmt.Errorf("source does not match the grammar near offset %d", rest.GetCursor())
	}

	// Feature flag: Enables export of the AST as Dot file (debug.ast.dot)
	if os.Getenv("EXPORT_AST") != "" {
		file, _ := os.Create(fmt.Sprintf("%s/debug.ast.dot", os.Getenv("DEBUG_FOLDER")))
		defer file.Close()

		file.Write([]byte(ast.Dotstring("\"CC AST\"")))
	}

	// Feature flag: Enables pretty printing of the AST on the console
	if os.Getenv("PRINT_AST") != "" {
		ast.Prettyprint()
	}

	return root, nil
}

// This function takes the root node of the raw parsed AST and does a DFS on it parsing
// one by one each subtree and returning a 'cc.Program' that can be used as in-memory and
// type-safe AST not dependent on the parsing library used. Identifier resolution happens
// here: every 'VarExpr' produced already carries the slot offset and type recorded in the
// function's symbol environment.
func (p *Parser) FromAST(root pc.Queryable) (Program, error) {
	program := Program{}

	if root.GetName() != "program" {
		return nil, fmt.Errorf("expected node 'program', found '%s'", root.GetName())
	}

	for _, child := range root.GetChildren() {
		switch child.GetName() {
		case "func_def": // Function definition subtree, appends 'cc.Function' to 'program'
			function, err := p.HandleFuncDef(child)
			if err != nil {
				return nil, err
			}
			program = append(program, function)

		case "comment", "sl_comment", "ml_comment": // Comment nodes in the AST are just skipped
			continue

		default: // Error case, unrecognized subtree in the AST
			return nil, fmt.Errorf("unrecognized node '%s'", child.GetName())
		}
	}

	if len(program) == 0 {
		return nil, fmt.Errorf("expected at least one function definition")
	}

	return program, nil
}

// Specialized function to convert a "func_def" node to a 'cc.Function'.
//
// A fresh symbol environment is created for the definition, the parameters claim the
// first stack slots in order, then the body is walked with declarations claiming the
// slots that follow. The final environment size fixes the frame's local area.
func (p *Parser) HandleFuncDef(node pc.Queryable) (Function, error) {
	children := node.GetChildren()
	if len(children) != 6 {
		return Function{}, fmt.Errorf("expected node 'func_def' with 6 children, got %d", len(children))
	}

	returnType, err := p.HandleTypeSpec(children[0])
	if err != nil {
		return Function{}, err
	}
	name := children[1].GetValue()

	p.scopes = NewSymbolTable() // The environment never outlives the definition

	paramNodes := children[3].GetChildren()
	if len(paramNodes) > MaxCallArgs {
		return Function{}, fmt.Errorf("function '%s' declares %d parameters, at most %d are supported", name, len(paramNodes), MaxCallArgs)
	}

	params := []Param{}
	for _, paramNode := range paramNodes {
		param, err := p.HandleParam(paramNode)
		if err != nil {
			return Function{}, fmt.Errorf("error handling parameter in function '%s': %w", name, err)
		}
		params = append(params, param)
	}

	body, err := p.HandleBlockItems(children[5])
	if err != nil {
		return Function{}, fmt.Errorf("error handling body of function '%s': %w", name, err)
	}

	return Function{
		Name:      name,
		Return:    returnType,
		Params:    params,
		Body:      body,
		LocalArea: p.scopes.LocalArea(),
	}, nil
}

// Specialized function to convert a "param" node to a 'cc.Param', registering the
// formal in the current environment so it claims its stack slot.
func (p *Parser) HandleParam(node pc.Queryable) (Param, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return Param{}, fmt.Errorf("expected node 'param' with 2 children, got %d", len(children))
	}

	dataType, err := p.HandleTypeSpec(children[0])
	if err != nil {
		return Param{}, err
	}

	name := children[1].GetValue()
	if _, err := p.scopes.Declare(name, dataType); err != nil {
		return Param{}, err
	}

	return Param{Name: name, DataType: dataType}, nil
}

// Specialized function to convert a "type_spec" node ('int' plus any number of
// trailing '*') to a 'cc.Type'.
func (p *Parser) HandleTypeSpec(node pc.Queryable) (Type, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return Type{}, fmt.Errorf("expected node 'type_spec' with 2 children, got %d", len(children))
	}

	return ResolveTypeName(children[0].GetValue(), len(children[1].GetChildren()))
}

// Extracts the statement list out of a "block" node, skipping interleaved comments.
func (p *Parser) HandleBlockItems(node pc.Queryable) ([]Statement, error) {
	if node.GetName() != "block" {
		return nil, fmt.Errorf("expected node 'block', got '%s'", node.GetName())
	}

	items := lo.Filter(node.GetChildren()[1].GetChildren(), func(item pc.Queryable, _ int) bool {
		name := item.GetName()
		return name != "comment" && name != "sl_comment" && name != "ml_comment"
	})

	statements := []Statement{}
	for _, item := range items {
		statement, err := p.HandleStatement(item)
		if err != nil {
			return nil, err
		}
		statements = append(statements, statement)
	}

	return statements, nil
}

// Generalized function to convert the multiple statement subtrees to a 'cc.Statement'.
func (p *Parser) HandleStatement(node pc.Queryable) (Statement, error) {
	switch node.GetName() {
	case "return_stmt":
		return p.HandleReturnStmt(node)
	case "if_stmt":
		return p.HandleIfStmt(node)
	case "while_stmt":
		return p.HandleWhileStmt(node)
	case "for_stmt":
		return p.HandleForStmt(node)
	case "block":
		statements, err := p.HandleBlockItems(node)
		if err != nil {
			return nil, err
		}
		return BlockStmt{Stmts: statements}, nil
	case "decl_stmt":
		return p.HandleDeclStmt(node)
	case "expr_stmt":
		return p.HandleExprStmt(node)
	default:
		return nil, fmt.Errorf("unrecognized statement node '%s'", node.GetName())
	}
}

// Specialized function to convert a "return_stmt" node to a 'cc.ReturnStmt'.
func (p *Parser) HandleReturnStmt(node pc.Queryable) (Statement, error) {
	children := node.GetChildren()
	if len(children) != 3 {
		return nil, fmt.Errorf("expected node 'return_stmt' with 3 children, got %d", len(children))
	}

	expr, err := p.HandleExpression(children[1])
	if err != nil {
		return nil, fmt.Errorf("error handling return expression: %w", err)
	}

	return ReturnStmt{Expr: expr}, nil
}

// Specialized function to convert an "if_stmt" node to a 'cc.IfStmt'.
func (p *Parser) HandleIfStmt(node pc.Queryable) (Statement, error) {
	children := node.GetChildren()
	if len(children) != 6 {
		return nil, fmt.Errorf("expected node 'if_stmt' with 6 children, got %d", len(children))
	}

	condition, err := p.HandleExpression(children[2])
	if err != nil {
		return nil, fmt.Errorf("error handling if condition expression: %w", err)
	}
	thenBranch, err := p.HandleStatement(children[4])
	if err != nil {
		return nil, fmt.Errorf("error handling 'then' branch: %w", err)
	}

	elseClauses := children[5].GetChildren()
	if len(elseClauses) > 1 {
		return nil, fmt.Errorf("expected at most one 'else' clause, got %d", len(elseClauses))
	}

	var elseBranch Statement = nil
	if len(elseClauses) == 1 {
		elseBranch, err = p.HandleStatement(elseClauses[0].GetChildren()[1])
		if err != nil {
			return nil, fmt.Errorf("error handling 'else' branch: %w", err)
		}
	}

	return IfStmt{Condition: condition, ThenBranch: thenBranch, ElseBranch: elseBranch}, nil
}

// Specialized function to convert a "while_stmt" node to a 'cc.WhileStmt'.
func (p *Parser) HandleWhileStmt(node pc.Queryable) (Statement, error) {
	children := node.GetChildren()
	if len(children) != 5 {
		return nil, fmt.Errorf("expected node 'while_stmt' with 5 children, got %d", len(children))
	}

	condition, err := p.HandleExpression(children[2])
	if err != nil {
		return nil, fmt.Errorf("error handling while condition expression: %w", err)
	}
	body, err := p.HandleStatement(children[4])
	if err != nil {
		return nil, fmt.Errorf("error handling while body: %w", err)
	}

	return WhileStmt{Condition: condition, Body: body}, nil
}

// Specialized function to convert a "for_stmt" node to a 'cc.ForStmt'.
// Each of the three clauses is optional and comes wrapped in its own node.
func (p *Parser) HandleForStmt(node pc.Queryable) (Statement, error) {
	children := node.GetChildren()
	if len(children) != 9 {
		return nil, fmt.Errorf("expected node 'for_stmt' with 9 children, got %d", len(children))
	}

	init, err := p.HandleOptionalExpr(children[2])
	if err != nil {
		return nil, fmt.Errorf("error handling for init expression: %w", err)
	}
	condition, err := p.HandleOptionalExpr(children[4])
	if err != nil {
		return nil, fmt.Errorf("error handling for condition expression: %w", err)
	}
	tail, err := p.HandleOptionalExpr(children[6])
	if err != nil {
		return nil, fmt.Errorf("error handling for tail expression: %w", err)
	}
	body, err := p.HandleStatement(children[8])
	if err != nil {
		return nil, fmt.Errorf("error handling for body: %w", err)
	}

	return ForStmt{Init: init, Condition: condition, Tail: tail, Body: body}, nil
}

// Unwraps one of the Kleene wrappers used for optional expressions: zero children
// means the clause is absent (nil), more than one means the source had two
// expressions back to back where at most one is allowed.
func (p *Parser) HandleOptionalExpr(node pc.Queryable) (Expression, error) {
	children := node.GetChildren()
	if len(children) == 0 {
		return nil, nil
	}
	if len(children) > 1 {
		return nil, fmt.Errorf("expected at most one expression in '%s', got %d", node.GetName(), len(children))
	}

	return p.HandleExpression(children[0])
}

// Specialized function to convert a "decl_stmt" node to a 'cc.DeclStmt', claiming
// the next stack slot for the declared name.
func (p *Parser) HandleDeclStmt(node pc.Queryable) (Statement, error) {
	children := node.GetChildren()
	if len(children) != 3 {
		return nil, fmt.Errorf("expected node 'decl_stmt' with 3 children, got %d", len(children))
	}

	dataType, err := p.HandleTypeSpec(children[0])
	if err != nil {
		return nil, err
	}

	name := children[1].GetValue()
	if _, err := p.scopes.Declare(name, dataType); err != nil {
		return nil, err
	}

	return DeclStmt{Name: name, DataType: dataType}, nil
}

// Specialized function to convert an "expr_stmt" node to a 'cc.ExprStmt'.
func (p *Parser) HandleExprStmt(node pc.Queryable) (Statement, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected node 'expr_stmt' with 2 children, got %d", len(children))
	}

	expr, err := p.HandleExpression(children[0])
	if err != nil {
		return nil, err
	}

	return ExprStmt{Expr: expr}, nil
}

// Maps operator spellings to their 'cc.Op' counterpart while folding chains.
var operators = map[string]Op{
	"+": Add, "-": Sub, "*": Mul, "/": Div,
	"==": Eq, "!=": Neq, "<": Lt, "<=": Le, ">": Gt, ">=": Ge,
}

// Generalized function to convert the multiple expression subtrees to a 'cc.Expression'.
func (p *Parser) HandleExpression(node pc.Queryable) (Expression, error) {
	switch node.GetName() {
	case "assign":
		return p.HandleAssignChain(node)
	case "equality", "relational", "additive", "factor":
		return p.HandleBinaryChain(node)
	case "neg_expr": // Unary minus is encoded as '0 - operand'
		operand, err := p.HandleExpression(node.GetChildren()[1])
		if err != nil {
			return nil, err
		}
		return BinaryExpr{Op: Sub, Lhs: IntegerExpr{Value: 0}, Rhs: operand}, nil
	case "pos_expr": // Unary plus is the identity
		return p.HandleExpression(node.GetChildren()[1])
	case "addr_expr":
		operand, err := p.HandleExpression(node.GetChildren()[1])
		if err != nil {
			return nil, err
		}
		return AddrExpr{Target: operand}, nil
	case "deref_expr":
		operand, err := p.HandleExpression(node.GetChildren()[1])
		if err != nil {
			return nil, err
		}
		return DerefExpr{Target: operand}, nil
	case "NUM":
		value, err := strconv.ParseInt(node.GetValue(), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("integer literal '%s' does not fit 32 bits", node.GetValue())
		}
		return IntegerExpr{Value: int32(value)}, nil
	case "func_call":
		return p.HandleFuncCall(node)
	case "var_ref":
		return p.HandleVarRef(node)
	case "group_expr":
		return p.HandleExpression(node.GetChildren()[1])
	default:
		return nil, fmt.Errorf("unrecognized expression node '%s'", node.GetName())
	}
}

// Folds an "assign" node rightwards: 'a = b = c' becomes 'a = (b = c)'. Whether
// each assignment target is actually an lvalue is checked during lowering.
func (p *Parser) HandleAssignChain(node pc.Queryable) (Expression, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected node 'assign' with 2 children, got %d", len(children))
	}

	operands := []Expression{}
	first, err := p.HandleExpression(children[0])
	if err != nil {
		return nil, err
	}
	operands = append(operands, first)

	for _, tail := range children[1].GetChildren() {
		operand, err := p.HandleExpression(tail.GetChildren()[1])
		if err != nil {
			return nil, err
		}
		operands = append(operands, operand)
	}

	folded := operands[len(operands)-1]
	for i := len(operands) - 2; i >= 0; i-- {
		folded = BinaryExpr{Op: Assign, Lhs: operands[i], Rhs: folded}
	}
	return folded, nil
}

// Folds a left-associative operator chain ('a + b - c' and friends) leftwards.
func (p *Parser) HandleBinaryChain(node pc.Queryable) (Expression, error) {
	children := node.GetChildren()
	if len(children) != 2 {
		return nil, fmt.Errorf("expected node '%s' with 2 children, got %d", node.GetName(), len(children))
	}

	folded, err := p.HandleExpression(children[0])
	if err != nil {
		return nil, err
	}

	for _, tail := range children[1].GetChildren() {
		pair := tail.GetChildren()
		op, found := operators[pair[0].GetValue()]
		if !found {
			return nil, fmt.Errorf("unrecognized operator '%s'", pair[0].GetValue())
		}

		rhs, err := p.HandleExpression(pair[1])
		if err != nil {
			return nil, err
		}
		folded = BinaryExpr{Op: op, Lhs: folded, Rhs: rhs}
	}

	return folded, nil
}

// Specialized function to convert a "func_call" node to a 'cc.FuncCallExpr'.
// The callee name is taken literally, nothing checks it resolves to a definition
// in this translation unit (it may well live in the runtime the output links against).
func (p *Parser) HandleFuncCall(node pc.Queryable) (Expression, error) {
	children := node.GetChildren()
	if len(children) != 4 {
		return nil, fmt.Errorf("expected node 'func_call' with 4 children, got %d", len(children))
	}

	name := children[0].GetValue()
	argNodes := children[2].GetChildren()
	if len(argNodes) > MaxCallArgs {
		return nil, fmt.Errorf("call to '%s' passes %d arguments, at most %d are supported", name, len(argNodes), MaxCallArgs)
	}

	arguments := []Expression{}
	for _, argNode := range argNodes {
		argument, err := p.HandleExpression(argNode)
		if err != nil {
			return nil, fmt.Errorf("error handling argument of call to '%s': %w", name, err)
		}
		arguments = append(arguments, argument)
	}

	return FuncCallExpr{Name: name, Arguments: arguments}, nil
}

// Specialized function to convert a "var_ref" node to a 'cc.VarExpr', resolving the
// identifier against the current function's environment. A miss is a hard error.
func (p *Parser) HandleVarRef(node pc.Queryable) (Expression, error) {
	children := node.GetChildren()
	if len(children) != 1 {
		return nil, fmt.Errorf("expected node 'var_ref' with 1 child, got %d", len(children))
	}

	symbol, err := p.scopes.Resolve(children[0].GetValue())
	if err != nil {
		return nil, err
	}

	return VarExpr{Name: symbol.Name, Offset: symbol.Offset, DataType: symbol.DataType}, nil
}
