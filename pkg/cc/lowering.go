package cc

import (
	"fmt"

	"github.com/samber/lo"
	"its-hmny.dev/minicc/pkg/x86"
)

// ----------------------------------------------------------------------------
// Lowerer

// The Lowerer takes a 'cc.Program' and produces its 'x86.Program' counterpart.
//
// Since we get a tree-like struct we are able to traverse it using a simple Depth First
// Search (DFS) algorithm on it. The translation is a classical stack-machine lowering:
// every expression leaves exactly one 64-bit value on the runtime stack, every statement
// leaves the stack depth unchanged, and composition happens through push/pop pairs.
type Lowerer struct {
	program Program // The program to lower, it must be not nil nor empty
	// Counter feeding the numbered control-flow labels. It is threaded through the
	// whole compilation unit, so labels stay unique across function boundaries.
	nLabel uint
}

// The default epilogue: restores the caller's frame and returns. Emitted at the end
// of every function body and by every 'return' statement.
var epilogue = []x86.Instruction{
	x86.BinaryOp{Op: x86.Mov, Dst: x86.Rsp, Src: x86.Rbp},
	x86.PopOp{Dst: x86.Rbp},
	x86.RetOp{},
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
// Requires the argument Program to be not nil nor empty.
func NewLowerer(p Program) Lowerer {
	return Lowerer{program: p}
}

// Triggers the lowering process. It iterates function by function and then statement
// by statement, recursively calling the necessary helper function based on the construct
// type (much like a recursive descent parser but for lowering), this means the AST is
// visited in DFS order.
func (l *Lowerer) Lower() (x86.Program, error) {
	if len(l.program) == 0 {
		return nil, fmt.Errorf("the given 'program' is empty or nil")
	}

	chunks := [][]x86.Instruction{}
	for _, function := range l.program {
		instructions, err := l.HandleFunction(function)
		if err != nil {
			return nil, fmt.Errorf("error handling lowering of function '%s': %w", function.Name, err)
		}
		chunks = append(chunks, instructions)
	}

	return x86.Program(lo.Flatten(chunks)), nil
}

// Specialized function to convert a 'cc.Function' to a list of 'x86.Instruction'.
//
// The prologue saves the caller's base pointer, claims the local area and spills the
// incoming argument registers into the first stack slots (rax walks the frame downward,
// one slot per parameter). The default epilogue after the body is unreachable whenever
// the body ends in a 'return', but emitting it keeps fall-through functions well formed.
func (l *Lowerer) HandleFunction(function Function) ([]x86.Instruction, error) {
	if len(function.Params) > MaxCallArgs {
		return nil, fmt.Errorf("function '%s' declares %d parameters, at most %d are supported", function.Name, len(function.Params), MaxCallArgs)
	}

	out := []x86.Instruction{
		x86.FuncDecl{Name: function.Name},
		x86.PushOp{Src: x86.Rbp},
		x86.BinaryOp{Op: x86.Mov, Dst: x86.Rbp, Src: x86.Rsp},
		x86.BinaryOp{Op: x86.Sub, Dst: x86.Rsp, Src: x86.Immediate(function.LocalArea)},
		x86.BinaryOp{Op: x86.Mov, Dst: x86.Rax, Src: x86.Rbp},
	}

	for i := range function.Params {
		out = append(out,
			x86.BinaryOp{Op: x86.Sub, Dst: x86.Rax, Src: x86.Immediate(8)},
			x86.StoreOp{Addr: x86.Rax, Src: x86.ArgRegisters[i]},
		)
	}

	for _, statement := range function.Body {
		ops, err := l.HandleStatement(statement)
		if err != nil {
			return nil, err
		}
		out = append(out, ops...)
	}

	return append(out, epilogue...), nil
}

// Generalized function to lower the multiple statement types to a 'x86.Instruction' list.
func (l *Lowerer) HandleStatement(statement Statement) ([]x86.Instruction, error) {
	switch tStatement := statement.(type) {
	case ReturnStmt:
		return l.HandleReturnStmt(tStatement)
	case IfStmt:
		return l.HandleIfStmt(tStatement)
	case WhileStmt:
		return l.HandleWhileStmt(tStatement)
	case ForStmt:
		return l.HandleForStmt(tStatement)
	case BlockStmt:
		return l.HandleBlockStmt(tStatement)
	case DeclStmt:
		// Declarations claimed their slot during parsing, no code is emitted
		return []x86.Instruction{}, nil
	case ExprStmt:
		return l.HandleExprStmt(tStatement)
	default:
		return nil, fmt.Errorf("unrecognized statement: %T", statement)
	}
}

// Specialized function to convert a 'cc.ReturnStmt' to a list of 'x86.Instruction'.
func (l *Lowerer) HandleReturnStmt(statement ReturnStmt) ([]x86.Instruction, error) {
	ops, err := l.HandleExpression(statement.Expr)
	if err != nil {
		return nil, fmt.Errorf("error handling return expression: %w", err)
	}

	return append(append(ops, x86.PopOp{Dst: x86.Rax}), epilogue...), nil
}

// Specialized function to convert a 'cc.IfStmt' to a list of 'x86.Instruction'.
//
// The condition is compared against zero and a one-way (no else) or two-way fork is
// emitted. The construct captures one label number shared by its 'else'/'end' labels.
func (l *Lowerer) HandleIfStmt(statement IfStmt) ([]x86.Instruction, error) {
	condOps, err := l.HandleExpression(statement.Condition)
	if err != nil {
		return nil, fmt.Errorf("error handling if condition expression: %w", err)
	}

	out := append(condOps,
		x86.PopOp{Dst: x86.Rax},
		x86.BinaryOp{Op: x86.Cmp, Dst: x86.Rax, Src: x86.Immediate(0)},
	)

	crr := l.nLabel + 1
	l.nLabel = l.nLabel + 1

	thenOps, err := l.HandleStatement(statement.ThenBranch)
	if err != nil {
		return nil, fmt.Errorf("error handling 'then' branch: %w", err)
	}

	// If there's no else branch, we can just implement a one way fork in the control flow
	if statement.ElseBranch == nil {
		out = append(out, x86.JumpOp{Jump: x86.Je, Tag: x86.End, Index: crr})
		out = append(out, thenOps...)
		return append(out, x86.LabelDecl{Tag: x86.End, Index: crr}), nil
	}

	// If there is an else branch, we need to do a two way fork in the control flow
	elseOps, err := l.HandleStatement(statement.ElseBranch)
	if err != nil {
		return nil, fmt.Errorf("error handling 'else' branch: %w", err)
	}

	out = append(out, x86.JumpOp{Jump: x86.Je, Tag: x86.Else, Index: crr})
	out = append(out, thenOps...)
	out = append(out, x86.JumpOp{Jump: x86.Jmp, Tag: x86.End, Index: crr}, x86.LabelDecl{Tag: x86.Else, Index: crr})
	out = append(out, elseOps...)
	return append(out, x86.LabelDecl{Tag: x86.End, Index: crr}), nil
}

// Specialized function to convert a 'cc.WhileStmt' to a list of 'x86.Instruction'.
func (l *Lowerer) HandleWhileStmt(statement WhileStmt) ([]x86.Instruction, error) {
	crr := l.nLabel + 1
	l.nLabel = l.nLabel + 1

	condOps, err := l.HandleExpression(statement.Condition)
	if err != nil {
		return nil, fmt.Errorf("error handling while condition expression: %w", err)
	}
	bodyOps, err := l.HandleStatement(statement.Body)
	if err != nil {
		return nil, fmt.Errorf("error handling while body: %w", err)
	}

	out := append([]x86.Instruction{x86.LabelDecl{Tag: x86.Begin, Index: crr}}, condOps...)
	out = append(out,
		x86.PopOp{Dst: x86.Rax},
		x86.BinaryOp{Op: x86.Cmp, Dst: x86.Rax, Src: x86.Immediate(0)},
		x86.JumpOp{Jump: x86.Je, Tag: x86.End, Index: crr},
	)
	out = append(out, bodyOps...)
	return append(out,
		x86.JumpOp{Jump: x86.Jmp, Tag: x86.Begin, Index: crr},
		x86.LabelDecl{Tag: x86.End, Index: crr},
	), nil
}

// Specialized function to convert a 'cc.ForStmt' to a list of 'x86.Instruction'.
//
// All three clauses are optional: with no condition the loop degenerates to an
// unconditional back-edge. The init and tail clauses are expressions evaluated for
// effect, so their value is popped right away to keep the statement stack-neutral.
func (l *Lowerer) HandleForStmt(statement ForStmt) ([]x86.Instruction, error) {
	crr := l.nLabel + 1
	l.nLabel = l.nLabel + 1

	out := []x86.Instruction{}

	if statement.Init != nil {
		initOps, err := l.HandleExpression(statement.Init)
		if err != nil {
			return nil, fmt.Errorf("error handling for init expression: %w", err)
		}
		out = append(append(out, initOps...), x86.PopOp{Dst: x86.Rax})
	}

	out = append(out, x86.LabelDecl{Tag: x86.Begin, Index: crr})

	if statement.Condition != nil {
		condOps, err := l.HandleExpression(statement.Condition)
		if err != nil {
			return nil, fmt.Errorf("error handling for condition expression: %w", err)
		}
		out = append(append(out, condOps...),
			x86.PopOp{Dst: x86.Rax},
			x86.BinaryOp{Op: x86.Cmp, Dst: x86.Rax, Src: x86.Immediate(0)},
			x86.JumpOp{Jump: x86.Je, Tag: x86.End, Index: crr},
		)
	}

	bodyOps, err := l.HandleStatement(statement.Body)
	if err != nil {
		return nil, fmt.Errorf("error handling for body: %w", err)
	}
	out = append(out, bodyOps...)

	if statement.Tail != nil {
		tailOps, err := l.HandleExpression(statement.Tail)
		if err != nil {
			return nil, fmt.Errorf("error handling for tail expression: %w", err)
		}
		out = append(append(out, tailOps...), x86.PopOp{Dst: x86.Rax})
	}

	return append(out,
		x86.JumpOp{Jump: x86.Jmp, Tag: x86.Begin, Index: crr},
		x86.LabelDecl{Tag: x86.End, Index: crr},
	), nil
}

// Specialized function to convert a 'cc.BlockStmt' to a list of 'x86.Instruction'.
func (l *Lowerer) HandleBlockStmt(statement BlockStmt) ([]x86.Instruction, error) {
	out := []x86.Instruction{}

	for _, nested := range statement.Stmts {
		ops, err := l.HandleStatement(nested)
		if err != nil {
			return nil, fmt.Errorf("error handling nested statement %T: %w", nested, err)
		}
		out = append(out, ops...)
	}

	return out, nil
}

// Specialized function to convert a 'cc.ExprStmt' to a list of 'x86.Instruction'.
// The expression value is popped (and discarded) to keep the statement stack-neutral.
func (l *Lowerer) HandleExprStmt(statement ExprStmt) ([]x86.Instruction, error) {
	ops, err := l.HandleExpression(statement.Expr)
	if err != nil {
		return nil, fmt.Errorf("error handling expression statement: %w", err)
	}

	return append(ops, x86.PopOp{Dst: x86.Rax}), nil
}

// Generalized function to lower the multiple expression types to a 'x86.Instruction' list.
func (l *Lowerer) HandleExpression(expression Expression) ([]x86.Instruction, error) {
	switch tExpression := expression.(type) {
	case VarExpr:
		return l.HandleVarExpr(tExpression)
	case IntegerExpr:
		return l.HandleIntegerExpr(tExpression)
	case BinaryExpr:
		return l.HandleBinaryExpr(tExpression)
	case FuncCallExpr:
		return l.HandleFuncCallExpr(tExpression)
	case AddrExpr:
		return l.HandleAddrExpr(tExpression)
	case DerefExpr:
		return l.HandleDerefExpr(tExpression)
	default:
		return nil, fmt.Errorf("unrecognized expression: %T", expression)
	}
}

// Pushes the address of the operand rather than its value. Only variables (frame
// base minus the slot offset) and dereferences (the pointer value itself) have an
// address, anything else as an assignment target is a semantic error.
func (l *Lowerer) HandleLvalue(expression Expression) ([]x86.Instruction, error) {
	switch tExpression := expression.(type) {
	case VarExpr:
		return []x86.Instruction{
			x86.BinaryOp{Op: x86.Mov, Dst: x86.Rax, Src: x86.Rbp},
			x86.BinaryOp{Op: x86.Sub, Dst: x86.Rax, Src: x86.Immediate(tExpression.Offset)},
			x86.PushOp{Src: x86.Rax},
		}, nil
	case DerefExpr:
		return l.HandleExpression(tExpression.Target)
	default:
		return nil, fmt.Errorf("assignment target is not an lvalue, got %T", expression)
	}
}

// Specialized function to convert a 'cc.VarExpr' to a list of 'x86.Instruction'.
// The slot address is materialized first, then replaced by the 8 bytes it points to.
func (l *Lowerer) HandleVarExpr(expression VarExpr) ([]x86.Instruction, error) {
	ops, err := l.HandleLvalue(expression)
	if err != nil {
		return nil, err
	}

	return append(ops,
		x86.PopOp{Dst: x86.Rax},
		x86.LoadOp{Dst: x86.Rax, Addr: x86.Rax},
		x86.PushOp{Src: x86.Rax},
	), nil
}

// Specialized function to convert a 'cc.IntegerExpr' to a list of 'x86.Instruction'.
func (l *Lowerer) HandleIntegerExpr(expression IntegerExpr) ([]x86.Instruction, error) {
	return []x86.Instruction{x86.PushOp{Src: x86.Immediate(expression.Value)}}, nil
}

// Specialized function to convert a 'cc.BinaryExpr' to a list of 'x86.Instruction'.
//
// Assignment is special-cased: the LHS is evaluated as an address, the RHS as a value,
// and the stored value is pushed back as the expression's result. Every other operator
// evaluates both operands as values, pops them (right into rdi, left into rax), combines
// them into rax and pushes the result.
func (l *Lowerer) HandleBinaryExpr(expression BinaryExpr) ([]x86.Instruction, error) {
	if expression.Op == Assign {
		lhsOps, err := l.HandleLvalue(expression.Lhs)
		if err != nil {
			return nil, err
		}
		rhsOps, err := l.HandleExpression(expression.Rhs)
		if err != nil {
			return nil, fmt.Errorf("error handling nested RHS expression: %w", err)
		}

		return append(append(lhsOps, rhsOps...),
			x86.PopOp{Dst: x86.Rdi},
			x86.PopOp{Dst: x86.Rax},
			x86.StoreOp{Addr: x86.Rax, Src: x86.Rdi},
			x86.PushOp{Src: x86.Rdi},
		), nil
	}

	lhsOps, err := l.HandleExpression(expression.Lhs)
	if err != nil {
		return nil, fmt.Errorf("error handling nested LHS expression: %w", err)
	}
	rhsOps, err := l.HandleExpression(expression.Rhs)
	if err != nil {
		return nil, fmt.Errorf("error handling nested RHS expression: %w", err)
	}

	out := append(append(lhsOps, rhsOps...), x86.PopOp{Dst: x86.Rdi}, x86.PopOp{Dst: x86.Rax})

	switch expression.Op {
	case Add:
		out = append(out, x86.BinaryOp{Op: x86.Add, Dst: x86.Rax, Src: x86.Rdi})
	case Sub:
		out = append(out, x86.BinaryOp{Op: x86.Sub, Dst: x86.Rax, Src: x86.Rdi})
	case Mul:
		out = append(out, x86.BinaryOp{Op: x86.Imul, Dst: x86.Rax, Src: x86.Rdi})
	case Div: // Signed division wants rax sign-extended into rdx:rax first
		out = append(out, x86.CqoOp{}, x86.IdivOp{Divisor: x86.Rdi})
	case Eq:
		out = append(out, x86.BinaryOp{Op: x86.Cmp, Dst: x86.Rax, Src: x86.Rdi},
			x86.SetOp{Cond: x86.SetEq, Dst: x86.Al}, x86.MovzbOp{Dst: x86.Rax, Src: x86.Al})
	case Neq:
		out = append(out, x86.BinaryOp{Op: x86.Cmp, Dst: x86.Rax, Src: x86.Rdi},
			x86.SetOp{Cond: x86.SetNe, Dst: x86.Al}, x86.MovzbOp{Dst: x86.Rax, Src: x86.Al})
	case Lt:
		out = append(out, x86.BinaryOp{Op: x86.Cmp, Dst: x86.Rax, Src: x86.Rdi},
			x86.SetOp{Cond: x86.SetLt, Dst: x86.Al}, x86.MovzbOp{Dst: x86.Rax, Src: x86.Al})
	case Le:
		out = append(out, x86.BinaryOp{Op: x86.Cmp, Dst: x86.Rax, Src: x86.Rdi},
			x86.SetOp{Cond: x86.SetLe, Dst: x86.Al}, x86.MovzbOp{Dst: x86.Rax, Src: x86.Al})
	case Gt: // Same as Lt but with the compare operands swapped
		out = append(out, x86.BinaryOp{Op: x86.Cmp, Dst: x86.Rdi, Src: x86.Rax},
			x86.SetOp{Cond: x86.SetLt, Dst: x86.Al}, x86.MovzbOp{Dst: x86.Rax, Src: x86.Al})
	case Ge: // Same as Le but with the compare operands swapped
		out = append(out, x86.BinaryOp{Op: x86.Cmp, Dst: x86.Rdi, Src: x86.Rax},
			x86.SetOp{Cond: x86.SetLe, Dst: x86.Al}, x86.MovzbOp{Dst: x86.Rax, Src: x86.Al})
	default:
		return nil, fmt.Errorf("unrecognized binary expression type: %s", expression.Op)
	}

	return append(out, x86.PushOp{Src: x86.Rax}), nil
}

// Specialized function to convert a 'cc.FuncCallExpr' to a list of 'x86.Instruction'.
//
// Arguments are evaluated left to right, each leaving its value on the stack; rax is
// loaded with the argument count, then the values are popped into the SysV argument
// registers in reverse order so the first argument ends up in the first register.
func (l *Lowerer) HandleFuncCallExpr(expression FuncCallExpr) ([]x86.Instruction, error) {
	if len(expression.Arguments) > MaxCallArgs {
		return nil, fmt.Errorf("call to '%s' passes %d arguments, at most %d are supported", expression.Name, len(expression.Arguments), MaxCallArgs)
	}

	argChunks := [][]x86.Instruction{}
	for _, argument := range expression.Arguments {
		ops, err := l.HandleExpression(argument)
		if err != nil {
			return nil, fmt.Errorf("error handling argument of call to '%s': %w", expression.Name, err)
		}
		argChunks = append(argChunks, ops)
	}

	out := append(lo.Flatten(argChunks),
		x86.BinaryOp{Op: x86.Mov, Dst: x86.Rax, Src: x86.Immediate(len(expression.Arguments))})

	for i := len(expression.Arguments) - 1; i >= 0; i-- {
		out = append(out, x86.PopOp{Dst: x86.ArgRegisters[i]})
	}

	return append(out, x86.CallOp{Name: expression.Name}, x86.PushOp{Src: x86.Rax}), nil
}

// Specialized function to convert a 'cc.AddrExpr' to a list of 'x86.Instruction'.
// The address of the target is the value, so this is exactly the lvalue path.
func (l *Lowerer) HandleAddrExpr(expression AddrExpr) ([]x86.Instruction, error) {
	return l.HandleLvalue(expression.Target)
}

// Specialized function to convert a 'cc.DerefExpr' to a list of 'x86.Instruction'.
func (l *Lowerer) HandleDerefExpr(expression DerefExpr) ([]x86.Instruction, error) {
	ops, err := l.HandleExpression(expression.Target)
	if err != nil {
		return nil, fmt.Errorf("error handling nested expression: %w", err)
	}

	return append(ops,
		x86.PopOp{Dst: x86.Rax},
		x86.LoadOp{Dst: x86.Rax, Addr: x86.Rax},
		x86.PushOp{Src: x86.Rax},
	), nil
}
