package cc_test

import (
	"reflect"
	"testing"

	"its-hmny.dev/minicc/pkg/cc"
	"its-hmny.dev/minicc/pkg/x86"
)

// Counts the net number of values the given instruction sequence leaves on the
// runtime stack (pushes minus pops), the invariant every lowered expression
// (+1) and statement (0) must respect.
func stackDelta(instructions []x86.Instruction) int {
	depth := 0
	for _, instruction := range instructions {
		switch instruction.(type) {
		case x86.PushOp:
			depth++
		case x86.PopOp:
			depth--
		}
	}
	return depth
}

func TestFunctionLowering(t *testing.T) {
	program := cc.Program{{
		Name:      "main",
		Return:    cc.IntType(),
		Body:      []cc.Statement{cc.ReturnStmt{Expr: cc.IntegerExpr{Value: 0}}},
		LocalArea: 0,
	}}

	lowerer := cc.NewLowerer(program)
	lowered, err := lowerer.Lower()
	if err != nil {
		t.Fatalf("Unexpected lowering failure: %s", err)
	}

	expected := x86.Program{
		// Prologue: save the caller frame, claim the (empty) local area
		x86.FuncDecl{Name: "main"},
		x86.PushOp{Src: x86.Rbp},
		x86.BinaryOp{Op: x86.Mov, Dst: x86.Rbp, Src: x86.Rsp},
		x86.BinaryOp{Op: x86.Sub, Dst: x86.Rsp, Src: x86.Immediate(0)},
		x86.BinaryOp{Op: x86.Mov, Dst: x86.Rax, Src: x86.Rbp},
		// return 0
		x86.PushOp{Src: x86.Immediate(0)},
		x86.PopOp{Dst: x86.Rax},
		x86.BinaryOp{Op: x86.Mov, Dst: x86.Rsp, Src: x86.Rbp},
		x86.PopOp{Dst: x86.Rbp},
		x86.RetOp{},
		// Default epilogue, unreachable here but always emitted
		x86.BinaryOp{Op: x86.Mov, Dst: x86.Rsp, Src: x86.Rbp},
		x86.PopOp{Dst: x86.Rbp},
		x86.RetOp{},
	}

	if !reflect.DeepEqual(lowered, expected) {
		t.Errorf("Unexpected lowering output:\n got: %+v\nwant: %+v", lowered, expected)
	}
}

func TestArgumentSpill(t *testing.T) {
	program := cc.Program{{
		Name:   "add",
		Return: cc.IntType(),
		Params: []cc.Param{
			{Name: "a", DataType: cc.IntType()},
			{Name: "b", DataType: cc.IntType()},
		},
		Body:      []cc.Statement{cc.ReturnStmt{Expr: cc.IntegerExpr{Value: 0}}},
		LocalArea: 16,
	}}

	lowerer := cc.NewLowerer(program)
	lowered, err := lowerer.Lower()
	if err != nil {
		t.Fatalf("Unexpected lowering failure: %s", err)
	}

	// The prologue walks rax down the frame, one slot per parameter, spilling
	// the SysV argument registers in order.
	expected := []x86.Instruction{
		x86.BinaryOp{Op: x86.Mov, Dst: x86.Rax, Src: x86.Rbp},
		x86.BinaryOp{Op: x86.Sub, Dst: x86.Rax, Src: x86.Immediate(8)},
		x86.StoreOp{Addr: x86.Rax, Src: x86.Rdi},
		x86.BinaryOp{Op: x86.Sub, Dst: x86.Rax, Src: x86.Immediate(8)},
		x86.StoreOp{Addr: x86.Rax, Src: x86.Rsi},
	}

	if !reflect.DeepEqual([]x86.Instruction(lowered[4:9]), expected) {
		t.Errorf("Unexpected argument spill sequence: %+v", lowered[4:9])
	}
}

func TestCallLowering(t *testing.T) {
	lowerer := cc.NewLowerer(cc.Program{})

	t.Run("Arguments pop in reverse into the SysV registers", func(t *testing.T) {
		call := cc.FuncCallExpr{Name: "f", Arguments: []cc.Expression{
			cc.IntegerExpr{Value: 1}, cc.IntegerExpr{Value: 2},
		}}

		lowered, err := lowerer.HandleExpression(call)
		if err != nil {
			t.Fatalf("Unexpected lowering failure: %s", err)
		}

		expected := []x86.Instruction{
			x86.PushOp{Src: x86.Immediate(1)},
			x86.PushOp{Src: x86.Immediate(2)},
			x86.BinaryOp{Op: x86.Mov, Dst: x86.Rax, Src: x86.Immediate(2)},
			// Reverse order, so the first argument lands in the first register
			x86.PopOp{Dst: x86.Rsi},
			x86.PopOp{Dst: x86.Rdi},
			x86.CallOp{Name: "f"},
			x86.PushOp{Src: x86.Rax},
		}

		if !reflect.DeepEqual(lowered, expected) {
			t.Errorf("Unexpected call sequence:\n got: %+v\nwant: %+v", lowered, expected)
		}
	})

	t.Run("More than 6 arguments are rejected", func(t *testing.T) {
		arguments := []cc.Expression{}
		for i := 0; i < 7; i++ {
			arguments = append(arguments, cc.IntegerExpr{Value: int32(i)})
		}

		if _, err := lowerer.HandleExpression(cc.FuncCallExpr{Name: "f", Arguments: arguments}); err == nil {
			t.Errorf("Expected an error for a call with 7 arguments")
		}
	})
}

func TestOperatorSelection(t *testing.T) {
	lowerer := cc.NewLowerer(cc.Program{})

	lower := func(op cc.Op) []x86.Instruction {
		expr := cc.BinaryExpr{Op: op, Lhs: cc.IntegerExpr{Value: 8}, Rhs: cc.IntegerExpr{Value: 2}}
		lowered, err := lowerer.HandleExpression(expr)
		if err != nil {
			t.Fatalf("Unexpected lowering failure for %s: %s", op, err)
		}
		return lowered
	}

	t.Run("Division sign-extends before idiv", func(t *testing.T) {
		lowered := lower(cc.Div)

		expected := []x86.Instruction{
			x86.PushOp{Src: x86.Immediate(8)},
			x86.PushOp{Src: x86.Immediate(2)},
			x86.PopOp{Dst: x86.Rdi},
			x86.PopOp{Dst: x86.Rax},
			x86.CqoOp{},
			x86.IdivOp{Divisor: x86.Rdi},
			x86.PushOp{Src: x86.Rax},
		}
		if !reflect.DeepEqual(lowered, expected) {
			t.Errorf("Unexpected division sequence: %+v", lowered)
		}
	})

	t.Run("Less-than compares rax against rdi", func(t *testing.T) {
		lowered := lower(cc.Lt)

		tail := lowered[4:]
		expected := []x86.Instruction{
			x86.BinaryOp{Op: x86.Cmp, Dst: x86.Rax, Src: x86.Rdi},
			x86.SetOp{Cond: x86.SetLt, Dst: x86.Al},
			x86.MovzbOp{Dst: x86.Rax, Src: x86.Al},
			x86.PushOp{Src: x86.Rax},
		}
		if !reflect.DeepEqual(tail, expected) {
			t.Errorf("Unexpected comparison sequence: %+v", tail)
		}
	})

	t.Run("Greater-than swaps the compare operands", func(t *testing.T) {
		lowered := lower(cc.Gt)

		if cmp := lowered[4].(x86.BinaryOp); cmp.Dst != x86.Rdi || cmp.Src != x86.Operand(x86.Rax) {
			t.Errorf("Expected 'cmp rdi, rax' for greater-than, got %+v", cmp)
		}
		if set := lowered[5].(x86.SetOp); set.Cond != x86.SetLt {
			t.Errorf("Expected 'setl' for greater-than, got %+v", set)
		}
	})
}

func TestAssignmentLowering(t *testing.T) {
	lowerer := cc.NewLowerer(cc.Program{})

	t.Run("Variable target stores through its slot address", func(t *testing.T) {
		expr := cc.BinaryExpr{
			Op:  cc.Assign,
			Lhs: cc.VarExpr{Name: "a", Offset: 8, DataType: cc.IntType()},
			Rhs: cc.IntegerExpr{Value: 5},
		}

		lowered, err := lowerer.HandleExpression(expr)
		if err != nil {
			t.Fatalf("Unexpected lowering failure: %s", err)
		}

		expected := []x86.Instruction{
			// The slot address first, not the variable's value
			x86.BinaryOp{Op: x86.Mov, Dst: x86.Rax, Src: x86.Rbp},
			x86.BinaryOp{Op: x86.Sub, Dst: x86.Rax, Src: x86.Immediate(8)},
			x86.PushOp{Src: x86.Rax},
			x86.PushOp{Src: x86.Immediate(5)},
			x86.PopOp{Dst: x86.Rdi},
			x86.PopOp{Dst: x86.Rax},
			x86.StoreOp{Addr: x86.Rax, Src: x86.Rdi},
			// The stored value is the expression's result
			x86.PushOp{Src: x86.Rdi},
		}
		if !reflect.DeepEqual(lowered, expected) {
			t.Errorf("Unexpected assignment sequence:\n got: %+v\nwant: %+v", lowered, expected)
		}
	})

	t.Run("Dereference target evaluates the pointer as the address", func(t *testing.T) {
		expr := cc.BinaryExpr{
			Op:  cc.Assign,
			Lhs: cc.DerefExpr{Target: cc.VarExpr{Name: "p", Offset: 16, DataType: cc.PointerTo(cc.IntType())}},
			Rhs: cc.IntegerExpr{Value: 9},
		}

		lowered, err := lowerer.HandleExpression(expr)
		if err != nil {
			t.Fatalf("Unexpected lowering failure: %s", err)
		}
		// The target is the pointer's value: slot address, load, then the store
		if _, isLoad := lowered[4].(x86.LoadOp); !isLoad {
			t.Errorf("Expected the pointer value to be loaded, got %+v", lowered[4])
		}
		if delta := stackDelta(lowered); delta != 1 {
			t.Errorf("Expected a net stack delta of 1, got %d", delta)
		}
	})

	t.Run("Non-lvalue targets are rejected", func(t *testing.T) {
		targets := []cc.Expression{
			cc.IntegerExpr{Value: 1},
			cc.BinaryExpr{Op: cc.Add, Lhs: cc.IntegerExpr{Value: 1}, Rhs: cc.IntegerExpr{Value: 2}},
			cc.FuncCallExpr{Name: "f"},
			cc.AddrExpr{Target: cc.VarExpr{Name: "x", Offset: 8}},
		}

		for _, target := range targets {
			expr := cc.BinaryExpr{Op: cc.Assign, Lhs: target, Rhs: cc.IntegerExpr{Value: 0}}
			if _, err := lowerer.HandleExpression(expr); err == nil {
				t.Errorf("Expected an lvalue error for target %T", target)
			}
		}
	})
}

func TestStackDiscipline(t *testing.T) {
	lowerer := cc.NewLowerer(cc.Program{})
	variable := cc.VarExpr{Name: "v", Offset: 8, DataType: cc.IntType()}

	t.Run("Every expression nets one pushed value", func(t *testing.T) {
		expressions := []cc.Expression{
			cc.IntegerExpr{Value: 42},
			variable,
			cc.BinaryExpr{Op: cc.Add, Lhs: variable, Rhs: cc.IntegerExpr{Value: 1}},
			cc.BinaryExpr{Op: cc.Assign, Lhs: variable, Rhs: cc.IntegerExpr{Value: 1}},
			cc.BinaryExpr{Op: cc.Eq, Lhs: variable, Rhs: variable},
			cc.AddrExpr{Target: variable},
			cc.DerefExpr{Target: variable},
			cc.FuncCallExpr{Name: "f", Arguments: []cc.Expression{variable, variable, variable}},
		}

		for _, expression := range expressions {
			lowered, err := lowerer.HandleExpression(expression)
			if err != nil {
				t.Fatalf("Unexpected lowering failure for %T: %s", expression, err)
			}
			if delta := stackDelta(lowered); delta != 1 {
				t.Errorf("Expected a net stack delta of 1 for %T, got %d", expression, delta)
			}
		}
	})

	t.Run("Every statement is stack-neutral", func(t *testing.T) {
		condition := cc.BinaryExpr{Op: cc.Lt, Lhs: variable, Rhs: cc.IntegerExpr{Value: 10}}
		increment := cc.BinaryExpr{Op: cc.Assign, Lhs: variable, Rhs: cc.BinaryExpr{Op: cc.Add, Lhs: variable, Rhs: cc.IntegerExpr{Value: 1}}}

		statements := []cc.Statement{
			cc.ExprStmt{Expr: increment},
			cc.DeclStmt{Name: "v", DataType: cc.IntType()},
			cc.IfStmt{Condition: condition, ThenBranch: cc.ExprStmt{Expr: increment}},
			cc.IfStmt{Condition: condition, ThenBranch: cc.ExprStmt{Expr: increment}, ElseBranch: cc.ExprStmt{Expr: variable}},
			cc.WhileStmt{Condition: condition, Body: cc.ExprStmt{Expr: increment}},
			cc.ForStmt{Init: increment, Condition: condition, Tail: increment, Body: cc.ExprStmt{Expr: increment}},
			cc.ForStmt{Body: cc.ExprStmt{Expr: increment}}, // for(;;) with no clauses
			cc.BlockStmt{Stmts: []cc.Statement{cc.ExprStmt{Expr: increment}, cc.ExprStmt{Expr: variable}}},
		}

		for _, statement := range statements {
			lowered, err := lowerer.HandleStatement(statement)
			if err != nil {
				t.Fatalf("Unexpected lowering failure for %T: %s", statement, err)
			}
			if delta := stackDelta(lowered); delta != 0 {
				t.Errorf("Expected a net stack delta of 0 for %T, got %d", statement, delta)
			}
		}
	})
}

func TestLabelNumbering(t *testing.T) {
	condition := cc.IntegerExpr{Value: 1}
	body := cc.ExprStmt{Expr: cc.IntegerExpr{Value: 0}}

	program := cc.Program{
		{
			Name: "first", Return: cc.IntType(), LocalArea: 0,
			Body: []cc.Statement{
				cc.WhileStmt{Condition: condition, Body: body},
				cc.ReturnStmt{Expr: cc.IntegerExpr{Value: 0}},
			},
		},
		{
			Name: "second", Return: cc.IntType(), LocalArea: 0,
			Body: []cc.Statement{
				cc.IfStmt{Condition: condition, ThenBranch: body, ElseBranch: body},
				cc.IfStmt{Condition: condition, ThenBranch: cc.IfStmt{Condition: condition, ThenBranch: body}},
				cc.ReturnStmt{Expr: cc.IntegerExpr{Value: 0}},
			},
		},
	}

	lowerer := cc.NewLowerer(program)
	lowered, err := lowerer.Lower()
	if err != nil {
		t.Fatalf("Unexpected lowering failure: %s", err)
	}

	declared := map[x86.LabelDecl]bool{}
	for _, instruction := range lowered {
		if label, isLabel := instruction.(x86.LabelDecl); isLabel {
			if declared[label] {
				t.Errorf("Label %+v declared twice in the same compilation unit", label)
			}
			declared[label] = true
		}
	}

	// The while in 'first' takes number 1, the constructs in 'second' continue
	// from there: numbering never restarts at function boundaries.
	expected := []x86.LabelDecl{
		{Tag: x86.Begin, Index: 1}, {Tag: x86.End, Index: 1},
		{Tag: x86.Else, Index: 2}, {Tag: x86.End, Index: 2},
		{Tag: x86.End, Index: 3}, {Tag: x86.End, Index: 4},
	}
	for _, label := range expected {
		if !declared[label] {
			t.Errorf("Expected label %+v to be declared", label)
		}
	}

	// Every jump lands on a label that exists
	for _, instruction := range lowered {
		if jump, isJump := instruction.(x86.JumpOp); isJump {
			if !declared[x86.LabelDecl{Tag: jump.Tag, Index: jump.Index}] {
				t.Errorf("Jump %+v targets an undeclared label", jump)
			}
		}
	}
}

func TestEmptyProgram(t *testing.T) {
	lowerer := cc.NewLowerer(cc.Program{})
	if _, err := lowerer.Lower(); err == nil {
		t.Errorf("Expected an error when lowering an empty program")
	}
}
