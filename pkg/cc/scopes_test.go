package cc_test

import (
	"testing"

	"its-hmny.dev/minicc/pkg/cc"
)

func TestSymbolDeclaration(t *testing.T) {
	scopes := cc.NewSymbolTable()

	t.Run("Slots are assigned in declaration order", func(t *testing.T) {
		first, err := scopes.Declare("a", cc.IntType())
		if err != nil || first.Offset != 8 {
			t.Fatalf("Expected offset 8 for first symbol, got %d (err: %v)", first.Offset, err)
		}

		second, err := scopes.Declare("b", cc.IntType())
		if err != nil || second.Offset != 16 {
			t.Fatalf("Expected offset 16 for second symbol, got %d (err: %v)", second.Offset, err)
		}

		third, err := scopes.Declare("p", cc.PointerTo(cc.IntType()))
		if err != nil || third.Offset != 24 {
			t.Fatalf("Expected offset 24 for third symbol, got %d (err: %v)", third.Offset, err)
		}
	})

	t.Run("Redeclaration is rejected", func(t *testing.T) {
		if _, err := scopes.Declare("a", cc.IntType()); err == nil {
			t.Errorf("Expected an error when redeclaring 'a'")
		}
		// The failed declaration must not have claimed a slot
		if scopes.Count() != 3 {
			t.Errorf("Expected 3 symbols after failed redeclaration, got %d", scopes.Count())
		}
	})
}

func TestSymbolResolution(t *testing.T) {
	scopes := cc.NewSymbolTable()
	scopes.Declare("x", cc.IntType())
	scopes.Declare("ptr", cc.PointerTo(cc.IntType()))

	t.Run("Declared symbols resolve with their declaration-site info", func(t *testing.T) {
		symbol, err := scopes.Resolve("x")
		if err != nil || symbol.Offset != 8 || symbol.DataType.Kind != cc.Integer {
			t.Errorf("Unexpected resolution for 'x': %+v (err: %v)", symbol, err)
		}

		symbol, err = scopes.Resolve("ptr")
		if err != nil || symbol.Offset != 16 || symbol.DataType.Kind != cc.Pointer {
			t.Errorf("Unexpected resolution for 'ptr': %+v (err: %v)", symbol, err)
		}
	})

	t.Run("Undeclared identifiers are a hard error", func(t *testing.T) {
		if _, err := scopes.Resolve("ghost"); err == nil {
			t.Errorf("Expected an error when resolving an undeclared identifier")
		}
	})
}

func TestLocalArea(t *testing.T) {
	test := func(declared int, expected int) {
		scopes := cc.NewSymbolTable()
		for i := 0; i < declared; i++ {
			scopes.Declare(string(rune('a'+i)), cc.IntType())
		}

		if area := scopes.LocalArea(); area != expected {
			t.Errorf("Expected local area %d for %d symbols, got %d", expected, declared, area)
		}
		// The area is always a nonnegative multiple of 16 and covers every slot
		if area := scopes.LocalArea(); area%16 != 0 || area < declared*8 {
			t.Errorf("Local area %d violates the frame alignment contract", area)
		}
	}

	test(0, 0)  // No locals, nothing to reserve
	test(1, 16) // Odd slot counts round up to the next multiple of 16
	test(2, 16)
	test(3, 32)
	test(4, 32)
	test(6, 48)
}
