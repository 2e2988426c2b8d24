package cc

import (
	"fmt"

	"its-hmny.dev/minicc/pkg/utils"
)

// A symbol is one named stack slot inside a function's frame: parameters and
// declared locals alike. The offset is subtracted from the frame base pointer,
// so slot n lives at [rbp - offset] with offset = 8, 16, 24, ... in declaration
// order (parameters claim the first slots).
type Symbol struct {
	Name     string
	Offset   int
	DataType Type
}

// The per-function symbol environment. The language has no block scoping, so a
// single flat table covers the whole function: it is created empty at the start
// of each definition, filled left-to-right as parameters and declarations are
// encountered, and discarded once the body has been walked.
type SymbolTable struct {
	entries utils.Stack[Symbol]
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{entries: utils.NewStack[Symbol]()}
}

// Registers a new symbol and assigns it the next free slot. Redeclaring a name
// already present in the table is an error, shadowing needs block scoping which
// the language does not have.
func (st *SymbolTable) Declare(name string, dataType Type) (Symbol, error) {
	for _, entry := range st.entries.Iterator() {
		if entry.Name == name {
			return Symbol{}, fmt.Errorf("variable '%s' already declared in this function", name)
		}
	}

	symbol := Symbol{Name: name, Offset: (st.entries.Count() + 1) * 8, DataType: dataType}
	st.entries.Push(symbol)
	return symbol, nil
}

// Looks a symbol up by name. A miss means the identifier was used before any
// declaration, which the language treats as a hard error.
func (st *SymbolTable) Resolve(name string) (Symbol, error) {
	for _, entry := range st.entries.Iterator() {
		if entry.Name == name {
			return entry, nil
		}
	}

	return Symbol{}, fmt.Errorf("variable '%s' undeclared, not found in any scope", name)
}

// Returns the number of slots claimed so far (parameters included).
func (st *SymbolTable) Count() int { return st.entries.Count() }

// The stack space the function prologue must reserve: 8 bytes per slot, rounded
// up to the next multiple of 16 to keep the frame ABI-aligned.
func (st *SymbolTable) LocalArea() int {
	area := st.entries.Count() * 8
	if rem := area % 16; rem != 0 {
		area += 16 - rem
	}
	return area
}
