package cc

import (
	"fmt"
	"strings"
)

// The type system is deliberately skeletal: types are carried through the symbol
// environment and the AST but, apart from existing, they are never consulted by
// the lowering phase (every slot is 8 bytes wide and pointer arithmetic is not
// scaled by the pointee size). 'int' is the only base type name.

type Type struct {
	Kind TypeKind // Either 'Integer' or 'Pointer'
	Base *Type    // The pointee type, set only when Kind == Pointer
}

type TypeKind string // Enum to manage the kinds allowed for a Type

const (
	Integer TypeKind = "int"
	Pointer TypeKind = "pointer"
)

// Shorthand constructors, they keep the parsing code free of struct literals.
func IntType() Type         { return Type{Kind: Integer} }
func PointerTo(t Type) Type { return Type{Kind: Pointer, Base: &t} }

// Renders the type the way the source spells it (e.g. "int", "int*", "int**").
func (t Type) String() string {
	if t.Kind == Pointer && t.Base != nil {
		return t.Base.String() + "*"
	}
	return string(Integer)
}

// Resolves a source-level type spelling (base name plus the number of trailing
// '*') to its 'Type' counterpart. Any base name other than 'int' is an error,
// there are no user-definable type names in the language.
func ResolveTypeName(name string, stars int) (Type, error) {
	if strings.TrimSpace(name) != string(Integer) {
		return Type{}, fmt.Errorf("unknown type name '%s'", name)
	}

	resolved := IntType()
	for range stars {
		resolved = PointerTo(resolved)
	}
	return resolved, nil
}
