// Package types models the small static type system shared across every
// pipeline stage: Int, Bool, Unit, Never, function types, and user-defined
// structs (Var).
package types

import (
	"strings"

	"github.com/loomlang/loomc/internal/symtab"
)

// Kind discriminates the members of the Type sum.
type Kind int

const (
	Int Kind = iota
	Bool
	Unit
	// Never is the type of expressions that never produce a value:
	// break/return/continue, and a loop with no reachable break.
	Never
	Fn
	// Struct names a user-defined record type by its declaration symbol.
	Struct
)

// Type is a tagged union over the language's small type grammar. Fn carries
// Params/Result; Struct carries Name plus a pointer to its field list
// (resolved once by the front end and shared by reference).
type Type struct {
	Kind   Kind
	Params []Type // Fn only
	Result *Type  // Fn only
	Name   symtab.UniqueSym
	Def    *StructDef // Struct only, resolved
}

// Field is one (name, type) member of a struct definition.
type Field struct {
	Name string
	Type Type
}

// StructDef is the list of fields backing a Var/Struct type, in declared
// order; field order also fixes the leaf-flattening order eliminate uses.
type StructDef struct {
	Name   symtab.UniqueSym
	Fields []Field
}

func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case Fn:
		if len(t.Params) != len(o.Params) || t.Result == nil || o.Result == nil {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
		return t.Result.Equal(*o.Result)
	case Struct:
		return t.Name.Equal(o.Name)
	default:
		return true
	}
}

// IsScalar reports whether a symbol of this type survives eliminate
// unchanged (everything except Struct is already scalar).
func (t Type) IsScalar() bool { return t.Kind != Struct }

// Leaves returns the flattened (field-path, type) pairs of a struct type in
// declaration order, recursing through nested structs. Scalar types return
// a single leaf with an empty path.
func (t Type) Leaves() []Leaf {
	if t.Kind != Struct || t.Def == nil {
		return []Leaf{{Path: nil, Type: t}}
	}
	var out []Leaf
	for _, f := range t.Def.Fields {
		for _, sub := range f.Type.Leaves() {
			out = append(out, Leaf{Path: append([]string{f.Name}, sub.Path...), Type: sub.Type})
		}
	}
	return out
}

// Leaf is one scalar field reached by a dotted path from a struct root.
type Leaf struct {
	Path []string
	Type Type
}

func (l Leaf) String() string { return strings.Join(l.Path, ".") }

func (t Type) String() string {
	switch t.Kind {
	case Int:
		return "I64"
	case Bool:
		return "Bool"
	case Unit:
		return "Unit"
	case Never:
		return "Never"
	case Fn:
		var ps []string
		for _, p := range t.Params {
			ps = append(ps, p.String())
		}
		r := "Unit"
		if t.Result != nil {
			r = t.Result.String()
		}
		return "fn(" + strings.Join(ps, ", ") + ") -> " + r
	case Struct:
		return t.Name.String()
	}
	return "?"
}
