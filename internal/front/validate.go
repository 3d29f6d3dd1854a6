package front

import (
	"github.com/loomlang/loomc/internal/ast"
)

// Validate performs the whole-program checks that only make sense once
// every function has been parsed: spec.md §7 lists "missing main function"
// as a user error alongside the per-expression checks parser.go/expr.go
// already raise as they go (undeclared variable, arity/type mismatch,
// duplicate/unknown struct field, break/continue outside loop, assignment
// to an immutable binding).
func Validate(prog *ast.Program) error {
	if prog.Entry.ID == 0 {
		return &UserError{Msg: "missing main function"}
	}
	return nil
}
