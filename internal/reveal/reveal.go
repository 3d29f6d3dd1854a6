// Package reveal implements stage 1 of the pipeline: distinguishing
// variable references from function references. A validated tree cannot
// tell, syntactically, whether a bare name refers to a let-bound variable
// or a top-level function; reveal resolves that by tracking which names are
// currently shadowed by a binder and rewriting every remaining `Var` whose
// symbol names a top-level definition into a `FunRef`.
//
// Grounded on original_source/compiler/src/passes/reveal/{reveal,mod}.rs:
// the scope there is seeded with every definition name and popped/pushed
// exactly at Let/loop/function-param binders, which is the scope-stack
// discipline this file follows.
package reveal

import (
	"github.com/pkg/errors"

	"github.com/loomlang/loomc/internal/ast"
	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/types"
)

// scope is a push/pop stack of shadowed names; a name present here refers
// to a local variable even if a same-named top-level function exists.
type scope struct {
	frames []map[symtab.UniqueSym]bool
}

func newScope() *scope { return &scope{frames: []map[symtab.UniqueSym]bool{{}}} }

func (s *scope) push() { s.frames = append(s.frames, map[symtab.UniqueSym]bool{}) }

func (s *scope) pop() { s.frames = s.frames[:len(s.frames)-1] }

func (s *scope) bind(sym symtab.UniqueSym) { s.frames[len(s.frames)-1][sym] = true }

func (s *scope) isLocal(sym symtab.UniqueSym) bool {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i][sym] {
			return true
		}
	}
	return false
}

// Reveal rewrites prog in place's functions (returning a fresh Program; the
// pipeline treats every stage as producing a new value) so that every `Var`
// naming a top-level function becomes a `FunRef`.
func Reveal(prog *ast.Program) (*ast.Program, error) {
	defs := map[symtab.UniqueSym]bool{}
	for _, f := range prog.Funcs {
		defs[f.Name] = true
	}

	out := &ast.Program{Structs: prog.Structs, Entry: prog.Entry}
	for _, f := range prog.Funcs {
		sc := newScope()
		for _, p := range f.Params {
			sc.bind(p.Sym)
		}
		body, err := revealExpr(f.Body, sc, defs)
		if err != nil {
			return nil, errors.Wrapf(err, "reveal: function %s", f.Name)
		}
		nf := *f
		nf.Body = body
		out.Funcs = append(out.Funcs, &nf)
	}
	return out, nil
}

func revealExpr(e *ast.Expr, sc *scope, defs map[symtab.UniqueSym]bool) (*ast.Expr, error) {
	if e == nil {
		return nil, nil
	}
	n := *e
	switch e.Kind {
	case ast.EVar:
		// The runtime entry points (print/read) are not among prog.Funcs;
		// a non-local name of function type refers to one of them.
		if !sc.isLocal(e.Sym) && (defs[e.Sym] || e.Type.Kind == types.Fn) {
			n.Kind = ast.EFunRef
		}
		return &n, nil

	case ast.EUnary:
		a, err := revealExpr(e.A, sc, defs)
		if err != nil {
			return nil, err
		}
		n.A = a
		return &n, nil

	case ast.EBinary:
		a, err := revealExpr(e.A, sc, defs)
		if err != nil {
			return nil, err
		}
		b, err := revealExpr(e.B, sc, defs)
		if err != nil {
			return nil, err
		}
		n.A, n.B = a, b
		return &n, nil

	case ast.EApply:
		fn, err := revealExpr(e.Fn, sc, defs)
		if err != nil {
			return nil, err
		}
		args := make([]*ast.Expr, len(e.Args))
		for i, a := range e.Args {
			args[i], err = revealExpr(a, sc, defs)
			if err != nil {
				return nil, err
			}
		}
		n.Fn, n.Args = fn, args
		return &n, nil

	case ast.ELet:
		val, err := revealExpr(e.A, sc, defs)
		if err != nil {
			return nil, err
		}
		sc.push()
		sc.bind(e.Sym)
		body, err := revealExpr(e.B, sc, defs)
		sc.pop()
		if err != nil {
			return nil, err
		}
		n.A, n.B = val, body
		return &n, nil

	case ast.EIf:
		cond, err := revealExpr(e.A, sc, defs)
		if err != nil {
			return nil, err
		}
		thn, err := revealExpr(e.B, sc, defs)
		if err != nil {
			return nil, err
		}
		els, err := revealExpr(e.C, sc, defs)
		if err != nil {
			return nil, err
		}
		n.A, n.B, n.C = cond, thn, els
		return &n, nil

	case ast.ELoop:
		sc.push()
		body, err := revealExpr(e.A, sc, defs)
		sc.pop()
		if err != nil {
			return nil, err
		}
		n.A = body
		return &n, nil

	case ast.EBreak, ast.EReturn:
		v, err := revealExpr(e.A, sc, defs)
		if err != nil {
			return nil, err
		}
		n.A = v
		return &n, nil

	case ast.ESeq:
		a, err := revealExpr(e.A, sc, defs)
		if err != nil {
			return nil, err
		}
		b, err := revealExpr(e.B, sc, defs)
		if err != nil {
			return nil, err
		}
		n.A, n.B = a, b
		return &n, nil

	case ast.EAssign:
		v, err := revealExpr(e.A, sc, defs)
		if err != nil {
			return nil, err
		}
		n.A = v
		return &n, nil

	case ast.EStructLit:
		fields := make([]ast.StructFieldInit, len(e.Fields))
		for i, f := range e.Fields {
			v, err := revealExpr(f.Value, sc, defs)
			if err != nil {
				return nil, err
			}
			fields[i] = ast.StructFieldInit{Field: f.Field, Value: v}
		}
		n.Fields = fields
		return &n, nil

	case ast.EFieldAccess:
		v, err := revealExpr(e.A, sc, defs)
		if err != nil {
			return nil, err
		}
		n.A = v
		return &n, nil

	case ast.EContinue, ast.EAtomLit, ast.EFunRef, ast.EAsm:
		return &n, nil

	default:
		return nil, errors.Errorf("reveal: unhandled expr kind %v", e.Kind)
	}
}
