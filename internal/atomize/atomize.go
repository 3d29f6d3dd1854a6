// Package atomize implements stage 2: rewriting every sub-expression that
// appears in a position requiring an atom (primitive/call argument, struct
// field initialiser, field-access target) into a fresh `let tmp = <expr> in
// ...` wrapper. Literals and bare variables pass through unchanged.
//
// Grounded on original_source/compiler/src/passes/atomize/atomize.rs: the
// atomize_expr / atomize_atom split and the right-fold that wraps
// accumulated temporaries around the final atom are reproduced here as
// atomizeExpr / atomizeAtom / wrapBindings.
package atomize

import (
	"github.com/pkg/errors"

	"github.com/loomlang/loomc/internal/ast"
	"github.com/loomlang/loomc/internal/symtab"
)

type binding struct {
	Sym symtab.UniqueSym
	Val *ast.Expr
}

// Atomize rewrites every function body of prog into atomized form.
func Atomize(prog *ast.Program, tbl *symtab.Table) (*ast.Program, error) {
	out := &ast.Program{Structs: prog.Structs, Entry: prog.Entry}
	for _, f := range prog.Funcs {
		body, err := atomizeExpr(f.Body, tbl)
		if err != nil {
			return nil, errors.Wrapf(err, "atomize: function %s", f.Name)
		}
		nf := *f
		nf.Body = body
		out.Funcs = append(out.Funcs, &nf)
	}
	return out, nil
}

// atomizeAtom reduces e to an atom, returning any temporaries that must be
// bound before it is used.
func atomizeAtom(e *ast.Expr, tbl *symtab.Table) ([]binding, *ast.Expr, error) {
	if e == nil {
		return nil, nil, nil
	}
	if e.IsAtom() {
		return nil, e, nil
	}
	rewritten, err := atomizeExpr(e, tbl)
	if err != nil {
		return nil, nil, err
	}
	sym := tbl.FreshTemp("atom")
	atom := &ast.Expr{Kind: ast.EVar, Sym: sym, Type: e.Type}
	return []binding{{Sym: sym, Val: rewritten}}, atom, nil
}

func wrapBindings(bs []binding, body *ast.Expr) *ast.Expr {
	for i := len(bs) - 1; i >= 0; i-- {
		b := bs[i]
		body = &ast.Expr{Kind: ast.ELet, Sym: b.Sym, A: b.Val, B: body, Type: body.Type}
	}
	return body
}

// atomizeExpr rewrites e so that every Prim/Apply/StructLit/FieldAccess
// argument is an atom; e itself need not be atomic on return.
func atomizeExpr(e *ast.Expr, tbl *symtab.Table) (*ast.Expr, error) {
	if e == nil {
		return nil, nil
	}
	n := *e
	switch e.Kind {
	case ast.EAtomLit, ast.EVar, ast.EFunRef, ast.EContinue:
		return &n, nil

	case ast.EUnary:
		bs, a, err := atomizeAtom(e.A, tbl)
		if err != nil {
			return nil, err
		}
		n.A = a
		return wrapBindings(bs, &n), nil

	case ast.EBinary:
		bsA, a, err := atomizeAtom(e.A, tbl)
		if err != nil {
			return nil, err
		}
		bsB, b, err := atomizeAtom(e.B, tbl)
		if err != nil {
			return nil, err
		}
		n.A, n.B = a, b
		return wrapBindings(append(bsA, bsB...), &n), nil

	case ast.EApply:
		bsFn, fn, err := atomizeAtom(e.Fn, tbl)
		if err != nil {
			return nil, err
		}
		all := bsFn
		args := make([]*ast.Expr, len(e.Args))
		for i, a := range e.Args {
			bs, atom, err := atomizeAtom(a, tbl)
			if err != nil {
				return nil, err
			}
			args[i] = atom
			all = append(all, bs...)
		}
		n.Fn, n.Args = fn, args
		return wrapBindings(all, &n), nil

	case ast.ELet:
		val, err := atomizeExpr(e.A, tbl)
		if err != nil {
			return nil, err
		}
		body, err := atomizeExpr(e.B, tbl)
		if err != nil {
			return nil, err
		}
		n.A, n.B = val, body
		return &n, nil

	case ast.EIf:
		bs, cond, err := atomizeAtom(e.A, tbl)
		if err != nil {
			return nil, err
		}
		thn, err := atomizeExpr(e.B, tbl)
		if err != nil {
			return nil, err
		}
		els, err := atomizeExpr(e.C, tbl)
		if err != nil {
			return nil, err
		}
		n.A, n.B, n.C = cond, thn, els
		return wrapBindings(bs, &n), nil

	case ast.ELoop:
		body, err := atomizeExpr(e.A, tbl)
		if err != nil {
			return nil, err
		}
		n.A = body
		return &n, nil

	case ast.EBreak, ast.EReturn:
		if e.A == nil {
			return &n, nil
		}
		bs, v, err := atomizeAtom(e.A, tbl)
		if err != nil {
			return nil, err
		}
		n.A = v
		return wrapBindings(bs, &n), nil

	case ast.ESeq:
		a, err := atomizeExpr(e.A, tbl)
		if err != nil {
			return nil, err
		}
		b, err := atomizeExpr(e.B, tbl)
		if err != nil {
			return nil, err
		}
		n.A, n.B = a, b
		return &n, nil

	case ast.EAssign:
		bs, v, err := atomizeAtom(e.A, tbl)
		if err != nil {
			return nil, err
		}
		n.A = v
		return wrapBindings(bs, &n), nil

	case ast.EStructLit:
		var all []binding
		fields := make([]ast.StructFieldInit, len(e.Fields))
		for i, f := range e.Fields {
			bs, atom, err := atomizeAtom(f.Value, tbl)
			if err != nil {
				return nil, err
			}
			fields[i] = ast.StructFieldInit{Field: f.Field, Value: atom}
			all = append(all, bs...)
		}
		n.Fields = fields
		return wrapBindings(all, &n), nil

	case ast.EFieldAccess:
		bs, a, err := atomizeAtom(e.A, tbl)
		if err != nil {
			return nil, err
		}
		n.A = a
		return wrapBindings(bs, &n), nil

	case ast.EAsm:
		return &n, nil

	default:
		return nil, errors.Errorf("atomize: unhandled expr kind %v", e.Kind)
	}
}
