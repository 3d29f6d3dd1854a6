// Package eliminate implements stage 4: flattening every struct-typed
// symbol into one fresh scalar symbol per recursive leaf field, so that no
// variable of struct type survives past this pass.
//
// Grounded on original_source/compiler/src/passes/eliminate/eliminate_seq.rs:
// the per-Seq rewrite rules (field access -> rename via a (symbol,field)
// canonical map, struct literal -> one assignment per flattened field,
// struct-typed call args/returns -> multi-value apply/return) are
// reproduced arm-for-arm; the canonical-name map is this file's `canon`.
package eliminate

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/loomlang/loomc/internal/ast"
	"github.com/loomlang/loomc/internal/cfg"
	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/types"
)

type state struct {
	tbl   *symtab.Table
	canon map[string]symtab.UniqueSym
	// flat maps a struct-typed symbol to its flattened leaf symbols, in
	// declaration-leaf order, and the matching leaf types.
	flat      map[symtab.UniqueSym][]symtab.UniqueSym
	flatTypes map[symtab.UniqueSym][]types.Type
}

func newState(tbl *symtab.Table) *state {
	return &state{
		tbl:       tbl,
		canon:     map[string]symtab.UniqueSym{},
		flat:      map[symtab.UniqueSym][]symtab.UniqueSym{},
		flatTypes: map[symtab.UniqueSym][]types.Type{},
	}
}

func canonKey(base symtab.UniqueSym, path string) string {
	return fmt.Sprintf("%d#%s", base.ID, path)
}

func (s *state) canonSym(base symtab.UniqueSym, path string, leafType types.Type) symtab.UniqueSym {
	key := canonKey(base, path)
	if sym, ok := s.canon[key]; ok {
		return sym
	}
	name := base.Name
	if path != "" {
		name = base.Name + "." + path
	}
	sym := s.tbl.Fresh(name)
	s.canon[key] = sym
	return sym
}

// flattenSym registers base (of the given struct-or-scalar type) as a
// flattened symbol, allocating canonical leaf symbols on demand. A scalar
// type flattens to the symbol itself.
func (s *state) flattenSym(base symtab.UniqueSym, t types.Type) ([]symtab.UniqueSym, []types.Type) {
	if existing, ok := s.flat[base]; ok {
		return existing, s.flatTypes[base]
	}
	leaves := t.Leaves()
	if len(leaves) == 1 && leaves[0].Path == nil {
		s.flat[base] = []symtab.UniqueSym{base}
		s.flatTypes[base] = []types.Type{t}
		return s.flat[base], s.flatTypes[base]
	}
	var syms []symtab.UniqueSym
	var tys []types.Type
	for _, lf := range leaves {
		syms = append(syms, s.canonSym(base, strings.Join(lf.Path, "."), lf.Type))
		tys = append(tys, lf.Type)
	}
	s.flat[base] = syms
	s.flatTypes[base] = tys
	return syms, tys
}

// resolveAtom rewrites a scalar atom reference to its flattened (singular)
// symbol if it was previously renamed by a field-access elimination.
func (s *state) resolveAtom(a *ast.Expr) *ast.Expr {
	if a == nil || a.Kind != ast.EVar {
		return a
	}
	if mapped, ok := s.flat[a.Sym]; ok && len(mapped) == 1 && mapped[0] != a.Sym {
		n := *a
		n.Sym = mapped[0]
		return &n
	}
	return a
}

// flattenAtomList expands a (possibly struct-typed) atom into its leaf
// atoms, used for apply arguments.
func (s *state) flattenAtomList(a *ast.Expr) []*ast.Expr {
	if a.Type.Kind != types.Struct {
		return []*ast.Expr{s.resolveAtom(a)}
	}
	syms, tys := s.flattenSym(a.Sym, a.Type)
	out := make([]*ast.Expr, len(syms))
	for i, sym := range syms {
		out[i] = &ast.Expr{Kind: ast.EVar, Sym: sym, Type: tys[i]}
	}
	return out
}

// resolveLeafAtom finds the flattened atom for a (possibly nested) field
// path rooted at src, a struct-literal field initialiser (itself an atom
// after atomize: a literal or a variable bound to a prior Seq/param).
func (s *state) resolveLeafAtom(src *ast.Expr, subPath []string, leafType types.Type) *ast.Expr {
	if len(subPath) == 0 {
		return s.resolveAtom(src)
	}
	sym := s.canonSym(src.Sym, strings.Join(subPath, "."), leafType)
	return &ast.Expr{Kind: ast.EVar, Sym: sym, Type: leafType}
}

func findFieldInit(fields []ast.StructFieldInit, name string) *ast.Expr {
	for _, f := range fields {
		if f.Field == name {
			return f.Value
		}
	}
	return nil
}

// Eliminate flattens every struct-typed symbol across prog's blocks.
func Eliminate(prog *cfg.Program, tbl *symtab.Table) (*cfg.Program, error) {
	s := newState(tbl)
	out := &cfg.Program{Structs: prog.Structs, Entry: prog.Entry}

	funcByLabel := map[symtab.UniqueSym]*cfg.FuncInfo{}
	newFuncs := make([]cfg.FuncInfo, len(prog.Funcs))
	for i := range prog.Funcs {
		f := prog.Funcs[i]
		var flatParams []ast.Param
		for _, p := range f.Params {
			syms, tys := s.flattenSym(p.Sym, p.Type)
			for i2, sym := range syms {
				flatParams = append(flatParams, ast.Param{Sym: sym, Type: tys[i2]})
			}
		}
		nf := cfg.FuncInfo{Label: f.Label, Params: flatParams, Result: f.Result}
		newFuncs[i] = nf
		funcByLabel[f.Label] = &newFuncs[i]
	}
	out.Funcs = newFuncs

	for _, label := range prog.Order {
		tail, err := s.rewriteTail(prog.Blocks[label])
		if err != nil {
			return nil, errors.Wrapf(err, "eliminate: block %s", label)
		}
		out.AddBlock(label, tail)
	}
	return out, nil
}

func (s *state) rewriteTail(t *cfg.Tail) (*cfg.Tail, error) {
	if t == nil {
		return nil, nil
	}
	switch t.Kind {
	case cfg.TGoto:
		return t, nil

	case cfg.TIf:
		n := *t
		n.Pred.Lhs = s.resolveAtom(t.Pred.Lhs)
		n.Pred.Rhs = s.resolveAtom(t.Pred.Rhs)
		return &n, nil

	case cfg.TReturn:
		var atoms []*ast.Expr
		var tys []types.Type
		for i, a := range t.Atoms {
			if t.Types[i].Kind == types.Struct {
				syms, leafTys := s.flattenSym(a.Sym, a.Type)
				for j, sym := range syms {
					atoms = append(atoms, &ast.Expr{Kind: ast.EVar, Sym: sym, Type: leafTys[j]})
					tys = append(tys, leafTys[j])
				}
			} else {
				atoms = append(atoms, s.resolveAtom(a))
				tys = append(tys, t.Types[i])
			}
		}
		return &cfg.Tail{Kind: cfg.TReturn, Atoms: atoms, Types: tys}, nil

	case cfg.TSeq:
		return s.rewriteSeq(t)
	}
	return nil, errors.Errorf("eliminate: unhandled tail kind %v", t.Kind)
}

func (s *state) rewriteSeq(t *cfg.Tail) (*cfg.Tail, error) {
	origSym := t.Syms[0]
	expr := t.Expr

	switch expr.Kind {
	case ast.EFieldAccess:
		base := expr.A
		fieldType, err := fieldType(base.Type, expr.Field)
		if err != nil {
			return nil, err
		}
		var syms []symtab.UniqueSym
		var tys []types.Type
		baseLeaves := base.Type.Leaves()
		if baseSyms, ok := s.flat[base.Sym]; ok && len(baseSyms) == len(baseLeaves) {
			// base already has leaf symbols (e.g. it was itself bound by a
			// field access): select this field's slice of them.
			for i, lf := range baseLeaves {
				if len(lf.Path) > 0 && lf.Path[0] == expr.Field {
					syms = append(syms, baseSyms[i])
					tys = append(tys, lf.Type)
				}
			}
		} else {
			for _, lf := range fieldType.Leaves() {
				full := expr.Field
				if len(lf.Path) > 0 {
					full = expr.Field + "." + strings.Join(lf.Path, ".")
				}
				syms = append(syms, s.canonSym(base.Sym, full, lf.Type))
				tys = append(tys, lf.Type)
			}
		}
		s.flat[origSym] = syms
		s.flatTypes[origSym] = tys
		return s.rewriteTail(t.Next)

	case ast.EStructLit:
		xType := t.SeqTypes[0]
		leaves := xType.Leaves()
		syms := make([]symtab.UniqueSym, len(leaves))
		tys := make([]types.Type, len(leaves))
		rest, err := s.rewriteTail(t.Next)
		if err != nil {
			return nil, err
		}
		result := rest
		for i := len(leaves) - 1; i >= 0; i-- {
			lf := leaves[i]
			srcAtom := findFieldInit(expr.Fields, lf.Path[0])
			if srcAtom == nil {
				return nil, errors.Errorf("eliminate: struct literal missing field %s", lf.Path[0])
			}
			leafAtom := s.resolveLeafAtom(srcAtom, lf.Path[1:], lf.Type)
			canon := s.canonSym(origSym, strings.Join(lf.Path, "."), lf.Type)
			syms[i], tys[i] = canon, lf.Type
			result = &cfg.Tail{Kind: cfg.TSeq, Syms: []symtab.UniqueSym{canon}, SeqTypes: []types.Type{lf.Type}, Expr: leafAtom, Next: result}
		}
		s.flat[origSym] = syms
		s.flatTypes[origSym] = tys
		return result, nil

	case ast.EApply:
		var flatArgs []*ast.Expr
		for _, a := range expr.Args {
			flatArgs = append(flatArgs, s.flattenAtomList(a)...)
		}
		newExpr := *expr
		newExpr.Fn = s.resolveAtom(expr.Fn)
		newExpr.Args = flatArgs

		syms, tys := s.flattenSym(origSym, t.SeqTypes[0])
		rest, err := s.rewriteTail(t.Next)
		if err != nil {
			return nil, err
		}
		return &cfg.Tail{Kind: cfg.TSeq, Syms: syms, SeqTypes: tys, Expr: &newExpr, Next: rest}, nil

	default:
		rest, err := s.rewriteTail(t.Next)
		if err != nil {
			return nil, err
		}
		newExpr := rewriteScalarExpr(s, expr)
		s.flat[origSym] = []symtab.UniqueSym{origSym}
		s.flatTypes[origSym] = []types.Type{t.SeqTypes[0]}
		return &cfg.Tail{Kind: cfg.TSeq, Syms: []symtab.UniqueSym{origSym}, SeqTypes: t.SeqTypes, Expr: newExpr, Next: rest}, nil
	}
}

// rewriteScalarExpr resolves atom operands of straight-line scalar exprs
// (atom, unary/binary primitive, function reference, assignment) that may
// reference a symbol renamed by a prior field-access elimination.
func rewriteScalarExpr(s *state, e *ast.Expr) *ast.Expr {
	n := *e
	switch e.Kind {
	case ast.EVar:
		return s.resolveAtom(e)
	case ast.EUnary:
		n.A = s.resolveAtom(e.A)
	case ast.EBinary:
		n.A = s.resolveAtom(e.A)
		n.B = s.resolveAtom(e.B)
	case ast.EAssign:
		n.A = s.resolveAtom(e.A)
	}
	return &n
}

func fieldType(structType types.Type, field string) (types.Type, error) {
	if structType.Def == nil {
		return types.Type{}, errors.Errorf("eliminate: field access on non-struct type %s", structType)
	}
	for _, f := range structType.Def.Fields {
		if f.Name == field {
			return f.Type, nil
		}
	}
	return types.Type{}, errors.Errorf("eliminate: unknown field %s on %s", field, structType)
}
