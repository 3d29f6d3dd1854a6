// Package explicate implements stage 3, the harder half of the core:
// turning a nested atomized expression tree into a graph of labelled basic
// blocks. Three mutually-recursive lowering strategies govern three
// contexts (tail, assign, predicate); "create-block" — binding a fresh
// label to a tail already in hand — is the single mechanism that turns
// structured nesting into a flat graph.
//
// Grounded on original_source/compiler/src/passes/explicate/{explicate_assign,explicate_pred}.rs,
// which this file follows arm-for-arm (including the nested-If predicate
// duplication that produces diamond CFGs).
package explicate

import (
	"github.com/pkg/errors"

	"github.com/loomlang/loomc/internal/ast"
	"github.com/loomlang/loomc/internal/cfg"
	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/types"
)

type loopCtx struct {
	BreakLabel    symtab.UniqueSym
	BreakVar      symtab.UniqueSym
	BreakType     types.Type
	ContinueLabel symtab.UniqueSym
}

type builder struct {
	tbl   *symtab.Table
	prog  *cfg.Program
	loops []loopCtx
}

// Explicate lowers prog's atomized function bodies into a cfg.Program. Each
// function's body becomes the block labelled with the function's own
// symbol, so Apply can call it by label directly.
func Explicate(prog *ast.Program, tbl *symtab.Table) (*cfg.Program, error) {
	b := &builder{tbl: tbl, prog: &cfg.Program{Structs: prog.Structs, Entry: prog.Entry}}
	for _, f := range prog.Funcs {
		tail, err := b.tail(f.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "explicate: function %s", f.Name)
		}
		b.prog.AddBlock(f.Name, tail)
		b.prog.Funcs = append(b.prog.Funcs, cfg.FuncInfo{Label: f.Name, Params: f.Params, Result: f.Result})
	}
	return b.prog, nil
}

func (b *builder) createBlock(t *cfg.Tail) symtab.UniqueSym {
	label := b.tbl.Fresh("block")
	b.prog.AddBlock(label, t)
	return label
}

func atomOf(sym symtab.UniqueSym, t types.Type) *ast.Expr {
	return &ast.Expr{Kind: ast.EVar, Sym: sym, Type: t}
}

func zeroLit() *ast.Expr {
	return &ast.Expr{Kind: ast.EAtomLit, Lit: ast.Literal{Kind: ast.LitInt, Int: 0}, Type: types.Type{Kind: types.Int}}
}

func isComparison(op ast.BinOp) bool {
	switch op {
	case ast.Lt, ast.Le, ast.Gt, ast.Ge, ast.Eq, ast.Ne:
		return true
	}
	return false
}

// isStraightLine reports whether e may appear directly as a Seq's bound
// expression: an atom, a primitive op over atoms, a function reference, an
// apply, or any other effect-only leaf form (struct literal, field access,
// assignment) — anything that, after atomize, cannot itself contain nested
// control flow.
func isStraightLine(k ast.ExprKind) bool {
	switch k {
	case ast.ELet, ast.EIf, ast.ELoop, ast.EBreak, ast.EContinue, ast.EReturn, ast.ESeq:
		return false
	default:
		return true
	}
}

// tail lowers e in tail context: the expression's value is the function's
// return value.
func (b *builder) tail(e *ast.Expr) (*cfg.Tail, error) {
	switch e.Kind {
	case ast.ELet:
		rest, err := b.tail(e.B)
		if err != nil {
			return nil, err
		}
		return b.assign(e.A, e.Sym, rest)

	case ast.EIf:
		thn, err := b.tail(e.B)
		if err != nil {
			return nil, err
		}
		els, err := b.tail(e.C)
		if err != nil {
			return nil, err
		}
		return b.pred(e.A, thn, els)

	case ast.ELoop:
		return b.loop(e)

	case ast.EBreak:
		return b.breakTail(e)

	case ast.EContinue:
		return b.continueTail()

	case ast.EReturn:
		return b.returnTail(e)

	case ast.ESeq:
		rest, err := b.tail(e.B)
		if err != nil {
			return nil, err
		}
		return b.assign(e.A, b.tbl.Fresh("_ignore"), rest)

	default:
		if e.IsAtom() {
			return &cfg.Tail{Kind: cfg.TReturn, Atoms: []*ast.Expr{e}, Types: []types.Type{e.Type}}, nil
		}
		tmp := b.tbl.FreshTemp("ret")
		next := &cfg.Tail{Kind: cfg.TReturn, Atoms: []*ast.Expr{atomOf(tmp, e.Type)}, Types: []types.Type{e.Type}}
		return &cfg.Tail{Kind: cfg.TSeq, Syms: []symtab.UniqueSym{tmp}, SeqTypes: []types.Type{e.Type}, Expr: e, Next: next}, nil
	}
}

// assign lowers e in assign context: its value is bound to sym, then
// execution continues as cont.
func (b *builder) assign(e *ast.Expr, sym symtab.UniqueSym, cont *cfg.Tail) (*cfg.Tail, error) {
	switch e.Kind {
	case ast.ELet:
		inner, err := b.assign(e.B, sym, cont)
		if err != nil {
			return nil, err
		}
		return b.assign(e.A, e.Sym, inner)

	case ast.EIf:
		contLabel := b.createBlock(cont)
		thn, err := b.assign(e.B, sym, &cfg.Tail{Kind: cfg.TGoto, Label: contLabel})
		if err != nil {
			return nil, err
		}
		els, err := b.assign(e.C, sym, &cfg.Tail{Kind: cfg.TGoto, Label: contLabel})
		if err != nil {
			return nil, err
		}
		return b.pred(e.A, thn, els)

	case ast.ELoop:
		return b.loopInto(e, sym, cont)

	case ast.EBreak:
		return b.breakTail(e)

	case ast.EContinue:
		return b.continueTail()

	case ast.EReturn:
		return b.returnTail(e)

	case ast.ESeq:
		rest, err := b.assign(e.B, sym, cont)
		if err != nil {
			return nil, err
		}
		return b.assign(e.A, b.tbl.Fresh("_ignore"), rest)

	default:
		if !isStraightLine(e.Kind) {
			return nil, errors.Errorf("explicate: unhandled expr kind %v in assign context", e.Kind)
		}
		return &cfg.Tail{Kind: cfg.TSeq, Syms: []symtab.UniqueSym{sym}, SeqTypes: []types.Type{e.Type}, Expr: e, Next: cont}, nil
	}
}

func (b *builder) breakTail(e *ast.Expr) (*cfg.Tail, error) {
	if len(b.loops) == 0 {
		return nil, errors.New("explicate: break outside loop")
	}
	top := b.loops[len(b.loops)-1]
	val := e.A
	if val == nil {
		val = &ast.Expr{Kind: ast.EAtomLit, Lit: ast.Literal{Kind: ast.LitUnit}, Type: types.Type{Kind: types.Unit}}
	}
	return &cfg.Tail{
		Kind: cfg.TSeq, Syms: []symtab.UniqueSym{top.BreakVar}, SeqTypes: []types.Type{top.BreakType},
		Expr: val, Next: &cfg.Tail{Kind: cfg.TGoto, Label: top.BreakLabel},
	}, nil
}

func (b *builder) continueTail() (*cfg.Tail, error) {
	if len(b.loops) == 0 {
		return nil, errors.New("explicate: continue outside loop")
	}
	top := b.loops[len(b.loops)-1]
	return &cfg.Tail{Kind: cfg.TGoto, Label: top.ContinueLabel}, nil
}

func (b *builder) returnTail(e *ast.Expr) (*cfg.Tail, error) {
	val := e.A
	if val == nil {
		val = &ast.Expr{Kind: ast.EAtomLit, Lit: ast.Literal{Kind: ast.LitUnit}, Type: types.Type{Kind: types.Unit}}
	}
	return &cfg.Tail{Kind: cfg.TReturn, Atoms: []*ast.Expr{val}, Types: []types.Type{val.Type}}, nil
}

// loop lowers a Loop appearing in tail context: the loop never falls
// through (its type is Never unless it breaks), so the break-target
// continuation is simply Return(breakVar).
func (b *builder) loop(e *ast.Expr) (*cfg.Tail, error) {
	breakVar := b.tbl.FreshTemp("break")
	breakLabel := b.createBlock(&cfg.Tail{
		Kind: cfg.TReturn, Atoms: []*ast.Expr{atomOf(breakVar, e.Type)}, Types: []types.Type{e.Type},
	})
	return b.loopBody(e, loopCtx{BreakLabel: breakLabel, BreakVar: breakVar, BreakType: e.Type})
}

// loopInto lowers a Loop in assign context: its break value is bound to sym
// before execution resumes as cont.
func (b *builder) loopInto(e *ast.Expr, sym symtab.UniqueSym, cont *cfg.Tail) (*cfg.Tail, error) {
	breakVar := b.tbl.FreshTemp("break")
	breakLabel := b.createBlock(&cfg.Tail{
		Kind: cfg.TSeq, Syms: []symtab.UniqueSym{sym}, SeqTypes: []types.Type{e.Type}, Expr: atomOf(breakVar, e.Type), Next: cont,
	})
	return b.loopBody(e, loopCtx{BreakLabel: breakLabel, BreakVar: breakVar, BreakType: e.Type})
}

func (b *builder) loopBody(e *ast.Expr, lc loopCtx) (*cfg.Tail, error) {
	loopHead := b.tbl.Fresh("loop_head")
	lc.ContinueLabel = loopHead
	b.loops = append(b.loops, lc)
	bodyTail, err := b.assign(e.A, b.tbl.Fresh("_ignore"), &cfg.Tail{Kind: cfg.TGoto, Label: loopHead})
	b.loops = b.loops[:len(b.loops)-1]
	if err != nil {
		return nil, err
	}
	b.prog.AddBlock(loopHead, bodyTail)
	return &cfg.Tail{Kind: cfg.TGoto, Label: loopHead}, nil
}

// pred lowers cond into an IfStmt between already-lowered then/else tails,
// creating fresh blocks for those tails exactly once at this level.
func (b *builder) pred(cond *ast.Expr, thenTail, elseTail *cfg.Tail) (*cfg.Tail, error) {
	thenLabel := b.createBlock(thenTail)
	elseLabel := b.createBlock(elseTail)
	return b.predLabels(cond, thenLabel, elseLabel)
}

// predLabels is the predicate-context workhorse: cond's truth steers control
// to thenLabel, its falsity to elseLabel. Nested `If` duplicates these two
// target labels into freshly created blocks rather than duplicating the
// tails themselves, which is what keeps block count linear in source size.
func (b *builder) predLabels(cond *ast.Expr, thenLabel, elseLabel symtab.UniqueSym) (*cfg.Tail, error) {
	switch cond.Kind {
	case ast.EAtomLit:
		if cond.Lit.Kind == ast.LitBool {
			if cond.Lit.Bool {
				return &cfg.Tail{Kind: cfg.TGoto, Label: thenLabel}, nil
			}
			return &cfg.Tail{Kind: cfg.TGoto, Label: elseLabel}, nil
		}

	case ast.EUnary:
		if cond.Un == ast.Not {
			return b.predLabels(cond.A, elseLabel, thenLabel)
		}

	case ast.EBinary:
		if isComparison(cond.Bin) {
			return &cfg.Tail{Kind: cfg.TIf, Pred: cfg.Predicate{Op: cond.Bin, Lhs: cond.A, Rhs: cond.B}, Then: thenLabel, Else: elseLabel}, nil
		}
		if cond.Bin == ast.And || cond.Bin == ast.Or || cond.Bin == ast.BitXor {
			tmp := b.tbl.FreshTemp("logic")
			test := &cfg.Tail{Kind: cfg.TIf, Pred: cfg.Predicate{Op: ast.Ne, Lhs: atomOf(tmp, cond.Type), Rhs: zeroLit()}, Then: thenLabel, Else: elseLabel}
			return b.assign(cond, tmp, test)
		}

	case ast.EIf:
		thenBranch, err := b.predLabels(cond.B, thenLabel, elseLabel)
		if err != nil {
			return nil, err
		}
		thenBlock := b.createBlock(thenBranch)
		elseBranch, err := b.predLabels(cond.C, thenLabel, elseLabel)
		if err != nil {
			return nil, err
		}
		elseBlock := b.createBlock(elseBranch)
		return b.predLabels(cond.A, thenBlock, elseBlock)
	}

	// Fallback: evaluate cond (a variable, apply, or any other boolean-typed
	// expression) into a temporary and compare it against zero.
	tmp := b.tbl.FreshTemp("cond")
	test := &cfg.Tail{Kind: cfg.TIf, Pred: cfg.Predicate{Op: ast.Ne, Lhs: atomOf(tmp, cond.Type), Rhs: zeroLit()}, Then: thenLabel, Else: elseLabel}
	return b.assign(cond, tmp, test)
}
