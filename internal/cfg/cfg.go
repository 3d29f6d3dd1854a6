// Package cfg defines the post-explicate block-graph representation shared
// by stage 3 (explicate) and stage 4 (eliminate). Per the spec's own
// observation that "all other forms pass through, with their single bound
// symbol wrapped in a singleton list for uniformity with multi-return
// calls", a single Tail type — whose Seq is always list-shaped — serves
// both stages: before eliminate every Syms/SeqTypes slice has length one;
// after eliminate a Seq may bind several flattened scalar names at once.
package cfg

import (
	"github.com/loomlang/loomc/internal/ast"
	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/types"
)

// TailKind discriminates the four basic-block terminator shapes.
type TailKind int

const (
	TReturn TailKind = iota
	TSeq
	TIf
	TGoto
)

// Predicate is the condition of an IfStmt: a comparison operator over two
// atoms, already lowered so no further control flow can appear here.
type Predicate struct {
	Op  ast.BinOp
	Lhs *ast.Expr
	Rhs *ast.Expr
}

// Tail is a basic block's terminator-preceded sequence. A Seq's Expr is
// restricted to an atom, a primitive op over atoms, a function reference,
// or an apply — never nested control flow; that invariant is established by
// explicate and preserved (with its bound-name list flattened) by
// eliminate.
type Tail struct {
	Kind TailKind

	// TReturn
	Atoms []*ast.Expr
	Types []types.Type

	// TSeq
	Syms     []symtab.UniqueSym
	SeqTypes []types.Type
	Expr     *ast.Expr
	Next     *Tail

	// TIf
	Pred Predicate
	Then symtab.UniqueSym
	Else symtab.UniqueSym

	// TGoto
	Label symtab.UniqueSym
}

// FuncInfo records one function's entry label, parameter list (flattened
// after eliminate), and result type (carried through eliminate unchanged).
type FuncInfo struct {
	Label  symtab.UniqueSym
	Params []ast.Param
	Result types.Type
}

// Program is the label -> block map plus the function/type tables
// explicate produces and eliminate passes through.
type Program struct {
	Blocks  map[symtab.UniqueSym]*Tail
	Entry   symtab.UniqueSym
	Funcs   []FuncInfo
	Structs map[symtab.UniqueSym]*types.StructDef

	// Order fixes block enumeration for every downstream stage, per the
	// ordering-guarantees requirement that output bytes depend only on a
	// deterministic, unique-symbol-id-derived block order.
	Order []symtab.UniqueSym
}

// AddBlock registers a block under label, recording it in Order the first
// time label is seen so re-assignment does not duplicate the enumeration
// entry.
func (p *Program) AddBlock(label symtab.UniqueSym, t *Tail) {
	if p.Blocks == nil {
		p.Blocks = map[symtab.UniqueSym]*Tail{}
	}
	if _, ok := p.Blocks[label]; !ok {
		p.Order = append(p.Order, label)
	}
	p.Blocks[label] = t
}
