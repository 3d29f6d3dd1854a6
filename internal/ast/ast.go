// Package ast defines the expression tree shared by the validated, revealed,
// and atomized stages of the pipeline (stages 0-2). The node shape does not
// change across those three stages, only which variants are legal where and
// which symbols refer to functions rather than variables; that narrowing is
// enforced procedurally by each pass (and exercised by tests), not by
// separate Go types per stage, mirroring the spec's own observation that a
// single node shape threads uniformly through these transforms.
package ast

import (
	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/types"
)

// BinOp enumerates the binary operators over atoms.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	BitAnd
	BitOr
	BitXor
	And
	Or
	Lt
	Le
	Gt
	Ge
	Eq
	Ne
)

// UnOp enumerates the unary operators.
type UnOp int

const (
	Neg UnOp = iota
	Not
)

// LitKind discriminates the three literal forms.
type LitKind int

const (
	LitInt LitKind = iota
	LitBool
	LitUnit
)

// Literal is a sum over {int64, bool, unit}.
type Literal struct {
	Kind LitKind
	Int  int64
	Bool bool
}

// ExprKind discriminates the Expr sum. Var and FunRef are distinguished
// starting at the reveal stage; before reveal every name reference is a Var.
type ExprKind int

const (
	EAtomLit ExprKind = iota
	EVar
	EFunRef
	EUnary
	EBinary
	EApply
	ELet
	EIf
	ELoop
	EBreak
	EContinue
	EReturn
	ESeq
	EAssign
	EStructLit
	EFieldAccess
	EAsm
)

// Expr is the single tagged-union node used for the validated, revealed, and
// atomized trees. Not every field is meaningful for every Kind; see the
// per-Kind comments below.
type Expr struct {
	Kind Expr_Kind
	Type types.Type

	Lit Literal          // EAtomLit
	Sym symtab.UniqueSym // EVar, EFunRef, ELet (bound sym), EAssign (target)

	Un  UnOp  // EUnary
	Bin BinOp // EBinary
	A   *Expr // EUnary operand; EBinary lhs; ELet/EAssign value; EIf cond;
	// ELoop body; EBreak/EReturn value (nil = unit); EFieldAccess struct expr
	B *Expr // EBinary rhs; ELet body; EIf then
	C *Expr // EIf else

	Fn   *Expr   // EApply callee
	Args []*Expr // EApply arguments

	Mutable bool // ELet: is the binding reassignable later

	Field string // EFieldAccess, single-field StructLit entry key lookup

	StructName symtab.UniqueSym
	Fields     []StructFieldInit // EStructLit

	Asm []AsmInstr // EAsm
}

// Expr_Kind is aliased to avoid a stutter-y `ast.ExprKind` in call sites
// while keeping the exported type name obvious from context.
type Expr_Kind = ExprKind

// StructFieldInit is one `field: value` entry of a struct literal.
type StructFieldInit struct {
	Field string
	Value *Expr
}

// AsmInstr is one line of an inline-asm block; the runtime blocks
// (exit/print/read) are themselves built from these, and a source-level
// `asm { ... }` expression also lowers to a literal sequence of them.
type AsmInstr struct {
	Mnemonic string
	Operands []AsmOperand
}

type AsmOperandKind int

const (
	AsmReg AsmOperandKind = iota
	AsmImm
	AsmSym // reference to a bound variable, resolved like any other atom
)

type AsmOperand struct {
	Kind AsmOperandKind
	Reg  string
	Imm  int64
	Sym  symtab.UniqueSym
}

// FuncDef is one top-level function declaration.
type FuncDef struct {
	Name   symtab.UniqueSym
	Params []Param
	Result types.Type
	Body   *Expr
}

type Param struct {
	Sym  symtab.UniqueSym
	Type types.Type
}

// Program is the validated/revealed/atomized tree's top-level container:
// every function definition plus the struct type table the checker
// resolved.
type Program struct {
	Funcs   []*FuncDef
	Structs map[symtab.UniqueSym]*types.StructDef
	Entry   symtab.UniqueSym // the `main` function's symbol
}

// IsAtom reports whether e is already atomic (a literal or a bare variable
// reference) and therefore needs no atomize-stage temporary.
func (e *Expr) IsAtom() bool {
	return e != nil && (e.Kind == EAtomLit || e.Kind == EVar)
}
