// Package x86var defines the instruction/operand IR threaded through
// stages 5-11 (select through conclude): a single generic Operand and
// Instr type whose Operand.Kind transitions from Var to Reg/Deref as
// homes are assigned, rather than a distinct Go type per stage — the
// spec's own "singleton list for uniformity" licence for the CFG layer
// extends naturally to this layer too, since only the *legal contents* of
// an Operand change stage to stage, never its shape.
//
// Register numbering matches the teacher's (std/compiler/x64.go) so the
// emitter can reuse its REX/ModR-M bit-extraction logic unchanged.
package x86var

import "github.com/loomlang/loomc/internal/symtab"

// Reg is a physical x86-64 general-purpose register, numbered exactly as
// the REX.B/ModR-M r/m-field extension scheme expects: 0-7 are the
// original 8086 registers, 8-15 need REX.R/X/B set.
type Reg int

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var regNames = [...]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi", "r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "r?"
}

// ArgRegs is the System-V integer argument-register order.
var ArgRegs = [6]Reg{RDI, RSI, RDX, RCX, R8, R9}

// CallerSaved lists the registers a call/syscall clobbers.
var CallerSaved = []Reg{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}

// CalleeSaved lists the five non-RSP/RBP callee-saved registers this
// compiler's prologue/epilogue pushes and pops.
var CalleeSaved = []Reg{RBX, R12, R13, R14, R15}

// CondCode is an x86 condition code, stored as its jcc/setcc secondary
// opcode byte so the emitter needs no further translation.
type CondCode byte

const (
	CC_E  CondCode = 0x84
	CC_NE CondCode = 0x85
	CC_L  CondCode = 0x8C
	CC_GE CondCode = 0x8D
	CC_LE CondCode = 0x8E
	CC_G  CondCode = 0x8F
	CC_AE CondCode = 0x83
	CC_NS CondCode = 0x89
	CC_S  CondCode = 0x88
)

// OperandKind discriminates the four operand shapes.
type OperandKind int

const (
	OpImm OperandKind = iota
	OpReg
	OpDeref
	OpVar
)

// Operand is the single generic operand shape threaded through select,
// liveness, interference, colour, assign-homes, patch, conclude and emit.
// Only Var operands are resolved away (by assign-homes); Imm/Reg/Deref are
// produced by select and pass through unchanged until emit consumes them.
type Operand struct {
	Kind   OperandKind
	Imm    int64
	Reg    Reg
	Base   Reg              // OpDeref
	Offset int32            // OpDeref: byte displacement from Base
	Var    symtab.UniqueSym // OpVar
}

func Imm(v int64) Operand          { return Operand{Kind: OpImm, Imm: v} }
func R(r Reg) Operand              { return Operand{Kind: OpReg, Reg: r} }
func Deref(base Reg, off int32) Operand { return Operand{Kind: OpDeref, Base: base, Offset: off} }
func Var(s symtab.UniqueSym) Operand    { return Operand{Kind: OpVar, Var: s} }

// InstrKind enumerates the variable-x86 instruction set.
type InstrKind int

const (
	IAdd InstrKind = iota
	ISub
	IMul
	IDiv
	ICqo
	INeg
	IAnd
	IOr
	IXor
	INot
	IMov
	ICmp
	IPush
	IPop
	ISetCC
	IJmp
	IJcc
	ICallDirect
	ICallIndirect
	ISyscall
	IRet
	ILoadLabel
)

// Instr is the single generic instruction shape. Field meaning depends on
// Kind:
//   - binary ops (Add/Sub/And/Or/Xor/Cmp/Mov): Src, Dst
//   - unary ops (Neg/Not): Dst only
//   - Mul/Div: Src only (implicit RDX:RAX per the x86 ISA); both are the
//     signed IMUL/IDIV forms
//   - Cqo: no operands; sign-extends RAX's bit 63 across all of RDX, the
//     two's-complement setup IDIV needs before it treats RDX:RAX as the
//     dividend
//   - Push: Src. Pop: Dst.
//   - SetCC: Dst, CC
//   - Jmp/CallDirect/LoadLabel: Label (+ Dst for LoadLabel)
//   - Jcc: Label, CC
//   - CallIndirect: Src (the operand holding the callee address)
//   - CallDirect/CallIndirect/Syscall: Arity
//   - Ret: none
type Instr struct {
	Kind  InstrKind
	Src   Operand
	Dst   Operand
	CC    CondCode
	Label symtab.UniqueSym
	Arity int
}

// Block is a label plus its straight-line instruction sequence, ending in
// whatever control-transfer instruction select emitted (Jmp/Jcc/Ret are
// ordinary members of Instrs, not a separate terminator field, since
// variable-x86 blocks may fall through to an explicit unconditional Jmp).
type Block struct {
	Label  symtab.UniqueSym
	Instrs []Instr
}

// Program is the post-select (and, after conclude, post-entry-synthesis)
// program: every block, the entry label, and enumeration order.
type Program struct {
	Blocks map[symtab.UniqueSym]*Block
	Entry  symtab.UniqueSym
	Order  []symtab.UniqueSym

	// FrameSize is filled in by colour/homes: the 16-byte-aligned stack
	// space reserved below RBP for spilled variables.
	FrameSize int
}

func (p *Program) AddBlock(b *Block) {
	if p.Blocks == nil {
		p.Blocks = map[symtab.UniqueSym]*Block{}
	}
	if _, ok := p.Blocks[b.Label]; !ok {
		p.Order = append(p.Order, b.Label)
	}
	p.Blocks[b.Label] = b
}
