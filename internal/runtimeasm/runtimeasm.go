// Package runtimeasm assembles the exit/print/read runtime basic blocks
// that stand in for a linked C library: the spec places "no standard
// library linking" out of scope and requires this runtime to be built from
// inline-asm-shaped templates by the core itself.
//
// Grounded byte-for-byte (instruction-for-instruction) on
// original_source/compiler/src/passes/select/std_lib.rs, translated from
// its block!/movq!/... macros into this repository's x86var.Instr values.
// The macros there take (src, dst) argument order; x86var.Instr.{Src,Dst}
// preserves that convention.
package runtimeasm

import (
	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/x86var"
)

// Labels names the three runtime entry points instrsel calls into.
type Labels struct {
	Exit  symtab.UniqueSym
	Print symtab.UniqueSym
	Read  symtab.UniqueSym
}

const (
	chNewline = 10
	chMinus   = '-'
	chZero    = '0'
	chNine    = '9'
)

// NewLabels reserves the three runtime entry-point symbols. The driver
// calls this once, before the front end resolves source-level `print`/
// `read` calls against the same symbols, so select can treat them as
// ordinary calls with no special-casing.
func NewLabels(tbl *symtab.Table) Labels {
	return Labels{
		Exit:  tbl.Fresh("exit"),
		Print: tbl.Fresh("print"),
		Read:  tbl.Fresh("read"),
	}
}

// Build synthesises the runtime blocks into prog under the reserved labels.
func Build(tbl *symtab.Table, prog *x86var.Program, l Labels) {
	buildExit(prog, l.Exit)
	buildPrint(tbl, prog, l.Print)
	buildRead(tbl, prog, l.Read, l.Exit)
}

func mov(src, dst x86var.Operand) x86var.Instr { return x86var.Instr{Kind: x86var.IMov, Src: src, Dst: dst} }
func add(src, dst x86var.Operand) x86var.Instr { return x86var.Instr{Kind: x86var.IAdd, Src: src, Dst: dst} }
func sub(src, dst x86var.Operand) x86var.Instr { return x86var.Instr{Kind: x86var.ISub, Src: src, Dst: dst} }
func cmp(src, dst x86var.Operand) x86var.Instr { return x86var.Instr{Kind: x86var.ICmp, Src: src, Dst: dst} }
func neg(dst x86var.Operand) x86var.Instr      { return x86var.Instr{Kind: x86var.INeg, Dst: dst} }
func mul(src x86var.Operand) x86var.Instr      { return x86var.Instr{Kind: x86var.IMul, Src: src} }
func div(src x86var.Operand) x86var.Instr      { return x86var.Instr{Kind: x86var.IDiv, Src: src} }
func push(src x86var.Operand) x86var.Instr     { return x86var.Instr{Kind: x86var.IPush, Src: src} }
func pop(dst x86var.Operand) x86var.Instr      { return x86var.Instr{Kind: x86var.IPop, Dst: dst} }
func jmp(l symtab.UniqueSym) x86var.Instr      { return x86var.Instr{Kind: x86var.IJmp, Label: l} }
func jcc(l symtab.UniqueSym, cc x86var.CondCode) x86var.Instr {
	return x86var.Instr{Kind: x86var.IJcc, Label: l, CC: cc}
}
func ret() x86var.Instr      { return x86var.Instr{Kind: x86var.IRet} }
func syscall(n int) x86var.Instr { return x86var.Instr{Kind: x86var.ISyscall, Arity: n} }

func imm(v int64) x86var.Operand { return x86var.Imm(v) }
func reg(r x86var.Reg) x86var.Operand { return x86var.R(r) }
func deref(r x86var.Reg, off int32) x86var.Operand { return x86var.Deref(r, off) }

func buildExit(prog *x86var.Program, entry symtab.UniqueSym) {
	prog.AddBlock(&x86var.Block{Label: entry, Instrs: []x86var.Instr{
		mov(reg(x86var.RAX), reg(x86var.RDI)),
		mov(imm(0x3C), reg(x86var.RAX)),
		syscall(2),
	}})
}

func buildPrint(tbl *symtab.Table, prog *x86var.Program, entry symtab.UniqueSym) {
	printNeg := tbl.Fresh("print_neg")
	pushLoop := tbl.Fresh("print_push_loop")
	printLoop := tbl.Fresh("print_print_loop")
	printExit := tbl.Fresh("print_exit")

	prog.AddBlock(&x86var.Block{Label: entry, Instrs: []x86var.Instr{
		mov(reg(x86var.RDI), reg(x86var.RAX)), // argument arrives in RDI
		push(reg(x86var.RAX)),
		mov(imm(10), reg(x86var.RCX)),
		push(imm(chNewline)),
		mov(imm(0), reg(x86var.RSI)),
		cmp(imm(0), reg(x86var.RAX)),
		jcc(printNeg, x86var.CC_S),
		jmp(pushLoop),
	}})
	prog.AddBlock(&x86var.Block{Label: printNeg, Instrs: []x86var.Instr{
		mov(imm(1), reg(x86var.RSI)),
		neg(reg(x86var.RAX)),
		jmp(pushLoop),
	}})
	prog.AddBlock(&x86var.Block{Label: pushLoop, Instrs: []x86var.Instr{
		mov(imm(0), reg(x86var.RDX)),
		div(reg(x86var.RCX)),
		add(imm(chZero), reg(x86var.RDX)),
		push(reg(x86var.RDX)),
		cmp(imm(0), reg(x86var.RAX)),
		jcc(pushLoop, x86var.CC_NE),
		cmp(imm(0), reg(x86var.RSI)),
		jcc(printLoop, x86var.CC_E),
		push(imm(chMinus)),
		jmp(printLoop),
	}})
	prog.AddBlock(&x86var.Block{Label: printLoop, Instrs: []x86var.Instr{
		mov(imm(1), reg(x86var.RAX)), // write syscall
		mov(imm(1), reg(x86var.RDI)), // stdout
		mov(reg(x86var.RSP), reg(x86var.RSI)),
		mov(imm(1), reg(x86var.RDX)),
		syscall(4),
		pop(reg(x86var.RAX)),
		cmp(imm(chNewline), reg(x86var.RAX)),
		jcc(printLoop, x86var.CC_NE),
		jmp(printExit),
	}})
	prog.AddBlock(&x86var.Block{Label: printExit, Instrs: []x86var.Instr{
		pop(reg(x86var.RAX)),
		ret(),
	}})
}

func buildRead(tbl *symtab.Table, prog *x86var.Program, entry, exit symtab.UniqueSym) {
	isNeg := tbl.Fresh("read_is_neg")
	loop := tbl.Fresh("read_loop")
	first := tbl.Fresh("read_first")
	readExit := tbl.Fresh("read_exit")
	readNeg := tbl.Fresh("read_neg")
	actualExit := tbl.Fresh("read_actual_exit")

	prog.AddBlock(&x86var.Block{Label: entry, Instrs: []x86var.Instr{
		push(reg(x86var.RBX)),
		push(reg(x86var.R13)),
		mov(imm(0), reg(x86var.R13)),
		mov(imm(0), reg(x86var.RBX)),
		sub(imm(8), reg(x86var.RSP)),
		mov(imm(0), reg(x86var.RAX)), // read
		mov(imm(0), reg(x86var.RDI)), // stdin
		mov(reg(x86var.RSP), reg(x86var.RSI)),
		mov(imm(1), reg(x86var.RDX)),
		syscall(4),
		mov(deref(x86var.RSP, 0), reg(x86var.RAX)),
		mov(reg(x86var.RAX), reg(x86var.RCX)),
		cmp(imm(chMinus), reg(x86var.RCX)),
		jcc(isNeg, x86var.CC_E),
		jmp(first),
	}})
	prog.AddBlock(&x86var.Block{Label: isNeg, Instrs: []x86var.Instr{
		mov(imm(1), reg(x86var.R13)),
		jmp(loop),
	}})
	prog.AddBlock(&x86var.Block{Label: loop, Instrs: []x86var.Instr{
		mov(imm(0), reg(x86var.RAX)),
		mov(imm(0), reg(x86var.RDI)),
		mov(reg(x86var.RSP), reg(x86var.RSI)),
		mov(imm(1), reg(x86var.RDX)),
		syscall(4),
		jmp(first),
	}})
	prog.AddBlock(&x86var.Block{Label: first, Instrs: []x86var.Instr{
		mov(deref(x86var.RSP, 0), reg(x86var.RAX)),
		mov(reg(x86var.RAX), reg(x86var.RCX)),
		cmp(imm(chNewline), reg(x86var.RCX)),
		jcc(readExit, x86var.CC_E),
		mov(imm(66), reg(x86var.RDI)),
		mov(reg(x86var.RAX), reg(x86var.RCX)),
		cmp(imm(chNine), reg(x86var.RCX)),
		jcc(exit, x86var.CC_G),
		mov(reg(x86var.RAX), reg(x86var.RCX)),
		cmp(imm(chZero), reg(x86var.RCX)),
		jcc(exit, x86var.CC_L),
		mov(imm(10), reg(x86var.RAX)),
		mul(reg(x86var.RBX)),
		mov(reg(x86var.RAX), reg(x86var.RBX)),
		mov(deref(x86var.RSP, 0), reg(x86var.RAX)),
		sub(imm(chZero), reg(x86var.RAX)),
		add(reg(x86var.RAX), reg(x86var.RBX)),
		jmp(loop),
	}})
	prog.AddBlock(&x86var.Block{Label: readExit, Instrs: []x86var.Instr{
		cmp(imm(0), reg(x86var.R13)),
		jcc(readNeg, x86var.CC_NE),
		jmp(actualExit),
	}})
	prog.AddBlock(&x86var.Block{Label: readNeg, Instrs: []x86var.Instr{
		neg(reg(x86var.RBX)),
		jmp(actualExit),
	}})
	prog.AddBlock(&x86var.Block{Label: actualExit, Instrs: []x86var.Instr{
		mov(reg(x86var.RBX), reg(x86var.RAX)),
		add(imm(8), reg(x86var.RSP)),
		pop(reg(x86var.R13)),
		pop(reg(x86var.RBX)),
		ret(),
	}})
}
