// Package liveness implements stage 6: backward dataflow to a fixpoint,
// producing, for every instruction, the set of LArg (register or variable)
// live immediately after it executes.
//
// Grounded on original_source/compiler/src/passes/assign/include_liveness.rs,
// whose handle_instr Read/Write/ReadWrite classification for every
// instruction kind this file's transfer function reproduces directly.
package liveness

import (
	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/x86var"
)

// LArg is either a physical register or a variable symbol; the two node
// kinds the interference graph is built over.
type LArg struct {
	IsReg bool
	Reg   x86var.Reg
	Sym   symtab.UniqueSym
}

func regArg(r x86var.Reg) LArg         { return LArg{IsReg: true, Reg: r} }
func varArg(s symtab.UniqueSym) LArg   { return LArg{Sym: s} }

// Set is an LArg membership set.
type Set map[LArg]bool

func (s Set) Clone() Set {
	n := make(Set, len(s))
	for k := range s {
		n[k] = true
	}
	return n
}

func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if !o[k] {
			return false
		}
	}
	return true
}

var syscallRegs = []x86var.Reg{x86var.RAX, x86var.RDI, x86var.RSI, x86var.RDX, x86var.RCX, x86var.R8, x86var.R9}

// Annotated is the liveness result: per block, the live-after set of every
// instruction, plus the block's live-before set (the union fed to any jmp
// targeting it).
type Annotated struct {
	LiveAfter  map[symtab.UniqueSym][]Set
	LiveBefore map[symtab.UniqueSym]Set
}

// Analyze runs the cross-block fixpoint described in the spec: iterate
// over all blocks until no block's live-before set changes. Termination is
// guaranteed because the update (remove writes, then add reads) is
// monotone over a finite lattice.
func Analyze(prog *x86var.Program) *Annotated {
	liveBefore := map[symtab.UniqueSym]Set{}
	liveAfter := map[symtab.UniqueSym][]Set{}
	for _, label := range prog.Order {
		liveBefore[label] = Set{}
	}

	for {
		changed := false
		for _, label := range prog.Order {
			block := prog.Blocks[label]
			afters := make([]Set, len(block.Instrs))
			cur := Set{}
			for i := len(block.Instrs) - 1; i >= 0; i-- {
				afters[i] = cur.Clone()
				cur = transfer(block.Instrs[i], cur, liveBefore)
			}
			if !cur.Equal(liveBefore[label]) {
				changed = true
			}
			liveBefore[label] = cur
			liveAfter[label] = afters
		}
		if !changed {
			break
		}
	}
	return &Annotated{LiveAfter: liveAfter, LiveBefore: liveBefore}
}

func writeOperand(set Set, op x86var.Operand) {
	switch op.Kind {
	case x86var.OpReg:
		delete(set, regArg(op.Reg))
	case x86var.OpVar:
		delete(set, varArg(op.Var))
	case x86var.OpDeref:
		set[regArg(op.Base)] = true
	}
}

func readOperand(set Set, op x86var.Operand) {
	switch op.Kind {
	case x86var.OpReg:
		set[regArg(op.Reg)] = true
	case x86var.OpVar:
		set[varArg(op.Var)] = true
	case x86var.OpDeref:
		set[regArg(op.Base)] = true
	}
}

// transfer computes the live-before set of instr given its live-after set
// ("after"), applying writes (remove) then reads (add) per operand, and
// consulting liveBefore for jump targets.
func transfer(instr x86var.Instr, after Set, liveBefore map[symtab.UniqueSym]Set) Set {
	before := after.Clone()

	switch instr.Kind {
	case x86var.IAdd, x86var.ISub, x86var.IAnd, x86var.IOr, x86var.IXor:
		readOperand(before, instr.Dst)
		readOperand(before, instr.Src)

	case x86var.ICmp:
		readOperand(before, instr.Dst)
		readOperand(before, instr.Src)

	case x86var.IMov:
		writeOperand(before, instr.Dst)
		readOperand(before, instr.Src)

	case x86var.INeg, x86var.INot:
		readOperand(before, instr.Dst)

	case x86var.IPush:
		readOperand(before, instr.Src)

	case x86var.IPop:
		writeOperand(before, instr.Dst)

	case x86var.ICallDirect:
		for _, r := range x86var.CallerSaved {
			delete(before, regArg(r))
		}
		for i := 0; i < instr.Arity && i < len(x86var.ArgRegs); i++ {
			before[regArg(x86var.ArgRegs[i])] = true
		}

	case x86var.ICallIndirect:
		for _, r := range x86var.CallerSaved {
			delete(before, regArg(r))
		}
		for i := 0; i < instr.Arity && i < len(x86var.ArgRegs); i++ {
			before[regArg(x86var.ArgRegs[i])] = true
		}
		readOperand(before, instr.Src)

	case x86var.ISyscall:
		for _, r := range x86var.CallerSaved {
			delete(before, regArg(r))
		}
		for i := 0; i < instr.Arity && i < len(syscallRegs); i++ {
			before[regArg(syscallRegs[i])] = true
		}

	case x86var.IDiv:
		before[regArg(x86var.RDX)] = true
		before[regArg(x86var.RAX)] = true
		readOperand(before, instr.Src)

	case x86var.IMul:
		delete(before, regArg(x86var.RDX))
		before[regArg(x86var.RAX)] = true
		readOperand(before, instr.Src)

	case x86var.ICqo:
		delete(before, regArg(x86var.RDX))
		before[regArg(x86var.RAX)] = true

	case x86var.ISetCC:
		delete(before, regArg(x86var.RAX))

	case x86var.IRet:
		before[regArg(x86var.RAX)] = true

	case x86var.IJmp:
		for k := range liveBefore[instr.Label] {
			before[k] = true
		}

	case x86var.IJcc:
		for k := range liveBefore[instr.Label] {
			before[k] = true
		}

	case x86var.ILoadLabel:
		writeOperand(before, instr.Dst)
	}

	return before
}
