// Package homes implements stage 9: the purely mechanical substitution of
// every Var(sym) operand with the physical location colour assigned it —
// a register for colours in [-5,10], a stack slot below RBP for spills.
//
// Grounded on original_source/compiler/src/passes/assign/assign_homes.rs.
package homes

import (
	"github.com/loomlang/loomc/internal/colour"
	"github.com/loomlang/loomc/internal/liveness"
	"github.com/loomlang/loomc/internal/x86var"
)

// calleeSavedSlots accounts for the five callee-saved registers select's
// prologue pushes below RBP before any spilled local's slot begins.
const calleeSavedSlots = 5

// Assign rewrites every block of prog in place, replacing Var operands per
// result's colour map, and records the frame size on prog. Every function's
// own prologue/epilogue additionally grows/shrinks rsp by the frame size,
// since each function's spilled locals live below its own RBP, not just the
// synthetic entry wrapper conclude inserts.
func Assign(prog *x86var.Program, result *colour.Result) {
	prog.FrameSize = result.FrameSize
	for _, label := range prog.Order {
		block := prog.Blocks[label]
		for i := range block.Instrs {
			block.Instrs[i].Src = resolve(block.Instrs[i].Src, result.Colours)
			block.Instrs[i].Dst = resolve(block.Instrs[i].Dst, result.Colours)
		}
		if result.FrameSize > 0 {
			block.Instrs = insertFrameAdjust(block.Instrs, result.FrameSize)
		}
	}
}

// matchPrologue reports whether instrs starts with the fixed instruction
// shape instrsel's prologue() always emits: push rbp; mov rsp,rbp; push
// each callee-saved in order.
func matchPrologue(instrs []x86var.Instr) bool {
	if len(instrs) < 2+len(x86var.CalleeSaved) {
		return false
	}
	if instrs[0].Kind != x86var.IPush || instrs[0].Src != x86var.R(x86var.RBP) {
		return false
	}
	if instrs[1].Kind != x86var.IMov || instrs[1].Src != x86var.R(x86var.RSP) || instrs[1].Dst != x86var.R(x86var.RBP) {
		return false
	}
	for i, r := range x86var.CalleeSaved {
		p := instrs[2+i]
		if p.Kind != x86var.IPush || p.Src != x86var.R(r) {
			return false
		}
	}
	return true
}

// matchEpilogue reports whether instrs ends with the fixed shape
// instrsel's epilogue() emits: pop each callee-saved in reverse order,
// pop rbp, ret.
func matchEpilogue(instrs []x86var.Instr) bool {
	n := len(x86var.CalleeSaved) + 2
	if len(instrs) < n {
		return false
	}
	tail := instrs[len(instrs)-n:]
	if tail[n-1].Kind != x86var.IRet {
		return false
	}
	if tail[n-2].Kind != x86var.IPop || tail[n-2].Dst != x86var.R(x86var.RBP) {
		return false
	}
	for i := 0; i < len(x86var.CalleeSaved); i++ {
		r := x86var.CalleeSaved[len(x86var.CalleeSaved)-1-i]
		p := tail[i]
		if p.Kind != x86var.IPop || p.Dst != x86var.R(r) {
			return false
		}
	}
	return true
}

func insertFrameAdjust(instrs []x86var.Instr, frameSize int) []x86var.Instr {
	if matchPrologue(instrs) {
		at := 2 + len(x86var.CalleeSaved)
		sub := x86var.Instr{Kind: x86var.ISub, Src: x86var.Imm(int64(frameSize)), Dst: x86var.R(x86var.RSP)}
		instrs = append(instrs[:at:at], append([]x86var.Instr{sub}, instrs[at:]...)...)
	}
	if matchEpilogue(instrs) {
		n := len(x86var.CalleeSaved) + 2
		at := len(instrs) - n
		add := x86var.Instr{Kind: x86var.IAdd, Src: x86var.Imm(int64(frameSize)), Dst: x86var.R(x86var.RSP)}
		instrs = append(instrs[:at:at], append([]x86var.Instr{add}, instrs[at:]...)...)
	}
	return instrs
}

func resolve(op x86var.Operand, colours map[liveness.LArg]int) x86var.Operand {
	if op.Kind != x86var.OpVar {
		return op
	}
	c, ok := colours[liveness.LArg{Sym: op.Var}]
	if !ok {
		return op
	}
	if r, ok := colour.ColourOfReg(c); ok {
		return x86var.R(r)
	}
	offset := int32(-8 * (c - 10 + calleeSavedSlots))
	return x86var.Deref(x86var.RBP, offset)
}
