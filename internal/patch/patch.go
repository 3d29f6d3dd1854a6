// Package patch implements stage 10: rewriting the two instruction shapes
// the x86-64 ISA cannot encode directly — a binary op with both operands
// in memory, and an immediate too wide for a signed 32-bit field — into an
// equivalent sequence that first stages the offending operand through RAX.
//
// Grounded on original_source/compiler/src/passes/patch/patch_instructions.rs.
package patch

import "github.com/loomlang/loomc/internal/x86var"

const (
	int32Min = -(1 << 31)
	int32Max = (1 << 31) - 1
)

func fitsInt32(v int64) bool { return v >= int32Min && v <= int32Max }

var twoOperand = map[x86var.InstrKind]bool{
	x86var.IAdd: true, x86var.ISub: true, x86var.IAnd: true,
	x86var.IOr: true, x86var.IXor: true, x86var.ICmp: true, x86var.IMov: true,
}

// Patch rewrites every block of prog in place.
func Patch(prog *x86var.Program) {
	for _, label := range prog.Order {
		block := prog.Blocks[label]
		var out []x86var.Instr
		for _, instr := range block.Instrs {
			out = append(out, patchOne(instr)...)
		}
		block.Instrs = out
	}
}

func patchOne(instr x86var.Instr) []x86var.Instr {
	var pre []x86var.Instr

	if instr.Src.Kind == x86var.OpImm && !fitsInt32(instr.Src.Imm) {
		pre = append(pre, x86var.Instr{Kind: x86var.IMov, Src: instr.Src, Dst: x86var.R(x86var.RAX)})
		instr.Src = x86var.R(x86var.RAX)
	}
	if instr.Dst.Kind == x86var.OpImm && !fitsInt32(instr.Dst.Imm) {
		pre = append(pre, x86var.Instr{Kind: x86var.IMov, Src: instr.Dst, Dst: x86var.R(x86var.RAX)})
		instr.Dst = x86var.R(x86var.RAX)
	}

	if twoOperand[instr.Kind] && instr.Src.Kind == x86var.OpDeref && instr.Dst.Kind == x86var.OpDeref {
		pre = append(pre, x86var.Instr{Kind: x86var.IMov, Src: instr.Src, Dst: x86var.R(x86var.RAX)})
		instr.Src = x86var.R(x86var.RAX)
	}

	return append(pre, instr)
}
