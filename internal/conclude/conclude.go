// Package conclude implements stage 11: synthesising the program's real
// entry block, which sets up the stack frame, calls the user's designated
// entry function, and hands its result to the exit runtime.
//
// Grounded on original_source/compiler/src/passes/conclude/conclude.rs.
package conclude

import (
	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/x86var"
)

// Conclude inserts the synthetic main block described by the spec and
// rewrites prog.Entry to point at it. userEntry is the symbol of the
// program's designated entry function; exitLabel is runtimeasm's exit
// block.
func Conclude(prog *x86var.Program, tbl *symtab.Table, userEntry, exitLabel symtab.UniqueSym) {
	main := tbl.Fresh("main")
	frame := int64(prog.FrameSize)

	instrs := []x86var.Instr{
		{Kind: x86var.IPush, Src: x86var.R(x86var.RBP)},
		{Kind: x86var.IMov, Src: x86var.R(x86var.RSP), Dst: x86var.R(x86var.RBP)},
	}
	if frame > 0 {
		instrs = append(instrs, x86var.Instr{Kind: x86var.ISub, Src: x86var.Imm(frame), Dst: x86var.R(x86var.RSP)})
	}
	instrs = append(instrs,
		x86var.Instr{Kind: x86var.ICallDirect, Label: userEntry},
		x86var.Instr{Kind: x86var.IMov, Src: x86var.R(x86var.RAX), Dst: x86var.R(x86var.RDI)},
	)
	if frame > 0 {
		instrs = append(instrs, x86var.Instr{Kind: x86var.IAdd, Src: x86var.Imm(frame), Dst: x86var.R(x86var.RSP)})
	}
	instrs = append(instrs,
		x86var.Instr{Kind: x86var.IPop, Dst: x86var.R(x86var.RBP)},
		x86var.Instr{Kind: x86var.ICallDirect, Label: exitLabel},
	)

	prog.AddBlock(&x86var.Block{Label: main, Instrs: instrs})
	prog.Entry = main
}
