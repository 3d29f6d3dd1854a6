package patch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/x86var"
)

func oneBlockProgram(instrs []x86var.Instr) *x86var.Program {
	tbl := symtab.NewTable()
	entry := tbl.Fresh("start")
	prog := &x86var.Program{Entry: entry}
	prog.AddBlock(&x86var.Block{Label: entry, Instrs: instrs})
	return prog
}

// Patch correctness (spec.md §8 universal property): after patch, no
// instruction has two memory operands.
func TestPatchEliminatesMemMemOperands(t *testing.T) {
	mem1 := x86var.Deref(x86var.RBP, -8)
	mem2 := x86var.Deref(x86var.RBP, -16)
	prog := oneBlockProgram([]x86var.Instr{
		{Kind: x86var.IAdd, Src: mem1, Dst: mem2},
	})
	Patch(prog)

	for _, label := range prog.Order {
		for _, instr := range prog.Blocks[label].Instrs {
			require.False(t, instr.Src.Kind == x86var.OpDeref && instr.Dst.Kind == x86var.OpDeref,
				"instruction %+v still has two memory operands", instr)
		}
	}
}

func TestPatchStagesOversizedImmediateThroughRAX(t *testing.T) {
	big := int64(1) << 40
	prog := oneBlockProgram([]x86var.Instr{
		{Kind: x86var.IMov, Src: x86var.Imm(big), Dst: x86var.R(x86var.RCX)},
	})
	Patch(prog)

	instrs := prog.Blocks[prog.Entry].Instrs
	require.Len(t, instrs, 2)
	require.Equal(t, x86var.OpReg, instrs[0].Dst.Kind)
	require.Equal(t, x86var.RAX, instrs[0].Dst.Reg)
	require.Equal(t, x86var.OpReg, instrs[1].Src.Kind)
	require.Equal(t, x86var.RAX, instrs[1].Src.Reg)
}

func TestPatchLeavesOrdinaryInstructionsUntouched(t *testing.T) {
	prog := oneBlockProgram([]x86var.Instr{
		{Kind: x86var.IMov, Src: x86var.Imm(5), Dst: x86var.R(x86var.RAX)},
	})
	Patch(prog)
	require.Len(t, prog.Blocks[prog.Entry].Instrs, 1)
}
