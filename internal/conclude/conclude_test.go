package conclude

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/x86var"
)

func TestConcludeRewritesEntryAndCallsUserFunctionThenExit(t *testing.T) {
	tbl := symtab.NewTable()
	userEntry := tbl.Fresh("main_user")
	exitLabel := tbl.Fresh("rt_exit")

	prog := &x86var.Program{Entry: userEntry, FrameSize: 0}
	prog.AddBlock(&x86var.Block{Label: userEntry, Instrs: nil})

	Conclude(prog, tbl, userEntry, exitLabel)

	require.NotEqual(t, userEntry, prog.Entry)
	synthetic := prog.Blocks[prog.Entry]
	require.NotNil(t, synthetic)

	var calls []symtab.UniqueSym
	for _, instr := range synthetic.Instrs {
		if instr.Kind == x86var.ICallDirect {
			calls = append(calls, instr.Label)
		}
	}
	require.Equal(t, []symtab.UniqueSym{userEntry, exitLabel}, calls)
}

func TestConcludeAddsFrameAdjustmentWhenFrameSizeNonZero(t *testing.T) {
	tbl := symtab.NewTable()
	userEntry := tbl.Fresh("main_user")
	exitLabel := tbl.Fresh("rt_exit")

	prog := &x86var.Program{Entry: userEntry, FrameSize: 32}
	prog.AddBlock(&x86var.Block{Label: userEntry, Instrs: nil})

	Conclude(prog, tbl, userEntry, exitLabel)

	synthetic := prog.Blocks[prog.Entry]
	var sawSub, sawAdd bool
	for _, instr := range synthetic.Instrs {
		if instr.Kind == x86var.ISub && instr.Src.Imm == 32 {
			sawSub = true
		}
		if instr.Kind == x86var.IAdd && instr.Src.Imm == 32 {
			sawAdd = true
		}
	}
	require.True(t, sawSub)
	require.True(t, sawAdd)
}
