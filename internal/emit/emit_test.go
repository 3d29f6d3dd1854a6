package emit

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/x86var"
)

// Jump resolution (spec.md §8 universal property): decoding the 32-bit
// displacement recorded for a jmp yields the byte offset of the target
// block relative to the instruction following the displacement.
func TestEncodeProgramResolvesJmpDisplacement(t *testing.T) {
	tbl := symtab.NewTable()
	entry := tbl.Fresh("entry")
	target := tbl.Fresh("target")

	prog := &x86var.Program{Entry: entry}
	prog.AddBlock(&x86var.Block{Label: entry, Instrs: []x86var.Instr{
		{Kind: x86var.IJmp, Label: target},
	}})
	prog.AddBlock(&x86var.Block{Label: target, Instrs: []x86var.Instr{
		{Kind: x86var.IRet},
	}})

	code, entryOff, err := EncodeProgram(prog)
	require.NoError(t, err)
	require.Equal(t, 0, entryOff)
	require.Equal(t, byte(0xE9), code[0])

	dispOffset := 1
	rel := int32(binary.LittleEndian.Uint32(code[dispOffset : dispOffset+4]))
	targetOffset := int(rel) + dispOffset + 4
	require.Equal(t, 5, targetOffset) // jmp is 5 bytes; target block starts right after it
	require.Equal(t, byte(0xC3), code[targetOffset])
}

func TestBuildELFHeaderMagicAndEntryPoint(t *testing.T) {
	code := []byte{0xC3}
	image := BuildELF(code, 0)
	require.Equal(t, []byte{0x7F, 'E', 'L', 'F'}, image[:4])
	entry := binary.LittleEndian.Uint64(image[24:32])
	require.Equal(t, uint64(codeBaseAddr), entry)
}
