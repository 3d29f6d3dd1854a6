package emit

import "encoding/binary"

// elfHeaderSize and phdrSize are fixed regardless of code content, which is
// what lets codeBaseAddr in encode.go be a compile-time constant.
const (
	elfHeaderSize = 64
	phdrSize      = 56
	segmentBase   = 0x400000 // page-aligned PT_LOAD virtual address
)

func putU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// BuildELF packages code into a minimal static-executable ELF64 image: one
// RX PT_LOAD segment holding the ELF header, program header, and code, with
// entry set to codeBaseAddr + entryOffset.
func BuildELF(code []byte, entryOffset int) []byte {
	total := elfHeaderSize + phdrSize + len(code)
	out := make([]byte, total)

	out[0], out[1], out[2], out[3] = 0x7F, 'E', 'L', 'F'
	out[4] = 2 // ELFCLASS64
	out[5] = 1 // ELFDATA2LSB
	out[6] = 1 // EV_CURRENT
	out[7] = 0 // ELFOSABI_NONE (SYSV)
	putU16(out[16:], 2)                      // e_type: ET_EXEC
	putU16(out[18:], 62)                     // e_machine: EM_X86_64
	putU32(out[20:], 1)                      // e_version
	putU64(out[24:], uint64(codeBaseAddr+entryOffset)) // e_entry
	putU64(out[32:], uint64(elfHeaderSize))  // e_phoff
	putU64(out[40:], 0)                      // e_shoff: no section headers
	putU32(out[48:], 0)                      // e_flags
	putU16(out[52:], uint16(elfHeaderSize))  // e_ehsize
	putU16(out[54:], uint16(phdrSize))       // e_phentsize
	putU16(out[56:], 1)                      // e_phnum
	putU16(out[58:], 0)                      // e_shentsize
	putU16(out[60:], 0)                      // e_shnum
	putU16(out[62:], 0)                      // e_shstrndx

	phdr := out[elfHeaderSize:]
	putU32(phdr[0:], 1)                            // p_type: PT_LOAD
	putU32(phdr[4:], 5)                             // p_flags: PF_R|PF_X
	putU64(phdr[8:], 0)                             // p_offset
	putU64(phdr[16:], uint64(segmentBase))          // p_vaddr
	putU64(phdr[24:], uint64(segmentBase))          // p_paddr
	putU64(phdr[32:], uint64(total))                // p_filesz
	putU64(phdr[40:], uint64(total))                // p_memsz
	putU64(phdr[48:], 0x1000)                       // p_align

	copy(out[elfHeaderSize+phdrSize:], code)
	return out
}
