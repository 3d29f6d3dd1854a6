// Package emit implements stage 12: encoding the complete x86 program into
// raw machine code (encode.go) and packaging it into a minimal static ELF64
// executable (elf.go).
//
// Grounded on the teacher's std/compiler/x64.go for REX/ModR-M byte
// construction and std/compiler/elf_x64.go for ELF layout, simplified to
// the spec's literal encoding scheme: every memory operand always uses the
// disp32 addressing form (no disp8 special case), and every immediate is a
// plain 4-byte field, except a mov of an immediate wider than int32 into a
// register (the staging mov patch emits into RAX), which is encoded as
// movabs with an 8-byte immediate.
package emit

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/x86var"
)

// codeBaseAddr is PROGRAM_BASE: the virtual address at which the first
// byte of emitted code (not the ELF/program headers preceding it in the
// file) is mapped. Fixed because the header sizes this repository emits
// are themselves fixed (64-byte ELF header + 56-byte program header),
// defined alongside the ELF layout in elf.go.
const codeBaseAddr = segmentBase + elfHeaderSize + phdrSize

// jump kinds recorded for the second resolution pass.
type relJump struct {
	offset int
	target symtab.UniqueSym
}

type absJump struct {
	offset int
	target symtab.UniqueSym
}

type encoder struct {
	code         []byte
	blockOffsets map[symtab.UniqueSym]int
	relJumps     []relJump
	absJumps     []absJump
}

func (e *encoder) emit(bs ...byte) { e.code = append(e.code, bs...) }

func (e *encoder) emitU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.code = append(e.code, b[:]...)
}

// EncodeProgram lowers prog into raw machine code, resolving all jump and
// load-label targets, and reports the entry block's byte offset.
func EncodeProgram(prog *x86var.Program) ([]byte, int, error) {
	e := &encoder{blockOffsets: map[symtab.UniqueSym]int{}}

	for _, label := range prog.Order {
		e.blockOffsets[label] = len(e.code)
		block := prog.Blocks[label]
		for _, instr := range block.Instrs {
			if err := e.encodeInstr(instr); err != nil {
				return nil, 0, errors.Wrapf(err, "emit: block %s", label)
			}
		}
	}

	for _, j := range e.relJumps {
		target, ok := e.blockOffsets[j.target]
		if !ok {
			return nil, 0, errors.Errorf("emit: unresolved label %s", j.target)
		}
		rel := int32(target - (j.offset + 4))
		binary.LittleEndian.PutUint32(e.code[j.offset:], uint32(rel))
	}
	for _, j := range e.absJumps {
		target, ok := e.blockOffsets[j.target]
		if !ok {
			return nil, 0, errors.Errorf("emit: unresolved label %s", j.target)
		}
		abs := int32(codeBaseAddr + target)
		binary.LittleEndian.PutUint32(e.code[j.offset:], uint32(abs))
	}

	entryOff, ok := e.blockOffsets[prog.Entry]
	if !ok {
		return nil, 0, errors.Errorf("emit: entry block %s has no offset", prog.Entry)
	}
	return e.code, entryOff, nil
}

// store-direction opcodes: `op r/m64, r64` (ModR/M reg field holds the
// source register; r/m field holds the destination).
var storeOpcode = map[x86var.InstrKind]byte{
	x86var.IAdd: 0x01, x86var.ISub: 0x29, x86var.IAnd: 0x21,
	x86var.IOr: 0x09, x86var.IXor: 0x31, x86var.ICmp: 0x39, x86var.IMov: 0x89,
}

// load-direction opcodes: `op r64, r/m64`, used when the source operand is
// memory and the destination is a register.
var loadOpcode = map[x86var.InstrKind]byte{
	x86var.IAdd: 0x03, x86var.ISub: 0x2B, x86var.IAnd: 0x23,
	x86var.IOr: 0x0B, x86var.IXor: 0x33, x86var.ICmp: 0x3B, x86var.IMov: 0x8B,
}

// immDigit is the ModR/M reg-field extension for the Group-1 imm32 opcode
// (0x81) per instruction.
var immDigit = map[x86var.InstrKind]byte{
	x86var.IAdd: 0, x86var.IOr: 1, x86var.IAnd: 4, x86var.ISub: 5, x86var.IXor: 6, x86var.ICmp: 7,
}

func rex(w bool, r, x, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

// modrmReg builds the register-direct (mod=11) ModR/M byte.
func modrmReg(regField byte, rm x86var.Reg) byte {
	return 0xC0 | (regField&7)<<3 | byte(rm)&7
}

// emitMemOperand emits the ModR/M (mod=10, disp32), optional SIB, and
// 4-byte displacement for a [base+disp32] memory operand with the given
// ModR/M reg field.
func (e *encoder) emitMemOperand(regField byte, base x86var.Reg, disp int32) {
	e.emit(0x80 | (regField&7)<<3 | byte(base)&7)
	if byte(base)&7 == 4 { // RSP or R12 need an explicit SIB byte
		e.emit(0x24)
	}
	e.emitU32(uint32(disp))
}

func (e *encoder) encodeInstr(instr x86var.Instr) error {
	switch instr.Kind {
	case x86var.IAdd, x86var.ISub, x86var.IAnd, x86var.IOr, x86var.IXor, x86var.ICmp, x86var.IMov:
		return e.encodeBinary(instr)
	case x86var.INeg, x86var.INot:
		return e.encodeUnaryGrp3(instr)
	case x86var.IMul:
		// IMUL r/m64 (signed, implicit RDX:RAX), Grp3 digit /5. Values are
		// two's-complement signed throughout this compiler's IR; the low
		// 64 bits IMul writes to RAX match MUL's bit-for-bit, but using the
		// signed form keeps this consistent with IDiv below.
		return e.encodeGrp3(instr.Src, 5)
	case x86var.IDiv:
		// IDIV r/m64 (signed, implicit RDX:RAX), Grp3 digit /7. Select
		// always precedes this with Cqo to sign-extend RDX, so RDX:RAX
		// holds the correctly-signed 128-bit dividend.
		return e.encodeGrp3(instr.Src, 7)
	case x86var.ICqo:
		// CQO: sign-extend RAX into RDX:RAX (REX.W + 0x99).
		e.emit(rex(true, false, false, false), 0x99)
		return nil
	case x86var.IPush:
		return e.encodePushPop(0x50, instr.Src)
	case x86var.IPop:
		return e.encodePushPop(0x58, instr.Dst)
	case x86var.ISetCC:
		return e.encodeSetCC(instr)
	case x86var.IJmp:
		e.emit(0xE9)
		e.relJumps = append(e.relJumps, relJump{offset: len(e.code), target: instr.Label})
		e.emitU32(0)
		return nil
	case x86var.IJcc:
		e.emit(0x0F, byte(instr.CC))
		e.relJumps = append(e.relJumps, relJump{offset: len(e.code), target: instr.Label})
		e.emitU32(0)
		return nil
	case x86var.ICallDirect:
		e.emit(0xE8)
		e.relJumps = append(e.relJumps, relJump{offset: len(e.code), target: instr.Label})
		e.emitU32(0)
		return nil
	case x86var.ICallIndirect:
		return e.encodeCallIndirect(instr.Src)
	case x86var.ISyscall:
		e.emit(0x0F, 0x05)
		return nil
	case x86var.IRet:
		e.emit(0xC3)
		return nil
	case x86var.ILoadLabel:
		return e.encodeLoadLabel(instr)
	}
	return errors.Errorf("emit: unhandled instruction kind %v", instr.Kind)
}

func (e *encoder) encodeBinary(instr x86var.Instr) error {
	src, dst := instr.Src, instr.Dst

	if src.Kind == x86var.OpImm {
		if instr.Kind == x86var.IMov {
			if dst.Kind == x86var.OpReg && src.Imm != int64(int32(src.Imm)) {
				// MOVABS r64, imm64 — REX.W B8+r.
				e.emit(rex(true, false, false, byte(dst.Reg) >= 8), 0xB8+byte(dst.Reg)&7)
				var b [8]byte
				binary.LittleEndian.PutUint64(b[:], uint64(src.Imm))
				e.emit(b[:]...)
				return nil
			}
			// MOV r/m64, imm32 (sign-extended) — C7 /0.
			switch dst.Kind {
			case x86var.OpReg:
				e.emit(rex(true, false, false, byte(dst.Reg) >= 8), 0xC7, modrmReg(0, dst.Reg))
			case x86var.OpDeref:
				e.emit(rex(true, false, false, byte(dst.Base) >= 8), 0xC7)
				e.emitMemOperand(0, dst.Base, dst.Offset)
			default:
				return errors.Errorf("emit: mov imm into non-register/memory operand")
			}
			e.emitU32(uint32(int32(src.Imm)))
			return nil
		}
		digit, ok := immDigit[instr.Kind]
		if !ok {
			return errors.Errorf("emit: %v has no immediate form", instr.Kind)
		}
		switch dst.Kind {
		case x86var.OpReg:
			e.emit(rex(true, false, false, byte(dst.Reg) >= 8), 0x81, modrmReg(digit, dst.Reg))
		case x86var.OpDeref:
			e.emit(rex(true, false, false, byte(dst.Base) >= 8), 0x81)
			e.emitMemOperand(digit, dst.Base, dst.Offset)
		default:
			return errors.Errorf("emit: immediate binary op into non-register/memory operand")
		}
		e.emitU32(uint32(int32(src.Imm)))
		return nil
	}

	if src.Kind == x86var.OpDeref && dst.Kind == x86var.OpReg {
		op, ok := loadOpcode[instr.Kind]
		if !ok {
			return errors.Errorf("emit: %v has no memory-source form", instr.Kind)
		}
		e.emit(rex(true, byte(dst.Reg) >= 8, false, byte(src.Base) >= 8), op)
		e.emitMemOperand(byte(dst.Reg), src.Base, src.Offset)
		return nil
	}

	op, ok := storeOpcode[instr.Kind]
	if !ok {
		return errors.Errorf("emit: unsupported operand shape for %v", instr.Kind)
	}
	switch {
	case src.Kind == x86var.OpReg && dst.Kind == x86var.OpReg:
		e.emit(rex(true, byte(src.Reg) >= 8, false, byte(dst.Reg) >= 8), op, modrmReg(byte(src.Reg), dst.Reg))
		return nil
	case src.Kind == x86var.OpReg && dst.Kind == x86var.OpDeref:
		e.emit(rex(true, byte(src.Reg) >= 8, false, byte(dst.Base) >= 8), op)
		e.emitMemOperand(byte(src.Reg), dst.Base, dst.Offset)
		return nil
	}
	return errors.Errorf("emit: unsupported operand shape (src=%v dst=%v) for %v", src.Kind, dst.Kind, instr.Kind)
}

// Grp3 digit-extension unary/single-operand instructions: NOT=/2, NEG=/3,
// IMUL=/5, IDIV=/7 (implicit RDX:RAX operand, opcode F7).
func (e *encoder) encodeGrp3(src x86var.Operand, digit byte) error {
	switch src.Kind {
	case x86var.OpReg:
		e.emit(rex(true, false, false, byte(src.Reg) >= 8), 0xF7, modrmReg(digit, src.Reg))
		return nil
	case x86var.OpDeref:
		e.emit(rex(true, false, false, byte(src.Base) >= 8), 0xF7)
		e.emitMemOperand(digit, src.Base, src.Offset)
		return nil
	}
	return errors.Errorf("emit: grp3 operand must be register or memory")
}

func (e *encoder) encodeUnaryGrp3(instr x86var.Instr) error {
	digit := byte(2) // NOT
	if instr.Kind == x86var.INeg {
		digit = 3
	}
	return e.encodeGrp3(instr.Dst, digit)
}

func (e *encoder) encodePushPop(base byte, op x86var.Operand) error {
	if base == 0x50 && op.Kind == x86var.OpImm {
		// PUSH imm32 (sign-extended to 64 bits) — 68 id.
		e.emit(0x68)
		e.emitU32(uint32(int32(op.Imm)))
		return nil
	}
	if op.Kind != x86var.OpReg {
		return errors.Errorf("emit: push/pop operand must be a register")
	}
	if byte(op.Reg) >= 8 {
		e.emit(0x41, base+byte(op.Reg)&7)
	} else {
		e.emit(base + byte(op.Reg))
	}
	return nil
}

func (e *encoder) encodeSetCC(instr x86var.Instr) error {
	if instr.Dst.Kind != x86var.OpReg {
		return errors.Errorf("emit: setcc destination must be a register")
	}
	setccOp := byte(0x90 | (byte(instr.CC) & 0x0F))
	e.emit(rex(false, false, false, byte(instr.Dst.Reg) >= 8), 0x0F, setccOp, modrmReg(0, instr.Dst.Reg))
	return nil
}

func (e *encoder) encodeCallIndirect(src x86var.Operand) error {
	if src.Kind != x86var.OpReg {
		return errors.Errorf("emit: indirect call operand must be a register")
	}
	e.emit(rex(true, false, false, byte(src.Reg) >= 8), 0xFF, modrmReg(2, src.Reg))
	return nil
}

func (e *encoder) encodeLoadLabel(instr x86var.Instr) error {
	if instr.Dst.Kind != x86var.OpReg {
		return errors.Errorf("emit: load-label destination must be a register")
	}
	e.emit(rex(true, false, false, byte(instr.Dst.Reg) >= 8), 0xC7, modrmReg(0, instr.Dst.Reg))
	e.absJumps = append(e.absJumps, absJump{offset: len(e.code), target: instr.Label})
	e.emitU32(0)
	return nil
}
