package cpu

// decode.go classifies a 32-bit instruction word into the RV64I formats and
// pulls out its fields. Decoding never fails on its own -- an unrecognized
// opcode/funct combination is caught in exec.go, where enough context exists
// to raise illegal_instruction with the right auxiliary value.

// Opcode is the low 7 bits of an instruction word, RISC-V's base opcode map.
type Opcode uint32

const (
	OpLoad    Opcode = 0b0000011
	OpMiscMem Opcode = 0b0001111
	OpImm     Opcode = 0b0010011
	OpAUIPC   Opcode = 0b0010111
	OpImm32   Opcode = 0b0011011
	OpStore   Opcode = 0b0100011
	OpOp      Opcode = 0b0110011
	OpLUI     Opcode = 0b0110111
	OpOp32    Opcode = 0b0111011
	OpBranch  Opcode = 0b1100011
	OpJALR    Opcode = 0b1100111
	OpJAL     Opcode = 0b1101111
	OpSystem  Opcode = 0b1110011
)

// decoded holds every field a format might need. Fields that don't apply to
// a given format are simply unused; this keeps Decode a single pure
// function instead of one per format.
type decoded struct {
	opcode Opcode
	rd     uint8
	rs1    uint8
	rs2    uint8
	funct3 uint32
	funct7 uint32
	funct6 uint32 // bits 31:26 -- the I-type 64-bit shift's mode field; see exec.go.
	immI   int64
	immS   int64
	immB   int64
	immU   int64
	immJ   int64
	shamt  uint32 // low 6 bits of the I-immediate, for shift instructions.
}

func decode(word uint32) decoded {
	d := decoded{
		opcode: Opcode(word & 0x7f),
		rd:     uint8((word >> 7) & 0x1f),
		rs1:    uint8((word >> 15) & 0x1f),
		rs2:    uint8((word >> 20) & 0x1f),
		funct3: (word >> 12) & 0x7,
		funct7: (word >> 25) & 0x7f,
		funct6: (word >> 26) & 0x3f,
	}

	d.immI = signExtend(int64(word)>>20, 12)
	d.shamt = (word >> 20) & 0x3f

	immS := (int64(word>>25&0x7f) << 5) | int64(word>>7&0x1f)
	d.immS = signExtend(immS, 12)

	immB := (int64(word>>31&0x1) << 12) |
		(int64(word>>7&0x1) << 11) |
		(int64(word>>25&0x3f) << 5) |
		(int64(word>>8&0xf) << 1)
	d.immB = signExtend(immB, 13)

	d.immU = int64(int32(word & 0xfffff000))

	immJ := (int64(word>>31&0x1) << 20) |
		(int64(word>>12&0xff) << 12) |
		(int64(word>>20&0x1) << 11) |
		(int64(word>>21&0x3ff) << 1)
	d.immJ = signExtend(immJ, 21)

	return d
}

// signExtend sign-extends the low `bits` bits of v.
func signExtend(v int64, bits uint) int64 {
	shift := 64 - bits
	return (v << shift) >> shift
}

// encode reassembles a decoded value back into its 32-bit instruction word.
// It is the inverse of decode on the recognized RV64I formats: for any word
// with a recognized opcode, encode(decode(word)) == word. Each case below
// packs only the fields that format actually carries -- decode fills every
// field unconditionally, but e.g. an S-type word's rd bits are really part
// of immS, so encode must not read d.rd for OpStore.
func encode(d decoded) uint32 {
	word := uint32(d.opcode) & 0x7f

	switch d.opcode {
	case OpOp, OpOp32:
		word |= uint32(d.rd&0x1f) << 7
		word |= (d.funct3 & 0x7) << 12
		word |= uint32(d.rs1&0x1f) << 15
		word |= uint32(d.rs2&0x1f) << 20
		word |= (d.funct7 & 0x7f) << 25
	case OpImm, OpImm32, OpLoad, OpJALR, OpSystem, OpMiscMem:
		word |= uint32(d.rd&0x1f) << 7
		word |= (d.funct3 & 0x7) << 12
		word |= uint32(d.rs1&0x1f) << 15
		word |= (uint32(d.immI) & 0xfff) << 20
	case OpStore:
		imm := uint32(d.immS) & 0xfff
		word |= (imm & 0x1f) << 7
		word |= (d.funct3 & 0x7) << 12
		word |= uint32(d.rs1&0x1f) << 15
		word |= uint32(d.rs2&0x1f) << 20
		word |= ((imm >> 5) & 0x7f) << 25
	case OpBranch:
		imm := uint32(d.immB) & 0x1fff
		word |= ((imm >> 11) & 0x1) << 7
		word |= ((imm >> 1) & 0xf) << 8
		word |= (d.funct3 & 0x7) << 12
		word |= uint32(d.rs1&0x1f) << 15
		word |= uint32(d.rs2&0x1f) << 20
		word |= ((imm >> 5) & 0x3f) << 25
		word |= ((imm >> 12) & 0x1) << 31
	case OpLUI, OpAUIPC:
		word |= uint32(d.rd&0x1f) << 7
		word |= uint32(d.immU) & 0xfffff000
	case OpJAL:
		imm := uint32(d.immJ) & 0x1fffff
		word |= uint32(d.rd&0x1f) << 7
		word |= ((imm >> 12) & 0xff) << 12
		word |= ((imm >> 11) & 0x1) << 20
		word |= ((imm >> 1) & 0x3ff) << 21
		word |= ((imm >> 20) & 0x1) << 31
	}

	return word
}
