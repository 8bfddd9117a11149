package cpu

import "github.com/rv64vm/sandbox/internal/trap"

// exec.go executes a decoded instruction against the machine's register
// file and memory. It returns the next PC and, when the instruction faults,
// a non-nil *trap.Exception -- the caller (Step) is responsible for not
// committing any further state once a fault is raised.

// funct3 values, by opcode group.
const (
	f3ADDSUB = 0b000
	f3SLL    = 0b001
	f3SLT    = 0b010
	f3SLTU   = 0b011
	f3XOR    = 0b100
	f3SRx    = 0b101
	f3OR     = 0b110
	f3AND    = 0b111

	f3BEQ  = 0b000
	f3BNE  = 0b001
	f3BLT  = 0b100
	f3BGE  = 0b101
	f3BLTU = 0b110
	f3BGEU = 0b111

	f3LB  = 0b000
	f3LH  = 0b001
	f3LW  = 0b010
	f3LD  = 0b011
	f3LBU = 0b100
	f3LHU = 0b101
	f3LWU = 0b110

	f3SB = 0b000
	f3SH = 0b001
	f3SW = 0b010
	f3SD = 0b011

	f3ECALLBREAK = 0b000
)

const (
	f7Base = 0b0000000
	f7Alt  = 0b0100000 // SUB, SRA.
	f7MExt = 0b0000001 // M-extension: MUL/DIV/REM.
)

// The I-type 64-bit shift-immediates (SLLI/SRLI/SRAI) encode a 6-bit shamt
// in bits 24:20 plus one more shamt bit at 25, leaving only bits 31:26 as
// the mode field -- one bit narrower than the 7-bit funct7 that R-type
// instructions use. Comparing d.funct7 against f7Base/f7Alt here would
// spuriously reject any shamt >= 32, since bit 25 (part of the 6-bit
// shamt) is also bit 0 of funct7.
const (
	f6Base = 0b000000
	f6Alt  = 0b010000 // SRAI.
)

// execute runs one decoded instruction. It mutates m's registers and memory
// and returns the PC of the *next* instruction to fetch. On fault, the
// returned PC is meaningless; the caller must not advance.
func (m *Machine) execute(pc uint64, word uint32, d decoded) (uint64, *trap.Exception) {
	next := pc + 4

	switch d.opcode {
	case OpLUI:
		m.Regs.Set(d.rd, uint64(d.immU))
	case OpAUIPC:
		m.Regs.Set(d.rd, pc+uint64(d.immU))
	case OpJAL:
		m.Regs.Set(d.rd, pc+4)
		next = pc + uint64(d.immJ)
	case OpJALR:
		target := (m.Regs.Get(d.rs1) + uint64(d.immI)) &^ 1
		m.Regs.Set(d.rd, pc+4)
		next = target
	case OpBranch:
		taken, ex := evalBranch(d, m.Regs.Get(d.rs1), m.Regs.Get(d.rs2))
		if ex != nil {
			return 0, trap.New(*ex, pc, uint64(word))
		}

		if taken {
			next = pc + uint64(d.immB)
		}
	case OpLoad:
		if ex := m.execLoad(d); ex != nil {
			aux := m.Regs.Get(d.rs1) + uint64(d.immI)
			if ex.Cause == trap.IllegalInstruction {
				aux = uint64(word)
			}

			return 0, trap.New(ex.Cause, pc, aux)
		}
	case OpStore:
		if ex := m.execStore(d); ex != nil {
			aux := m.Regs.Get(d.rs1) + uint64(d.immS)
			if ex.Cause == trap.IllegalInstruction {
				aux = uint64(word)
			}

			return 0, trap.New(ex.Cause, pc, aux)
		}
	case OpImm:
		if !execOpImm(m, d) {
			return 0, trap.New(trap.IllegalInstruction, pc, uint64(word))
		}
	case OpImm32:
		if !execOpImm32(m, d) {
			return 0, trap.New(trap.IllegalInstruction, pc, uint64(word))
		}
	case OpOp:
		if !execOp(m, d) {
			return 0, trap.New(trap.IllegalInstruction, pc, uint64(word))
		}
	case OpOp32:
		if !execOp32(m, d) {
			return 0, trap.New(trap.IllegalInstruction, pc, uint64(word))
		}
	case OpMiscMem:
		// FENCE and FENCE.I: no-op in a single-hart, single-threaded machine.
	case OpSystem:
		switch {
		case d.funct3 != f3ECALLBREAK:
			return 0, trap.New(trap.IllegalInstruction, pc, uint64(word))
		case d.immI == 0: // ECALL
			return 0, trap.New(trap.EnvironmentCallFromUMode, pc, 0)
		case d.immI == 1: // EBREAK
			return 0, trap.New(trap.Breakpoint, pc, 0)
		default:
			return 0, trap.New(trap.IllegalInstruction, pc, uint64(word))
		}
	default:
		return 0, trap.New(trap.IllegalInstruction, pc, uint64(word))
	}

	return next, nil
}

// evalBranch returns whether a branch is taken, or a Cause if funct3 names
// no defined branch.
func evalBranch(d decoded, a, b uint64) (bool, *trap.Cause) {
	switch d.funct3 {
	case f3BEQ:
		return a == b, nil
	case f3BNE:
		return a != b, nil
	case f3BLT:
		return int64(a) < int64(b), nil
	case f3BGE:
		return int64(a) >= int64(b), nil
	case f3BLTU:
		return a < b, nil
	case f3BGEU:
		return a >= b, nil
	default:
		c := trap.IllegalInstruction
		return false, &c
	}
}

var loadWidth = map[uint32]int{
	f3LB: 1, f3LH: 2, f3LW: 4, f3LD: 8,
	f3LBU: 1, f3LHU: 2, f3LWU: 4,
}

var storeWidth = map[uint32]int{
	f3SB: 1, f3SH: 2, f3SW: 4, f3SD: 8,
}

func (m *Machine) execLoad(d decoded) *trap.Exception {
	addr := m.Regs.Get(d.rs1) + uint64(d.immI)

	switch d.funct3 {
	case f3LB:
		v, ex := m.Mem.Load8(addr)
		if ex != nil {
			return ex
		}

		m.Regs.Set(d.rd, uint64(int64(int8(v))))
	case f3LH:
		v, ex := m.Mem.Load16(addr)
		if ex != nil {
			return ex
		}

		m.Regs.Set(d.rd, uint64(int64(int16(v))))
	case f3LW:
		v, ex := m.Mem.Load32(addr)
		if ex != nil {
			return ex
		}

		m.Regs.Set(d.rd, uint64(int64(int32(v))))
	case f3LD:
		v, ex := m.Mem.Load64(addr)
		if ex != nil {
			return ex
		}

		m.Regs.Set(d.rd, v)
	case f3LBU:
		v, ex := m.Mem.Load8(addr)
		if ex != nil {
			return ex
		}

		m.Regs.Set(d.rd, uint64(v))
	case f3LHU:
		v, ex := m.Mem.Load16(addr)
		if ex != nil {
			return ex
		}

		m.Regs.Set(d.rd, uint64(v))
	case f3LWU:
		v, ex := m.Mem.Load32(addr)
		if ex != nil {
			return ex
		}

		m.Regs.Set(d.rd, uint64(v))
	default:
		return trap.New(trap.IllegalInstruction, 0, 0)
	}

	m.MemStats.recordRead(loadWidth[d.funct3])

	return nil
}

func (m *Machine) execStore(d decoded) *trap.Exception {
	addr := m.Regs.Get(d.rs1) + uint64(d.immS)
	val := m.Regs.Get(d.rs2)

	var ex *trap.Exception

	switch d.funct3 {
	case f3SB:
		ex = m.Mem.Store8(addr, uint8(val))
	case f3SH:
		ex = m.Mem.Store16(addr, uint16(val))
	case f3SW:
		ex = m.Mem.Store32(addr, uint32(val))
	case f3SD:
		ex = m.Mem.Store64(addr, val)
	default:
		return trap.New(trap.IllegalInstruction, 0, 0)
	}

	if ex != nil {
		return ex
	}

	m.MemStats.recordWrite(storeWidth[d.funct3])

	return nil
}

func execOpImm(m *Machine, d decoded) bool {
	a := m.Regs.Get(d.rs1)
	imm := uint64(d.immI)

	var result uint64

	switch d.funct3 {
	case f3ADDSUB:
		result = a + imm
	case f3SLT:
		result = boolToU64(int64(a) < d.immI)
	case f3SLTU:
		result = boolToU64(a < imm)
	case f3XOR:
		result = a ^ imm
	case f3OR:
		result = a | imm
	case f3AND:
		result = a & imm
	case f3SLL:
		if d.funct6 != f6Base {
			return false
		}

		result = a << (d.shamt & 0x3f)
	case f3SRx:
		switch d.funct6 {
		case f6Base:
			result = a >> (d.shamt & 0x3f)
		case f6Alt:
			result = uint64(int64(a) >> (d.shamt & 0x3f))
		default:
			return false
		}
	default:
		return false
	}

	m.Regs.Set(d.rd, result)

	return true
}

func execOpImm32(m *Machine, d decoded) bool {
	a := uint32(m.Regs.Get(d.rs1))
	shamt := d.shamt & 0x1f

	var result int32

	switch d.funct3 {
	case f3ADDSUB:
		result = int32(a + uint32(d.immI))
	case f3SLL:
		if d.funct7 != f7Base {
			return false
		}

		result = int32(a << shamt)
	case f3SRx:
		switch d.funct7 {
		case f7Base:
			result = int32(a >> shamt)
		case f7Alt:
			result = int32(a) >> shamt
		default:
			return false
		}
	default:
		return false
	}

	m.Regs.Set(d.rd, uint64(int64(result)))

	return true
}

func execOp(m *Machine, d decoded) bool {
	a, b := m.Regs.Get(d.rs1), m.Regs.Get(d.rs2)

	var result uint64

	switch d.funct7 {
	case f7Base:
		switch d.funct3 {
		case f3ADDSUB:
			result = a + b
		case f3SLL:
			result = a << (b & 0x3f)
		case f3SLT:
			result = boolToU64(int64(a) < int64(b))
		case f3SLTU:
			result = boolToU64(a < b)
		case f3XOR:
			result = a ^ b
		case f3SRx:
			result = a >> (b & 0x3f)
		case f3OR:
			result = a | b
		case f3AND:
			result = a & b
		default:
			return false
		}
	case f7Alt:
		switch d.funct3 {
		case f3ADDSUB:
			result = a - b
		case f3SRx:
			result = uint64(int64(a) >> (b & 0x3f))
		default:
			return false
		}
	case f7MExt:
		if !execMExt64(d.funct3, a, b, &result) {
			return false
		}
	default:
		return false
	}

	m.Regs.Set(d.rd, result)

	return true
}

func execOp32(m *Machine, d decoded) bool {
	a, b := uint32(m.Regs.Get(d.rs1)), uint32(m.Regs.Get(d.rs2))

	var result int32

	switch d.funct7 {
	case f7Base:
		switch d.funct3 {
		case f3ADDSUB:
			result = int32(a + b)
		case f3SLL:
			result = int32(a << (b & 0x1f))
		case f3SRx:
			result = int32(a >> (b & 0x1f))
		default:
			return false
		}
	case f7Alt:
		switch d.funct3 {
		case f3ADDSUB:
			result = int32(a - b)
		case f3SRx:
			result = int32(a) >> (b & 0x1f)
		default:
			return false
		}
	case f7MExt:
		r, ok := execMExt32(d.funct3, int32(a), int32(b))
		if !ok {
			return false
		}

		result = r
	default:
		return false
	}

	m.Regs.Set(d.rd, uint64(int64(result)))

	return true
}

// execMExt64 implements the 64-bit-wide M-extension operations (MUL, MULH,
// MULHU, MULHSU, DIV, DIVU, REM, REMU).
func execMExt64(funct3 uint32, a, b uint64, out *uint64) bool {
	switch funct3 {
	case 0b000: // MUL
		*out = a * b
	case 0b001: // MULH
		*out = uint64(mulHighSigned(int64(a), int64(b)))
	case 0b010: // MULHSU
		*out = uint64(mulHighSignedUnsigned(int64(a), b))
	case 0b011: // MULHU
		*out = mulHighUnsigned(a, b)
	case 0b100: // DIV
		if b == 0 {
			*out = ^uint64(0)
		} else if int64(a) == minInt64 && int64(b) == -1 {
			*out = a // the overflowing quotient is the dividend, minInt64.
		} else {
			*out = uint64(int64(a) / int64(b))
		}
	case 0b101: // DIVU
		if b == 0 {
			*out = ^uint64(0)
		} else {
			*out = a / b
		}
	case 0b110: // REM
		if b == 0 {
			*out = a
		} else if int64(a) == minInt64 && int64(b) == -1 {
			*out = 0
		} else {
			*out = uint64(int64(a) % int64(b))
		}
	case 0b111: // REMU
		if b == 0 {
			*out = a
		} else {
			*out = a % b
		}
	default:
		return false
	}

	return true
}

const minInt64 = -9223372036854775808

// execMExt32 implements the W-suffixed M-extension operations (MULW, DIVW,
// DIVUW, REMW, REMUW). MULHW variants do not exist in the base ISA.
func execMExt32(funct3 uint32, a, b int32) (int32, bool) {
	switch funct3 {
	case 0b000: // MULW
		return a * b, true
	case 0b100: // DIVW
		if b == 0 {
			return -1, true
		}

		if a == minInt32 && b == -1 {
			return minInt32, true
		}

		return a / b, true
	case 0b101: // DIVUW
		if uint32(b) == 0 {
			return -1, true
		}

		return int32(uint32(a) / uint32(b)), true
	case 0b110: // REMW
		if b == 0 {
			return a, true
		}

		if a == minInt32 && b == -1 {
			return 0, true
		}

		return a % b, true
	case 0b111: // REMUW
		if uint32(b) == 0 {
			return int32(uint32(a)), true
		}

		return int32(uint32(a) % uint32(b)), true
	default:
		return 0, false
	}
}

const minInt32 = -2147483648

func mulHighUnsigned(a, b uint64) uint64 {
	aHi, aLo := a>>32, a&0xffffffff
	bHi, bLo := b>>32, b&0xffffffff

	lo := aLo * bLo
	mid1 := aHi * bLo
	mid2 := aLo * bHi
	hi := aHi * bHi

	carry := ((mid1 & 0xffffffff) + (mid2 & 0xffffffff) + (lo >> 32)) >> 32

	return hi + (mid1 >> 32) + (mid2 >> 32) + carry
}

func mulHighSigned(a, b int64) int64 {
	neg := false

	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		ua = uint64(-a)
		neg = !neg
	}

	if b < 0 {
		ub = uint64(-b)
		neg = !neg
	}

	hi := mulHighUnsigned(ua, ub)
	lo := ua * ub

	if !neg {
		return int64(hi)
	}

	// Negate the 128-bit product {hi:lo}.
	lo = ^lo + 1
	hi = ^hi

	if lo == 0 {
		hi++
	}

	return int64(hi)
}

func mulHighSignedUnsigned(a int64, b uint64) int64 {
	if a >= 0 {
		return int64(mulHighUnsigned(uint64(a), b))
	}

	ua := uint64(-a)
	hi := mulHighUnsigned(ua, b)
	lo := ua * b

	hi = ^hi
	lo = ^lo + 1

	if lo == 0 {
		hi++
	}

	return int64(hi)
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}
