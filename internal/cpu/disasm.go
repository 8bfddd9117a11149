package cpu

import "fmt"

// Disassemble renders a single instruction word as RV64I assembly syntax.
// It covers only the subset this interpreter executes; an unrecognized
// encoding renders as a hex literal, the same fallback
// bassosimone-risc32's Disassemble uses for its own unknown-opcode case.
func Disassemble(word uint32) string {
	d := decode(word)

	switch d.opcode {
	case OpLUI:
		return fmt.Sprintf("lui x%d, %#x", d.rd, uint32(d.immU)>>12)
	case OpAUIPC:
		return fmt.Sprintf("auipc x%d, %#x", d.rd, uint32(d.immU)>>12)
	case OpJAL:
		return fmt.Sprintf("jal x%d, %d", d.rd, d.immJ)
	case OpJALR:
		return fmt.Sprintf("jalr x%d, %d(x%d)", d.rd, d.immI, d.rs1)
	case OpBranch:
		return fmt.Sprintf("%s x%d, x%d, %d", branchMnemonic(d.funct3), d.rs1, d.rs2, d.immB)
	case OpLoad:
		return fmt.Sprintf("%s x%d, %d(x%d)", loadMnemonic(d.funct3), d.rd, d.immI, d.rs1)
	case OpStore:
		return fmt.Sprintf("%s x%d, %d(x%d)", storeMnemonic(d.funct3), d.rs2, d.immS, d.rs1)
	case OpImm:
		return fmt.Sprintf("%s x%d, x%d, %d", opImmMnemonic(d), d.rd, d.rs1, d.immI)
	case OpOp:
		return fmt.Sprintf("%s x%d, x%d, x%d", opMnemonic(d), d.rd, d.rs1, d.rs2)
	case OpSystem:
		switch d.immI {
		case 0:
			return "ecall"
		case 1:
			return "ebreak"
		}

		return fmt.Sprintf("<unknown system: %#08x>", word)
	case OpMiscMem:
		return "fence"
	default:
		return fmt.Sprintf("<unknown instruction: %#08x>", word)
	}
}

func branchMnemonic(f3 uint32) string {
	switch f3 {
	case f3BEQ:
		return "beq"
	case f3BNE:
		return "bne"
	case f3BLT:
		return "blt"
	case f3BGE:
		return "bge"
	case f3BLTU:
		return "bltu"
	case f3BGEU:
		return "bgeu"
	default:
		return "b?"
	}
}

func loadMnemonic(f3 uint32) string {
	switch f3 {
	case f3LB:
		return "lb"
	case f3LH:
		return "lh"
	case f3LW:
		return "lw"
	case f3LD:
		return "ld"
	case f3LBU:
		return "lbu"
	case f3LHU:
		return "lhu"
	case f3LWU:
		return "lwu"
	default:
		return "l?"
	}
}

func storeMnemonic(f3 uint32) string {
	switch f3 {
	case f3SB:
		return "sb"
	case f3SH:
		return "sh"
	case f3SW:
		return "sw"
	case f3SD:
		return "sd"
	default:
		return "s?"
	}
}

func opImmMnemonic(d decoded) string {
	switch d.funct3 {
	case f3ADDSUB:
		return "addi"
	case f3SLT:
		return "slti"
	case f3SLTU:
		return "sltiu"
	case f3XOR:
		return "xori"
	case f3OR:
		return "ori"
	case f3AND:
		return "andi"
	case f3SLL:
		return "slli"
	case f3SRx:
		if d.funct7 == f7Alt {
			return "srai"
		}

		return "srli"
	default:
		return "?i"
	}
}

func opMnemonic(d decoded) string {
	if d.funct7 == f7MExt {
		switch d.funct3 {
		case 0b000:
			return "mul"
		case 0b100:
			return "div"
		case 0b101:
			return "divu"
		case 0b110:
			return "rem"
		case 0b111:
			return "remu"
		}
	}

	switch d.funct3 {
	case f3ADDSUB:
		if d.funct7 == f7Alt {
			return "sub"
		}

		return "add"
	case f3SLL:
		return "sll"
	case f3SLT:
		return "slt"
	case f3SLTU:
		return "sltu"
	case f3XOR:
		return "xor"
	case f3SRx:
		if d.funct7 == f7Alt {
			return "sra"
		}

		return "srl"
	case f3OR:
		return "or"
	case f3AND:
		return "and"
	default:
		return "?"
	}
}
