// Package trap defines the exception codes and kernel error kinds shared by
// the interpreter and the kernel. Keeping them in one leaf package lets both
// sides agree on numeric identity without an import cycle.
package trap

import "fmt"

// Cause identifies why control left the normal fetch-decode-execute flow. The
// numeric values are the RISC-V exception codes and must not be renumbered:
// guest software and tests depend on them bit-exactly.
type Cause uint8

const (
	InstructionAddressMisaligned Cause = 0
	InstructionAccessFault       Cause = 1
	IllegalInstruction           Cause = 2
	Breakpoint                   Cause = 3
	LoadAddressMisaligned        Cause = 4
	LoadAccessFault              Cause = 5
	StoreAddressMisaligned       Cause = 6
	StoreAccessFault             Cause = 7
	EnvironmentCallFromUMode     Cause = 8
	EnvironmentCallFromSMode     Cause = 9
	InstructionPageFault         Cause = 12
	LoadPageFault                Cause = 13
	StorePageFault               Cause = 15

	// NumCauses bounds the exception-code space; ExceptionStats is indexed by
	// Cause up to this width.
	NumCauses = 16
)

var names = [NumCauses]string{
	InstructionAddressMisaligned: "instruction_address_misaligned",
	InstructionAccessFault:       "instruction_access_fault",
	IllegalInstruction:           "illegal_instruction",
	Breakpoint:                   "breakpoint",
	LoadAddressMisaligned:        "load_address_misaligned",
	LoadAccessFault:              "load_access_fault",
	StoreAddressMisaligned:       "store_address_misaligned",
	StoreAccessFault:             "store_access_fault",
	EnvironmentCallFromUMode:     "environment_call_from_u_mode",
	EnvironmentCallFromSMode:     "environment_call_from_s_mode",
	InstructionPageFault:         "instruction_page_fault",
	LoadPageFault:                "load_page_fault",
	StorePageFault:               "store_page_fault",
}

func (c Cause) String() string {
	if int(c) < len(names) && names[c] != "" {
		return names[c]
	}

	return fmt.Sprintf("reserved_cause(%d)", uint8(c))
}

// Fatal reports whether the trap-dispatch policy in the kernel should
// terminate the running process for this cause. This is the data table
// called for in the design notes, rather than a hand-written switch, so it
// can be tested in isolation.
var fatal = [NumCauses]bool{
	InstructionAddressMisaligned: false, // non-fatal by decision; see DESIGN.md.
	InstructionAccessFault:       true,
	IllegalInstruction:           true,
	Breakpoint:                   false,
	LoadAddressMisaligned:        true,
	LoadAccessFault:              true,
	StoreAddressMisaligned:       true,
	StoreAccessFault:             true,
	EnvironmentCallFromUMode:     false, // handled by the syscall layer, not an error path.
	EnvironmentCallFromSMode:     false,
	InstructionPageFault:         true,
	LoadPageFault:                true,
	StorePageFault:               true,
}

// Fatal reports whether c terminates the offending process.
func (c Cause) Fatal() bool {
	if int(c) >= len(fatal) {
		return false
	}

	return fatal[c]
}

// ExitStatus is the process exit status a fatal cause produces: 128 + cause,
// matching the convention used for signal-terminated Unix processes.
func (c Cause) ExitStatus() int32 {
	return 128 + int32(c)
}

// Exception wraps a Cause with the program counter and auxiliary value (the
// faulting address, or the raw instruction word for illegal_instruction) that
// accompanied it.
type Exception struct {
	Cause Cause
	PC    uint64
	Aux   uint64
}

func (e *Exception) Error() string {
	return fmt.Sprintf("trap: %s at pc=%#x (aux=%#x)", e.Cause, e.PC, e.Aux)
}

// New builds an Exception value. It is a plain constructor, not a sentinel:
// callers compare by e.Cause, not by identity.
func New(cause Cause, pc, aux uint64) *Exception {
	return &Exception{Cause: cause, PC: pc, Aux: aux}
}

// ErrorKind is returned to guest software via the syscall ABI's (a0, a1) pair.
// Syscalls never raise a Cause for bad user input; they report one of these
// instead.
type ErrorKind uint64

const (
	Success ErrorKind = iota
	InvalidArgument
	NotFound
	PermissionDenied
	WouldBlock
	OutOfResources
	Unsupported
)

var errorKindNames = [...]string{
	Success:          "success",
	InvalidArgument:  "invalid_argument",
	NotFound:         "not_found",
	PermissionDenied: "permission_denied",
	WouldBlock:       "would_block",
	OutOfResources:   "out_of_resources",
	Unsupported:      "unsupported",
}

func (e ErrorKind) String() string {
	if int(e) < len(errorKindNames) {
		return errorKindNames[e]
	}

	return fmt.Sprintf("error_kind(%d)", uint64(e))
}
