package kernel

import "github.com/rv64vm/sandbox/internal/trap"

// Result is the syscall layer's internal representation of the sum type
// spec §9 calls for -- an explicit `{success: u64} | {error: ErrorKind}`
// rather than a single numeric return value with an implicit encoding.
// Encode is the only place the ABI's (a0, a1) packing happens.
type Result struct {
	Value uint64
	Err   trap.ErrorKind
}

// Ok builds a successful Result.
func Ok(value uint64) Result { return Result{Value: value} }

// Error builds a failed Result.
func Error(kind trap.ErrorKind) Result { return Result{Err: kind} }

// Encode packs the result into the guest ABI's (a0, a1) convention: a1 is
// the tag (0 = success, 1 = error), a0 is the payload.
func (r Result) Encode() (a0, a1 uint64) {
	if r.Err == trap.Success {
		return r.Value, 0
	}

	return uint64(r.Err), 1
}
