// Package kernel implements the host-side microkernel that a cpu.Machine
// traps into on ecall: process table and round-robin scheduler, bounded
// IPC channels, a flat in-memory file store, a monotonic/real-time timer
// and interrupt controller, and the boot sequencer that brings them all
// up in order. It never holds a reference to the machine it services --
// the embedding loop passes the machine in to Dispatch and HandleTrap as
// an argument, so kernel and interpreter can be built and tested
// independently of each other.
package kernel
