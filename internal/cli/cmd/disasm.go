package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rv64vm/sandbox/internal/cli"
	"github.com/rv64vm/sandbox/internal/cpu"
	"github.com/rv64vm/sandbox/internal/encoding/elf"
	"github.com/rv64vm/sandbox/internal/log"
)

// Disasm is the command that renders an RV64 ELF image's loadable
// segments as disassembled RV64I mnemonics, one instruction per line.
func Disasm() cli.Command {
	return new(disasm)
}

type disasm struct{}

func (disasm) Description() string {
	return "disassemble an ELF image's loadable segments"
}

func (disasm) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `disasm file.elf

Print every word of every PT_LOAD segment as RV64I assembly.`)

	return err
}

func (disasm) FlagSet() *cli.FlagSet {
	return flag.NewFlagSet("disasm", flag.ExitOnError)
}

func (disasm) Run(ctx context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if len(args) != 1 {
		logger.Error("disasm requires exactly one file argument")
		return 1
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		logger.Error("reading image", "err", err)
		return 1
	}

	img, err := elf.Parse(raw)
	if err != nil {
		logger.Error("parsing image", "err", err)
		return 1
	}

	for _, seg := range img.Segments {
		contents := seg.Contents(raw)

		for off := 0; off+4 <= len(contents); off += 4 {
			word := uint32(contents[off]) | uint32(contents[off+1])<<8 |
				uint32(contents[off+2])<<16 | uint32(contents[off+3])<<24

			addr := seg.VirtAddr + uint64(off)
			fmt.Fprintf(out, "%#016x:  %s\n", addr, cpu.Disassemble(word))
		}
	}

	return 0
}
