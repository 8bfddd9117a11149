// Package elf parses the narrow slice of ELF64 that the kernel's spawn
// syscall needs: the file header and PT_LOAD program headers of a
// statically-linked little-endian RV64 executable. It does not map
// segments into guest memory or allocate a process -- that belongs to the
// kernel, which consumes Image.Segments as a plan of what to copy where.
package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// magic is the four-byte ELF identifier.
var magic = [4]byte{0x7F, 'E', 'L', 'F'}

const (
	classELF64  = 2
	dataLittle  = 1
	identSize   = 16
	fileHdrSize = identSize + 2 + 2 + 4 + 8 + 8 + 8 + 4 + 2 + 2 + 2 + 2 + 2 + 2
	phdrSize    = 4 + 4 + 8 + 8 + 8 + 8 + 8 + 8
)

// ptLoad is the program-header type this loader acts on; every other type
// is skipped.
const ptLoad = 1

// Permission bits from p_flags, in ELF's own bit positions (PF_X, PF_W,
// PF_R). They differ from guest.Perm's numbering; the kernel's spawn path
// translates between the two.
const (
	PermExec  = 0x1
	PermWrite = 0x2
	PermRead  = 0x4
)

// Segment is one PT_LOAD entry: copy FileSize bytes from the image at
// Offset to VirtAddr, zero-fill the remaining (MemSize - FileSize) bytes,
// and protect the whole [VirtAddr, VirtAddr+MemSize) range with Flags.
type Segment struct {
	VirtAddr uint64
	Offset   uint64
	FileSize uint64
	MemSize  uint64
	Flags    uint32 // PF_R | PF_W | PF_X, in ELF's own bit positions.
}

// Image is a parsed ELF64 executable: an entry point and the ordered list
// of loadable segments.
type Image struct {
	Entry    uint64
	Segments []Segment
}

// ErrMalformed wraps every parse failure; callers that only care whether
// parsing failed can test with errors.Is(err, ErrMalformed).
var ErrMalformed = fmt.Errorf("elf: malformed image")

type header struct {
	Ident     [identSize]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	PhOff     uint64
	ShOff     uint64
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrNdx  uint16
}

type progHeader struct {
	Type     uint32
	Flags    uint32
	Offset   uint64
	VirtAddr uint64
	PhysAddr uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

// Parse reads an ELF64 little-endian executable from raw. Per the contract
// it implements: e_ident[4] must be 2 (ELFCLASS64), e_ident[5] must be 1
// (ELFDATA2LSB); zero program headers is accepted; any non-PT_LOAD header
// is skipped rather than rejected.
func Parse(raw []byte) (*Image, error) {
	if len(raw) < fileHdrSize {
		return nil, fmt.Errorf("%w: file is %d bytes, shorter than the ELF header", ErrMalformed, len(raw))
	}

	r := bytes.NewReader(raw)

	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	if hdr.Ident[0] != magic[0] || hdr.Ident[1] != magic[1] || hdr.Ident[2] != magic[2] || hdr.Ident[3] != magic[3] {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}

	if hdr.Ident[4] != classELF64 {
		return nil, fmt.Errorf("%w: not a 64-bit class (e_ident[4]=%d)", ErrMalformed, hdr.Ident[4])
	}

	if hdr.Ident[5] != dataLittle {
		return nil, fmt.Errorf("%w: not little-endian (e_ident[5]=%d)", ErrMalformed, hdr.Ident[5])
	}

	img := &Image{Entry: hdr.Entry}

	for i := uint16(0); i < hdr.PhNum; i++ {
		off := int64(hdr.PhOff) + int64(i)*int64(hdr.PhEntSize)
		if off < 0 || off+phdrSize > int64(len(raw)) {
			return nil, fmt.Errorf("%w: program header %d out of bounds", ErrMalformed, i)
		}

		pr := bytes.NewReader(raw[off : off+phdrSize])

		var ph progHeader
		if err := binary.Read(pr, binary.LittleEndian, &ph); err != nil {
			return nil, fmt.Errorf("%w: program header %d: %s", ErrMalformed, i, err)
		}

		if ph.Type != ptLoad {
			continue
		}

		if ph.FileSize > ph.MemSize {
			return nil, fmt.Errorf("%w: segment %d has p_filesz > p_memsz", ErrMalformed, i)
		}

		if ph.Offset+ph.FileSize > uint64(len(raw)) {
			return nil, fmt.Errorf("%w: segment %d's file range exceeds the image", ErrMalformed, i)
		}

		img.Segments = append(img.Segments, Segment{
			VirtAddr: ph.VirtAddr,
			Offset:   ph.Offset,
			FileSize: ph.FileSize,
			MemSize:  ph.MemSize,
			Flags:    ph.Flags,
		})
	}

	return img, nil
}

// Contents returns the segment's file-backed bytes: raw[Offset:Offset+FileSize].
// The caller still owns zero-filling the remaining MemSize-FileSize bytes.
func (s Segment) Contents(raw []byte) []byte {
	return raw[s.Offset : s.Offset+s.FileSize]
}
