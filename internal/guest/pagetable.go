package guest

// pagetable.go implements permission lookup for guest pages. There is no
// address translation here -- see doc.go -- only a capped table recording
// which pages are present and what a fetch/load/store is allowed to do to
// them.

import "errors"

// PageSize is the fixed page granularity of the guest address space.
const PageSize = 4096

// MaxPageTableEntries bounds the page table: a linear scan over this many
// entries is cheap enough that no index is needed.
const MaxPageTableEntries = 1024

// Perm is a permission triple attached to a mapped page.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

func (p Perm) Read() bool  { return p&PermRead != 0 }
func (p Perm) Write() bool { return p&PermWrite != 0 }
func (p Perm) Exec() bool  { return p&PermExec != 0 }

// entry records one mapped page. pageFrame is the page's own number, the
// key find matches on; this table does no translation, so Lookup never adds
// it to an address.
type entry struct {
	present   bool
	pageFrame uint64 // == page number; no remapping occurs.
	flags     Perm
}

// PageTable tracks which pages of a GuestMemory are mapped and with what
// permissions.
type PageTable struct {
	entries [MaxPageTableEntries]entry
	count   int
}

// NewPageTable returns an empty page table.
func NewPageTable() *PageTable {
	return &PageTable{}
}

// ErrConflict is returned when Map would overlap an existing, differently
// flagged mapping.
var ErrConflict = errors.New("guest: page table conflict")

// ErrFull is returned when the table has no room for another mapping.
var ErrFull = errors.New("guest: page table full")

// Map inserts an entry covering the pages spanned by [base, base+size),
// rounding size up to a page boundary. Overlapping an existing mapping with
// identical flags is a no-op (idempotent, per the spec's resolved open
// question); overlapping with different flags, or a partial overlap, is
// ErrConflict.
func (pt *PageTable) Map(base uint64, size uint64, flags Perm) error {
	if size == 0 {
		return nil
	}

	first := base / PageSize
	last := (base + size - 1) / PageSize

	// First pass: validate there is no conflicting overlap before mutating
	// anything, and check whether the whole range is already identically
	// mapped (the idempotent no-op case).
	allIdentical := true

	for pn := first; pn <= last; pn++ {
		if e := pt.find(pn); e != nil {
			if e.flags != flags {
				return ErrConflict
			}
		} else {
			allIdentical = false
		}
	}

	if allIdentical {
		return nil
	}

	// Second pass: any page in the range that is mapped at all, but not
	// identically mapped across the whole range, is a conflict -- we never
	// silently change an existing entry's flags.
	for pn := first; pn <= last; pn++ {
		if pt.find(pn) != nil {
			return ErrConflict
		}
	}

	need := int(last-first) + 1
	if pt.count+need > MaxPageTableEntries {
		return ErrFull
	}

	for pn := first; pn <= last; pn++ {
		pt.entries[pt.count] = entry{present: true, pageFrame: pn, flags: flags}
		pt.count++
	}

	return nil
}

// Unmap removes entries covering [base, base+size). It is idempotent: unmapping
// an address with no entry is not an error.
func (pt *PageTable) Unmap(base, size uint64) error {
	if size == 0 {
		return nil
	}

	first := base / PageSize
	last := (base + size - 1) / PageSize

	newCount := 0

	for i := 0; i < pt.count; i++ {
		e := pt.entries[i]
		if e.pageFrame >= first && e.pageFrame <= last {
			continue
		}

		pt.entries[newCount] = e
		newCount++
	}

	pt.count = newCount

	return nil
}

func (pt *PageTable) find(pageNumber uint64) *entry {
	for i := 0; i < pt.count; i++ {
		if pt.entries[i].present && pt.entries[i].pageFrame == pageNumber {
			return &pt.entries[i]
		}
	}

	return nil
}

// Lookup returns the permission flags for the page containing addr, and
// whether the page is mapped at all.
func (pt *PageTable) Lookup(addr uint64) (Perm, bool) {
	e := pt.find(addr / PageSize)
	if e == nil {
		return 0, false
	}

	return e.flags, true
}

// Stats summarizes the page table for diagnostics and snapshots. All fields
// are derived by scanning the table; nothing here is separately stored.
type Stats struct {
	MappedPages   int
	ReadablePages int
	WritablePages int
	ExecPages     int
}

func (pt *PageTable) Stats() Stats {
	var s Stats

	for i := 0; i < pt.count; i++ {
		e := pt.entries[i]
		if !e.present {
			continue
		}

		s.MappedPages++

		if e.flags.Read() {
			s.ReadablePages++
		}

		if e.flags.Write() {
			s.WritablePages++
		}

		if e.flags.Exec() {
			s.ExecPages++
		}
	}

	return s
}
