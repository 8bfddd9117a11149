// doc.go: design notes for the guest memory subsystem.
//
// Addressing is flat, not translated. The page table in this package (see
// pagetable.go) records only permissions, never a physical remapping -- the
// pageFrame field of an entry is the page's own number, the key lookups
// match on, and Lookup never adds it to an address. This
// matches the spec's explicit design decision in §4.2: "there is no
// translation, only permission lookup."
//
// Guest addresses start at DefaultBase, not zero, because the reference
// configurations and worked examples in the spec use 0x8000_0000-style
// addresses typical of bare-metal RV64 images. A Memory's backing buffer is
// a window [Base, Base+Size) over that address space; anything outside the
// window is an access fault, same as an unmapped page.
package guest
