package util

import (
	"fmt"
)

// PageID represents a unique page identifier
type PageID uint64

// PageSize represents the standard page size (4KB)
const PageSize = 4096

const (
	SlotSize     = 8                   // one int64 per slot
	SlotsPerPage = PageSize / SlotSize // 512
)

// MAX_MAP_SIZE bounds the mmap region of a page file (1GB).
const MAX_MAP_SIZE = 1 << 30

// Address is the physical location of a flat record index.
type Address struct {
	PageID PageID
	Slot   int
}

func (a Address) String() string {
	return fmt.Sprintf("(%d, %d)", a.PageID, a.Slot)
}

// AddressOf maps record i to page i/512, slot i%512.
func AddressOf(i uint64) Address {
	return Address{
		PageID: PageID(i / SlotsPerPage),
		Slot:   int(i % SlotsPerPage),
	}
}

// RecordIndex is the inverse of AddressOf.
func (a Address) RecordIndex() uint64 {
	return uint64(a.PageID)*SlotsPerPage + uint64(a.Slot)
}
