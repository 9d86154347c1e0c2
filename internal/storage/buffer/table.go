package buffer

import (
	"slices"

	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

// pageTable maps resident page ids to frame indexes and keeps the list of
// frames that hold no page. A page id is present iff its page is resident.
type pageTable struct {
	index map[util.PageID]int
	free  []int // stack of free frame indexes
}

func newPageTable(size int) *pageTable {
	return &pageTable{
		index: make(map[util.PageID]int, size),
	}
}

func (pt *pageTable) lookup(pageID util.PageID) (int, bool) {
	idx, ok := pt.index[pageID]
	return idx, ok
}

func (pt *pageTable) insert(pageID util.PageID, frameIdx int) {
	pt.index[pageID] = frameIdx
}

func (pt *pageTable) remove(pageID util.PageID) {
	delete(pt.index, pageID)
}

func (pt *pageTable) len() int {
	return len(pt.index)
}

// pageIDs returns resident ids in ascending order.
func (pt *pageTable) pageIDs() []util.PageID {
	ids := make([]util.PageID, 0, len(pt.index))
	for id := range pt.index {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// allocFree pops a free frame index, or -1.
func (pt *pageTable) allocFree() int {
	n := len(pt.free)
	if n == 0 {
		return -1
	}
	idx := pt.free[n-1]
	pt.free = pt.free[:n-1]
	return idx
}

// release returns a frame to the free list.
func (pt *pageTable) release(frameIdx int) {
	pt.free = append(pt.free, frameIdx)
}
