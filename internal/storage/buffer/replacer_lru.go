package buffer

import (
	"fmt"

	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

type lruNode struct {
	prevIdx   int
	nextIdx   int
	tracked   bool
	evictable bool
}

// LRUReplacer keeps tracked frames in an index-linked recency list: head is
// least recently used, tail most recently used.
type LRUReplacer struct {
	nodes     []lruNode
	lruHead   int // Head of LRU (evict first)
	lruTail   int // Tail of LRU (most recent)
	evictable int
}

func NewLRUReplacer(size int) *LRUReplacer {
	if size <= 0 {
		panic(util.ErrInvalidPoolSize)
	}
	return &LRUReplacer{
		nodes:   make([]lruNode, size),
		lruHead: -1,
		lruTail: -1,
	}
}

func (lr *LRUReplacer) RecordAccess(frameIdx int) {
	lr.nodes = growTo(lr.nodes, frameIdx)
	if lr.nodes[frameIdx].tracked {
		lr.removeLRUByIndex(frameIdx)
	}
	lr.addToTail(frameIdx)
}

func (lr *LRUReplacer) SetEvictable(frameIdx int, evictable bool) {
	if frameIdx < 0 || frameIdx >= len(lr.nodes) || !lr.nodes[frameIdx].tracked {
		return
	}
	node := &lr.nodes[frameIdx]
	switch {
	case evictable && !node.evictable:
		lr.evictable++
	case !evictable && node.evictable:
		lr.evictable--
	}
	node.evictable = evictable
}

func (lr *LRUReplacer) Victim() (int, error) {
	for current := lr.lruHead; current != -1; current = lr.nodes[current].nextIdx {
		if lr.nodes[current].evictable {
			return current, nil
		}
	}
	return -1, fmt.Errorf("[Victim LRU] %w", util.ErrNoVictim)
}

func (lr *LRUReplacer) Remove(frameIdx int) {
	if frameIdx < 0 || frameIdx >= len(lr.nodes) || !lr.nodes[frameIdx].tracked {
		return
	}
	if lr.nodes[frameIdx].evictable {
		lr.evictable--
	}
	lr.removeLRUByIndex(frameIdx)
	lr.nodes[frameIdx] = lruNode{}
}

func (lr *LRUReplacer) Size() int {
	return lr.evictable
}

// order returns tracked frames from least to most recently used.
func (lr *LRUReplacer) order() []int {
	var out []int
	for current := lr.lruHead; current != -1; current = lr.nodes[current].nextIdx {
		out = append(out, current)
	}
	return out
}

// ===================== HELPER FUNCTION =====================
func (lr *LRUReplacer) addToTail(frameIdx int) {
	node := &lr.nodes[frameIdx]
	node.tracked = true
	node.prevIdx = lr.lruTail
	node.nextIdx = -1

	if lr.lruTail != -1 {
		lr.nodes[lr.lruTail].nextIdx = frameIdx
	}
	lr.lruTail = frameIdx

	if lr.lruHead == -1 {
		lr.lruHead = frameIdx
	}
}

func (lr *LRUReplacer) removeLRUByIndex(frameIdx int) {
	node := &lr.nodes[frameIdx]
	if lr.lruHead == -1 || !node.tracked {
		panic(fmt.Sprintf("[lru] [removeLRUByIndex] frame index %d is not in the list", frameIdx))
	}

	prev := node.prevIdx
	next := node.nextIdx
	isHead := prev == -1
	isTail := next == -1

	switch {
	case isHead && isTail:
		// Only one node in the list
		lr.lruHead = -1
		lr.lruTail = -1
	case isHead && !isTail:
		// Removing head, next becomes new head
		lr.lruHead = next
		lr.nodes[next].prevIdx = -1
	case !isHead && isTail:
		// Removing tail, prev becomes new tail
		lr.lruTail = prev
		lr.nodes[prev].nextIdx = -1
	case !isHead && !isTail:
		// Removing middle node, connect prev and next
		lr.nodes[prev].nextIdx = next
		lr.nodes[next].prevIdx = prev
	}

	// Clear the removed node's links
	node.nextIdx = -1
	node.prevIdx = -1
}
