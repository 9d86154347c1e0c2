package buffer

import (
	"fmt"

	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

type clockNode struct {
	usageCount int
	tracked    bool
	evictable  bool
}

// ClockReplacer is a generalized clock: every access bumps a frame's usage
// count up to maxUsage, the hand decrements counts as it sweeps and picks
// the first evictable frame whose count is already zero.
type ClockReplacer struct {
	nodes         []clockNode
	nextVictimIdx int
	maxUsage      int
	evictable     int
}

func NewClockReplacer(size int, maxUsage int) *ClockReplacer {
	if size <= 0 {
		panic(util.ErrInvalidPoolSize)
	}
	if maxUsage <= 0 {
		maxUsage = 1
	}
	return &ClockReplacer{
		nodes:    make([]clockNode, size),
		maxUsage: maxUsage,
	}
}

func (c *ClockReplacer) RecordAccess(frameIdx int) {
	c.nodes = growTo(c.nodes, frameIdx)
	node := &c.nodes[frameIdx]
	node.tracked = true
	if node.usageCount < c.maxUsage {
		node.usageCount++
	}
}

func (c *ClockReplacer) SetEvictable(frameIdx int, evictable bool) {
	if frameIdx < 0 || frameIdx >= len(c.nodes) || !c.nodes[frameIdx].tracked {
		return
	}
	node := &c.nodes[frameIdx]
	switch {
	case evictable && !node.evictable:
		c.evictable++
	case !evictable && node.evictable:
		c.evictable--
	}
	node.evictable = evictable
}

func (c *ClockReplacer) Victim() (int, error) {
	if c.evictable == 0 {
		return -1, fmt.Errorf("[Victim clock] %w", util.ErrNoVictim)
	}

	n := len(c.nodes)
	// every sweep lowers each evictable count by one, so maxUsage+1 sweeps
	// always reach a zero
	for range n * (c.maxUsage + 1) {
		idx := c.nextVictimIdx
		c.nextVictimIdx = (c.nextVictimIdx + 1) % n

		node := &c.nodes[idx]
		if !node.tracked || !node.evictable {
			continue
		}
		if node.usageCount > 0 {
			node.usageCount--
			continue
		}
		// leave the hand on the victim: if the caller keeps it, the next
		// sweep starts from the same frame
		c.nextVictimIdx = idx
		return idx, nil
	}

	return -1, fmt.Errorf("[Victim clock] can not find the victim with maxUsage %d: %w", c.maxUsage, util.ErrNoVictim)
}

func (c *ClockReplacer) Remove(frameIdx int) {
	if frameIdx < 0 || frameIdx >= len(c.nodes) || !c.nodes[frameIdx].tracked {
		return
	}
	if c.nodes[frameIdx].evictable {
		c.evictable--
	}
	c.nodes[frameIdx] = clockNode{}
}

func (c *ClockReplacer) Size() int {
	return c.evictable
}
