package buffer

import (
	"fmt"

	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

// Replacer defines the contract for page replacement policies. Frames are
// identified by their index in the pool. A Replacer is not safe for
// concurrent use; BufferPool calls it only under its table lock.
type Replacer interface {
	// RecordAccess marks frameIdx as just used, tracking it if it is new.
	RecordAccess(frameIdx int)
	// SetEvictable toggles whether a tracked frame may be chosen as victim.
	SetEvictable(frameIdx int, evictable bool)
	// Victim names the frame the policy would reclaim next without
	// forgetting it; util.ErrNoVictim if no tracked frame is evictable.
	Victim() (int, error)
	// Remove stops tracking frameIdx.
	Remove(frameIdx int)
	// Size returns the number of evictable frames.
	Size() int
}

const defaultClockMaxUsage = 5

// NewReplacer builds the policy named by a config value.
func NewReplacer(policy string, size int) (Replacer, error) {
	switch policy {
	case util.PolicyLRU, "":
		return NewLRUReplacer(size), nil
	case util.PolicyClock:
		return NewClockReplacer(size, defaultClockMaxUsage), nil
	}
	return nil, fmt.Errorf("policy %q: %w", policy, util.ErrUnknownPolicy)
}

// growTo extends s so index idx is addressable.
func growTo[T any](s []T, idx int) []T {
	if idx < len(s) {
		return s
	}
	n := max(2*len(s), idx+1)
	grown := make([]T, n)
	copy(grown, s)
	return grown
}
