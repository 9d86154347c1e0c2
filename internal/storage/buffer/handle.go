package buffer

import (
	"fmt"
	"sync/atomic"

	"github.com/bietkhonhungvandi212/array-db/internal/storage/page"
	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

// PageHandle is a pinned reference to a resident page. It is valid until
// Unpin; afterwards every method fails with util.ErrHandleReleased.
type PageHandle struct {
	pool     *BufferPool
	page     *page.Page
	id       util.PageID // the frame may hold another page once released
	frameIdx int
	released atomic.Bool
}

func (h *PageHandle) live() error {
	if h.released.Load() {
		return fmt.Errorf("page %d: %w", h.id, util.ErrHandleReleased)
	}
	return nil
}

func (h *PageHandle) ID() util.PageID {
	return h.id
}

func (h *PageHandle) Read(slot int) (int64, error) {
	if err := h.live(); err != nil {
		return 0, err
	}
	return h.page.Read(slot)
}

// Write stores v at slot and marks the page dirty.
func (h *PageHandle) Write(slot int, v int64) error {
	if err := h.live(); err != nil {
		return err
	}
	return h.page.Write(slot, v)
}

// Fill overwrites every slot.
func (h *PageHandle) Fill(values [util.SlotsPerPage]int64) error {
	if err := h.live(); err != nil {
		return err
	}
	h.page.Fill(values)
	return nil
}

func (h *PageHandle) Values() ([util.SlotsPerPage]int64, error) {
	if err := h.live(); err != nil {
		return [util.SlotsPerPage]int64{}, err
	}
	return h.page.Values()
}

func (h *PageHandle) Released() bool {
	return h.released.Load()
}

// Unpin is shorthand for pool.UnpinPage(h, isDirty).
func (h *PageHandle) Unpin(isDirty bool) error {
	return h.pool.UnpinPage(h, isDirty)
}
