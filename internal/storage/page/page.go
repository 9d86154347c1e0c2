package page

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

/**
* On-disk layout: exactly util.PageSize bytes, util.SlotsPerPage slots in
* slot order, each an int64 in two's complement, little-endian. There is no
* header; id, dirty and pin count live only in memory.
**/
var byteOrder = binary.LittleEndian

// Page is the in-memory copy of one page.
type Page struct {
	latch    sync.RWMutex // guards values
	id       util.PageID
	values   *[util.SlotsPerPage]int64 // nil until loaded
	dirty    atomic.Bool
	pinCount atomic.Int32
}

// New returns an allocated page with a zeroed buffer.
func New(id util.PageID) *Page {
	return &Page{id: id, values: new([util.SlotsPerPage]int64)}
}

// NewUnloaded returns a page whose buffer has not been faulted in.
func NewUnloaded(id util.PageID) *Page {
	return &Page{id: id}
}

func (p *Page) ID() util.PageID {
	return p.id
}

// Reset prepares a recycled page object for a new residency episode.
// The caller must hold the only reference.
func (p *Page) Reset(id util.PageID) {
	p.latch.Lock()
	defer p.latch.Unlock()
	p.id = id
	if p.values == nil {
		p.values = new([util.SlotsPerPage]int64)
	} else {
		*p.values = [util.SlotsPerPage]int64{}
	}
	p.dirty.Store(false)
	p.pinCount.Store(0)
}

func (p *Page) Loaded() bool {
	p.latch.RLock()
	defer p.latch.RUnlock()
	return p.values != nil
}

/* SLOT ACCESS */
func checkSlot(slot int) error {
	if slot < 0 || slot >= util.SlotsPerPage {
		return fmt.Errorf("slot %d: %w", slot, util.ErrOutOfRange)
	}
	return nil
}

func (p *Page) Read(slot int) (int64, error) {
	if err := checkSlot(slot); err != nil {
		return 0, err
	}
	p.latch.RLock()
	defer p.latch.RUnlock()
	if p.values == nil {
		return 0, fmt.Errorf("page %d: %w", p.id, util.ErrNotLoaded)
	}
	return p.values[slot], nil
}

// Write stores v at slot and marks the page dirty.
func (p *Page) Write(slot int, v int64) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	p.latch.Lock()
	defer p.latch.Unlock()
	if p.values == nil {
		return fmt.Errorf("page %d: %w", p.id, util.ErrNotLoaded)
	}
	p.values[slot] = v
	p.dirty.Store(true)
	return nil
}

// Fill replaces the whole buffer and marks the page dirty.
func (p *Page) Fill(values [util.SlotsPerPage]int64) {
	p.latch.Lock()
	defer p.latch.Unlock()
	if p.values == nil {
		p.values = new([util.SlotsPerPage]int64)
	}
	*p.values = values
	p.dirty.Store(true)
}

// Values returns a copy of every slot.
func (p *Page) Values() ([util.SlotsPerPage]int64, error) {
	p.latch.RLock()
	defer p.latch.RUnlock()
	if p.values == nil {
		return [util.SlotsPerPage]int64{}, fmt.Errorf("page %d: %w", p.id, util.ErrNotLoaded)
	}
	return *p.values, nil
}

/* PIN COUNT */
func (p *Page) Pin() int32 {
	return p.pinCount.Add(1)
}

func (p *Page) Unpin() error {
	for {
		cur := p.pinCount.Load()
		if cur <= 0 {
			return fmt.Errorf("page %d: %w", p.id, util.ErrUnderflowPin)
		}
		if p.pinCount.CompareAndSwap(cur, cur-1) {
			return nil
		}
	}
}

func (p *Page) PinCount() int32 {
	return p.pinCount.Load()
}

/* DIRTY FLAG */
func (p *Page) IsDirty() bool {
	return p.dirty.Load()
}

func (p *Page) MarkDirty() {
	p.dirty.Store(true)
}

/* SERIALIZATION */

// Serialize packs the page into a byte slice for writing
func (p *Page) Serialize() ([]byte, error) {
	p.latch.RLock()
	defer p.latch.RUnlock()
	return p.serialize()
}

// CleanSnapshot serializes the page and clears the dirty flag as one step,
// so a concurrent Write is either in the snapshot or leaves the page dirty.
func (p *Page) CleanSnapshot() ([]byte, error) {
	p.latch.Lock()
	defer p.latch.Unlock()
	buf, err := p.serialize()
	if err != nil {
		return nil, err
	}
	p.dirty.Store(false)
	return buf, nil
}

func (p *Page) serialize() ([]byte, error) {
	if p.values == nil {
		return nil, fmt.Errorf("page %d: %w", p.id, util.ErrNotLoaded)
	}
	buf := make([]byte, util.PageSize)
	for i, v := range p.values {
		byteOrder.PutUint64(buf[i*util.SlotSize:], uint64(v))
	}
	return buf, nil
}

// Load replaces the buffer with data read from the store. The page is
// clean afterwards.
func (p *Page) Load(data []byte) error {
	if len(data) != util.PageSize {
		return fmt.Errorf("page %d: got %d bytes: %w", p.id, len(data), util.ErrInvalidPageSize)
	}
	p.latch.Lock()
	defer p.latch.Unlock()
	if p.values == nil {
		p.values = new([util.SlotsPerPage]int64)
	}
	for i := range p.values {
		p.values[i] = int64(byteOrder.Uint64(data[i*util.SlotSize:]))
	}
	p.dirty.Store(false)
	return nil
}

// Deserialize unpacks a page image read from the store.
func Deserialize(id util.PageID, data []byte) (*Page, error) {
	p := NewUnloaded(id)
	if err := p.Load(data); err != nil {
		return nil, err
	}
	return p, nil
}
