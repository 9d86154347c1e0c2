package buffer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bietkhonhungvandi212/array-db/internal/logger"
	"github.com/bietkhonhungvandi212/array-db/internal/storage/file"
	"github.com/bietkhonhungvandi212/array-db/internal/storage/page"
	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

/**
* BufferPool caches pages of a file.Filer in a bounded set of frames.
*
* Locking has two levels. mu (the table lock) serialises the page table,
* the replacer, pin-count transitions and capacity bookkeeping, and is held
* across the store I/O of a miss, so concurrent misses on one id load it
* once. Each page.Page carries its own latch for slot access, which needs
* only a pin, never mu.
**/
type BufferPool struct {
	mu         sync.Mutex
	frames     []*page.Page // frame index -> page object, nil if never used
	table      *pageTable
	replacer   Replacer
	fm         file.Filer
	capacity   int
	nextPageID util.PageID
	pinned     int
	stats      Stats

	logger  logger.Logger
	metrics *Metrics
}

// Stats is a point-in-time summary of pool activity.
type Stats struct {
	Capacity  int
	Resident  int
	Pinned    int
	Dirty     int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Flushes   uint64
}

type Option func(*BufferPool)

func WithCapacity(n int) Option {
	return func(bp *BufferPool) { bp.capacity = n }
}

// WithReplacer swaps the eviction policy; the default is LRU.
func WithReplacer(r Replacer) Option {
	return func(bp *BufferPool) { bp.replacer = r }
}

func WithLogger(l logger.Logger) Option {
	return func(bp *BufferPool) { bp.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(bp *BufferPool) { bp.metrics = m }
}

// NewBufferPool builds a pool over filer. Page ids for new pages continue
// after filer.NumPages(), so ids are never reused across restarts.
func NewBufferPool(filer file.Filer, opts ...Option) *BufferPool {
	if filer == nil {
		panic(util.ErrFileManagerNil)
	}
	bp := &BufferPool{
		fm:       filer,
		capacity: util.DefaultOptions().PageLimit,
		logger:   logger.NopLogger,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.capacity <= 0 {
		panic(util.ErrInvalidPoolSize)
	}
	if bp.replacer == nil {
		bp.replacer = NewLRUReplacer(bp.capacity)
	}
	if bp.metrics == nil {
		bp.metrics = NewMetrics(nil)
	}
	bp.frames = make([]*page.Page, 0, bp.capacity)
	bp.table = newPageTable(bp.capacity)
	bp.nextPageID = util.PageID(filer.NumPages())
	bp.stats.Capacity = bp.capacity
	return bp
}

// SetCapacity changes the page limit. It fails with ErrCapacityViolation if
// more than n pages are resident.
func (bp *BufferPool) SetCapacity(n int) error {
	if n <= 0 {
		return fmt.Errorf("capacity %d: %w", n, util.ErrInvalidPoolSize)
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if resident := bp.table.len(); n < resident {
		return fmt.Errorf("capacity %d < %d resident: %w", n, resident, util.ErrCapacityViolation)
	}
	if n < bp.capacity {
		// drop buffers of idle frames so memory follows the new limit
		for _, idx := range bp.table.free {
			bp.frames[idx] = nil
		}
	}
	bp.capacity = n
	return nil
}

/* FETCH */

// FetchPage returns a pinned handle on pageID, faulting the page in from
// the store on a miss. The caller must Unpin the handle.
func (bp *BufferPool) FetchPage(pageID util.PageID) (*PageHandle, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frameIdx, ok := bp.table.lookup(pageID); ok {
		bp.stats.Hits++
		bp.metrics.Hits.Inc()
		return bp.pinFrame(frameIdx), nil
	}

	bp.stats.Misses++
	bp.metrics.Misses.Inc()

	frameIdx, err := bp.acquireFrame()
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", pageID, err)
	}

	data, err := bp.fm.ReadPage(pageID)
	if err != nil {
		bp.table.release(frameIdx)
		return nil, fmt.Errorf("fetch page %d: %w", pageID, err)
	}

	p := bp.frameAt(frameIdx, pageID)
	if err := p.Load(data); err != nil {
		bp.table.release(frameIdx)
		return nil, fmt.Errorf("fetch page %d: %w", pageID, err)
	}

	bp.table.insert(pageID, frameIdx)
	bp.metrics.Resident.Set(float64(bp.table.len()))
	return bp.pinFrame(frameIdx), nil
}

// NewPage allocates the next page id and returns it pinned with a zeroed
// buffer. The page is dirty from the start since the store has no copy.
func (bp *BufferPool) NewPage() (*PageHandle, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameIdx, err := bp.acquireFrame()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}

	pageID := bp.nextPageID
	bp.nextPageID++

	p := bp.frameAt(frameIdx, pageID)
	p.MarkDirty()

	bp.table.insert(pageID, frameIdx)
	bp.metrics.Resident.Set(float64(bp.table.len()))
	return bp.pinFrame(frameIdx), nil
}

/* UNPIN */

// UnpinPage releases h. isDirty is ORed into the page's dirty flag. The
// handle cannot be used afterwards.
func (bp *BufferPool) UnpinPage(h *PageHandle, isDirty bool) error {
	if h == nil {
		return fmt.Errorf("unpin nil handle: %w", util.ErrUnderflowPin)
	}
	if !h.released.CompareAndSwap(false, true) {
		return fmt.Errorf("unpin page %d: %w: %w", h.id, util.ErrUnderflowPin, util.ErrHandleReleased)
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameIdx, ok := bp.table.lookup(h.id)
	if !ok || frameIdx != h.frameIdx {
		return fmt.Errorf("unpin page %d: %w", h.id, util.ErrNotResident)
	}
	return bp.unpinFrame(frameIdx, isDirty)
}

// UnpinPageID unpins by id for callers that do not keep the handle.
func (bp *BufferPool) UnpinPageID(pageID util.PageID, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameIdx, ok := bp.table.lookup(pageID)
	if !ok {
		return fmt.Errorf("unpin page %d: %w", pageID, util.ErrNotResident)
	}
	return bp.unpinFrame(frameIdx, isDirty)
}

func (bp *BufferPool) unpinFrame(frameIdx int, isDirty bool) error {
	p := bp.frames[frameIdx]
	if err := p.Unpin(); err != nil {
		return err
	}
	if isDirty {
		p.MarkDirty()
	}
	if p.PinCount() == 0 {
		bp.pinned--
		bp.metrics.Pinned.Set(float64(bp.pinned))
		bp.replacer.SetEvictable(frameIdx, true)
	}
	return nil
}

/* FLUSH */

// FlushPage writes pageID to the store if it is dirty.
func (bp *BufferPool) FlushPage(pageID util.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameIdx, ok := bp.table.lookup(pageID)
	if !ok {
		return fmt.Errorf("flush page %d: %w", pageID, util.ErrNotResident)
	}
	return bp.flushFrame(bp.frames[frameIdx])
}

// FlushAll writes every dirty resident page. A failure on one page does not
// stop the others; all failures are returned joined.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	var errs []error
	for _, pageID := range bp.table.pageIDs() {
		frameIdx, _ := bp.table.lookup(pageID)
		if err := bp.flushFrame(bp.frames[frameIdx]); err != nil {
			bp.logger.Warnf("[pool] [FlushAll] %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// flushFrame writes p if dirty. On failure p stays dirty.
func (bp *BufferPool) flushFrame(p *page.Page) error {
	if !p.IsDirty() {
		return nil
	}
	data, err := p.CleanSnapshot()
	if err != nil {
		return fmt.Errorf("%w: page %d: %w", util.ErrFlush, p.ID(), err)
	}
	if err := bp.fm.WritePage(p.ID(), data); err != nil {
		p.MarkDirty()
		bp.metrics.FlushErrors.Inc()
		return fmt.Errorf("%w: page %d: %w", util.ErrFlush, p.ID(), err)
	}
	bp.stats.Flushes++
	bp.metrics.Flushes.Inc()
	return nil
}

// Close flushes every dirty page, then syncs and closes the store.
func (bp *BufferPool) Close() error {
	err := bp.FlushAll()

	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.pinned > 0 {
		bp.logger.Warnf("[pool] [Close] %d pages still pinned", bp.pinned)
	}
	if e := bp.fm.Sync(); e != nil {
		err = errors.Join(err, e)
	}
	if e := bp.fm.Close(); e != nil {
		err = errors.Join(err, e)
	}
	return err
}

/* RECORD ADDRESSING */

// ReadRecord reads flat record index i at page i/512, slot i%512.
func (bp *BufferPool) ReadRecord(i uint64) (int64, error) {
	addr := util.AddressOf(i)
	h, err := bp.FetchPage(addr.PageID)
	if err != nil {
		return 0, err
	}
	v, err := h.Read(addr.Slot)
	if uerr := h.Unpin(false); uerr != nil {
		return 0, errors.Join(err, uerr)
	}
	return v, err
}

// WriteRecord stores v at flat record index i.
func (bp *BufferPool) WriteRecord(i uint64, v int64) error {
	addr := util.AddressOf(i)
	h, err := bp.FetchPage(addr.PageID)
	if err != nil {
		return err
	}
	err = h.Write(addr.Slot, v)
	return errors.Join(err, h.Unpin(err == nil))
}

/* INTROSPECTION */

// Size returns the number of resident pages.
func (bp *BufferPool) Size() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.table.len()
}

func (bp *BufferPool) Empty() bool {
	return bp.Size() == 0
}

func (bp *BufferPool) Full() bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.table.len() >= bp.capacity
}

// NumPages is one past the highest page id the pool has handed out or
// found in the store.
func (bp *BufferPool) NumPages() uint64 {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return uint64(bp.nextPageID)
}

func (bp *BufferPool) Capacity() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.capacity
}

func (bp *BufferPool) IsResident(pageID util.PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	_, ok := bp.table.lookup(pageID)
	return ok
}

// PinCount returns the pin count of a resident page.
func (bp *BufferPool) PinCount(pageID util.PageID) (int32, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	frameIdx, ok := bp.table.lookup(pageID)
	if !ok {
		return 0, fmt.Errorf("page %d: %w", pageID, util.ErrNotResident)
	}
	return bp.frames[frameIdx].PinCount(), nil
}

// ResidentPages returns resident page ids in ascending order.
func (bp *BufferPool) ResidentPages() []util.PageID {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.table.pageIDs()
}

func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	s := bp.stats
	s.Capacity = bp.capacity
	s.Resident = bp.table.len()
	s.Pinned = bp.pinned
	for _, frameIdx := range bp.table.index {
		if bp.frames[frameIdx].IsDirty() {
			s.Dirty++
		}
	}
	return s
}

// ===================== HELPER FUNCTION =====================

// acquireFrame returns an empty frame index, evicting if the pool is at
// capacity. A dirty victim is flushed first; if that fails the victim stays
// resident and the error is returned.
func (bp *BufferPool) acquireFrame() (int, error) {
	if bp.table.len() < bp.capacity {
		if frameIdx := bp.table.allocFree(); frameIdx != -1 {
			return frameIdx, nil
		}
		bp.frames = append(bp.frames, nil)
		return len(bp.frames) - 1, nil
	}

	victimIdx, err := bp.replacer.Victim()
	if err != nil {
		return -1, fmt.Errorf("%w: %w", util.ErrPoolExhausted, err)
	}

	victim := bp.frames[victimIdx]
	if victim.PinCount() != 0 {
		panic(fmt.Sprintf("[pool] [acquireFrame] replacer chose pinned page %d", victim.ID()))
	}
	dirty := victim.IsDirty()
	if err := bp.flushFrame(victim); err != nil {
		bp.logger.Warnf("[pool] [acquireFrame] evicting page %d: %v", victim.ID(), err)
		return -1, err
	}

	bp.replacer.Remove(victimIdx)
	bp.table.remove(victim.ID())
	bp.stats.Evictions++
	bp.metrics.Evictions.Inc()
	bp.logger.Debugf("[pool] evict page=%d frame=%d dirty=%v", victim.ID(), victimIdx, dirty)
	return victimIdx, nil
}

// frameAt readies the page object of frameIdx for pageID.
func (bp *BufferPool) frameAt(frameIdx int, pageID util.PageID) *page.Page {
	p := bp.frames[frameIdx]
	if p == nil {
		p = page.New(pageID)
		bp.frames[frameIdx] = p
		return p
	}
	p.Reset(pageID)
	return p
}

func (bp *BufferPool) pinFrame(frameIdx int) *PageHandle {
	p := bp.frames[frameIdx]
	if p.Pin() == 1 {
		bp.pinned++
		bp.metrics.Pinned.Set(float64(bp.pinned))
	}
	bp.replacer.RecordAccess(frameIdx)
	bp.replacer.SetEvictable(frameIdx, false)
	return &PageHandle{pool: bp, page: p, id: p.ID(), frameIdx: frameIdx}
}
