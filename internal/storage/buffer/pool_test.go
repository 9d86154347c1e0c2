package buffer

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bietkhonhungvandi212/array-db/internal/logger"
	"github.com/bietkhonhungvandi212/array-db/internal/storage/file"
	"github.com/bietkhonhungvandi212/array-db/internal/storage/page"
	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore wraps a MemStore with injectable latency and write failures.
type testStore struct {
	*file.MemStore
	readDelay  time.Duration
	failWrites atomic.Bool

	mu       sync.Mutex
	failPage map[util.PageID]bool
}

func newTestStore() *testStore {
	return &testStore{MemStore: file.NewMemStore(), failPage: make(map[util.PageID]bool)}
}

func (s *testStore) ReadPage(id util.PageID) ([]byte, error) {
	if s.readDelay > 0 {
		time.Sleep(s.readDelay)
	}
	return s.MemStore.ReadPage(id)
}

func (s *testStore) WritePage(id util.PageID, data []byte) error {
	s.mu.Lock()
	fail := s.failPage[id]
	s.mu.Unlock()
	if fail || s.failWrites.Load() {
		return fmt.Errorf("%w: write page %d: device unplugged", util.ErrIO, id)
	}
	return s.MemStore.WritePage(id, data)
}

func (s *testStore) failOn(id util.PageID, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPage[id] = fail
}

// seed writes pages 0..n-1 where page i holds value i*10 in slot 0.
func (s *testStore) seed(t *testing.T, n int) {
	t.Helper()
	for i := range n {
		require.NoError(t, s.MemStore.WritePage(util.PageID(i), page.CreateTestImage(int64(i*10))))
	}
}

// storedValue decodes slot 0 of a page straight from the store.
func storedValue(t *testing.T, s file.Filer, id util.PageID) int64 {
	t.Helper()
	data, err := s.ReadPage(id)
	require.NoError(t, err)
	p, err := page.Deserialize(id, data)
	require.NoError(t, err)
	v, err := p.Read(0)
	require.NoError(t, err)
	return v
}

// newFilled creates a page holding v in slot 0 and unpins it dirty.
func newFilled(t *testing.T, bp *BufferPool, v int64) util.PageID {
	t.Helper()
	h, err := bp.NewPage()
	require.NoError(t, err)
	require.NoError(t, h.Write(0, v))
	id := h.ID()
	require.NoError(t, h.Unpin(true))
	return id
}

func TestNewBufferPool(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		bp := NewBufferPool(file.NewMemStore())
		assert.Equal(t, util.DefaultOptions().PageLimit, bp.Capacity())
		assert.True(t, bp.Empty())
		assert.False(t, bp.Full())
		assert.IsType(t, &LRUReplacer{}, bp.replacer)
	})

	t.Run("NilStore", func(t *testing.T) {
		assert.Panics(t, func() { NewBufferPool(nil) })
	})

	t.Run("ZeroCapacity", func(t *testing.T) {
		assert.Panics(t, func() { NewBufferPool(file.NewMemStore(), WithCapacity(0)) })
	})

	t.Run("IdsContinueAfterStore", func(t *testing.T) {
		s := newTestStore()
		s.seed(t, 3)
		bp := NewBufferPool(s, WithCapacity(2))
		h, err := bp.NewPage()
		require.NoError(t, err)
		assert.Equal(t, util.PageID(3), h.ID())
	})
}

func TestBufferPoolEvictsLeastRecentlyUsed(t *testing.T) {
	s := newTestStore()
	bp := NewBufferPool(s, WithCapacity(4))

	for i := range 4 {
		id := newFilled(t, bp, int64(100+i))
		assert.Equal(t, util.PageID(i), id)
	}
	assert.Equal(t, 4, bp.Size())
	assert.True(t, bp.Full())
	assert.Equal(t, int64(0), s.Writes(), "nothing written before eviction")

	h, err := bp.NewPage()
	require.NoError(t, err)
	assert.Equal(t, util.PageID(4), h.ID())
	require.NoError(t, h.Unpin(false))

	assert.False(t, bp.IsResident(0), "page 0 was least recently used")
	assert.Equal(t, 4, bp.Size())
	assert.Equal(t, int64(100), storedValue(t, s, 0), "dirty victim flushed before reuse")

	// fetching 0 back evicts page 1 and returns the flushed contents
	v, err := bp.ReadRecord(0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
	assert.False(t, bp.IsResident(1))
	assert.Equal(t, []util.PageID{0, 2, 3, 4}, bp.ResidentPages())

	st := bp.Stats()
	assert.Equal(t, uint64(2), st.Evictions)
	assert.Equal(t, uint64(1), st.Misses)
	assert.Equal(t, 4, st.Resident)
}

func TestBufferPoolRecencyOnHit(t *testing.T) {
	bp := NewBufferPool(newTestStore(), WithCapacity(3))
	for i := range 3 {
		newFilled(t, bp, int64(i))
	}

	// touch 0 so 1 becomes the oldest
	h, err := bp.FetchPage(0)
	require.NoError(t, err)
	require.NoError(t, h.Unpin(false))

	newFilled(t, bp, 3)
	assert.True(t, bp.IsResident(0))
	assert.False(t, bp.IsResident(1))
}

func TestBufferPoolExhausted(t *testing.T) {
	s := newTestStore()
	s.seed(t, 2)
	bp := NewBufferPool(s, WithCapacity(1))

	h0, err := bp.FetchPage(0)
	require.NoError(t, err)

	_, err = bp.FetchPage(1)
	require.ErrorIs(t, err, util.ErrPoolExhausted)
	assert.Equal(t, util.ErrTypePoolExhausted, util.KindOf(err))
	assert.True(t, bp.IsResident(0))
	assert.Equal(t, 1, bp.Size())

	_, err = bp.NewPage()
	assert.ErrorIs(t, err, util.ErrPoolExhausted)

	require.NoError(t, h0.Unpin(false))
	h1, err := bp.FetchPage(1)
	require.NoError(t, err)
	defer h1.Unpin(false)

	v, err := h1.Read(0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
	assert.False(t, bp.IsResident(0))
}

func TestBufferPoolPinnedNeverEvicted(t *testing.T) {
	bp := NewBufferPool(newTestStore(), WithCapacity(3))

	handles := make([]*PageHandle, 3)
	for i := range handles {
		h, err := bp.NewPage()
		require.NoError(t, err)
		handles[i] = h
	}
	_, err := bp.NewPage()
	require.ErrorIs(t, err, util.ErrPoolExhausted)

	require.NoError(t, handles[1].Unpin(true))
	h, err := bp.NewPage()
	require.NoError(t, err)

	assert.ElementsMatch(t, []util.PageID{0, 2, 3}, bp.ResidentPages())
	assert.Equal(t, 3, bp.Stats().Pinned)

	require.NoError(t, h.Unpin(false))
	require.NoError(t, handles[0].Unpin(false))
	require.NoError(t, handles[2].Unpin(false))
	assert.Equal(t, 0, bp.Stats().Pinned)
}

func TestBufferPoolPinCount(t *testing.T) {
	s := newTestStore()
	s.seed(t, 1)
	bp := NewBufferPool(s, WithCapacity(2))

	var handles []*PageHandle
	for range 3 {
		h, err := bp.FetchPage(0)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	pins, err := bp.PinCount(0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), pins)
	assert.Equal(t, int64(1), s.Reads(), "later fetches are hits")

	for _, h := range handles {
		require.NoError(t, h.Unpin(false))
	}
	pins, err = bp.PinCount(0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), pins)

	err = bp.UnpinPageID(0, false)
	assert.ErrorIs(t, err, util.ErrUnderflowPin)
	assert.Equal(t, util.ErrTypeUnderflowPin, util.KindOf(err))

	_, err = bp.PinCount(9)
	assert.ErrorIs(t, err, util.ErrNotResident)
}

func TestPageHandleRevoked(t *testing.T) {
	bp := NewBufferPool(newTestStore(), WithCapacity(1))
	h, err := bp.NewPage()
	require.NoError(t, err)
	require.NoError(t, h.Write(3, 33))
	require.NoError(t, h.Unpin(true))
	assert.True(t, h.Released())

	_, err = h.Read(3)
	assert.ErrorIs(t, err, util.ErrHandleReleased)
	assert.ErrorIs(t, h.Write(3, 1), util.ErrHandleReleased)
	_, err = h.Values()
	assert.ErrorIs(t, err, util.ErrHandleReleased)

	err = h.Unpin(false)
	assert.ErrorIs(t, err, util.ErrUnderflowPin)
	assert.ErrorIs(t, err, util.ErrHandleReleased)

	// the second unpin must not have touched the real pin count
	pins, err := bp.PinCount(0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), pins)
}

func TestReleasedHandleAfterFrameReuse(t *testing.T) {
	bp := NewBufferPool(newTestStore(), WithCapacity(1))
	old, err := bp.NewPage()
	require.NoError(t, err)
	require.NoError(t, old.Unpin(true))

	// page 1 takes over the only frame
	cur, err := bp.NewPage()
	require.NoError(t, err)
	require.Equal(t, util.PageID(1), cur.ID())
	assert.Same(t, old.page, cur.page, "frame object is recycled")

	assert.Equal(t, util.PageID(0), old.ID())
	err = old.Unpin(false)
	assert.ErrorIs(t, err, util.ErrHandleReleased)
	assert.Contains(t, err.Error(), "page 0")
	_, err = old.Read(0)
	assert.ErrorContains(t, err, "page 0")

	pins, err := bp.PinCount(1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), pins, "stale handle leaves the new page pinned")
	require.NoError(t, cur.Unpin(false))
}

func TestUnpinDirtyIsSticky(t *testing.T) {
	s := newTestStore()
	s.seed(t, 1)
	bp := NewBufferPool(s, WithCapacity(1))

	a, err := bp.FetchPage(0)
	require.NoError(t, err)
	b, err := bp.FetchPage(0)
	require.NoError(t, err)

	require.NoError(t, a.Write(0, 77))
	require.NoError(t, a.Unpin(true))
	require.NoError(t, b.Unpin(false), "a clean unpin does not clear dirty")
	assert.Equal(t, 1, bp.Stats().Dirty)

	require.NoError(t, bp.FlushPage(0))
	assert.Equal(t, int64(77), storedValue(t, s, 0))
	assert.Equal(t, 0, bp.Stats().Dirty)

	// flushing a clean page is a no-op
	writes := s.Writes()
	require.NoError(t, bp.FlushPage(0))
	assert.Equal(t, writes, s.Writes())
}

func TestFetchMissingPage(t *testing.T) {
	s := newTestStore()
	bp := NewBufferPool(s, WithCapacity(1))

	_, err := bp.FetchPage(42)
	require.ErrorIs(t, err, util.ErrPageNotFound)
	assert.Equal(t, util.ErrTypeNotFound, util.KindOf(err))
	assert.True(t, bp.Empty(), "failed fetch leaves nothing resident")

	// the frame went back to the free list
	h, err := bp.NewPage()
	require.NoError(t, err)
	require.NoError(t, h.Unpin(false))
	assert.Equal(t, 1, bp.Size())
}

func TestEvictionFlushFailure(t *testing.T) {
	s := newTestStore()
	buf := &logger.BufferLogger{}
	bp := NewBufferPool(s, WithCapacity(1), WithLogger(buf))

	newFilled(t, bp, 42)
	s.failWrites.Store(true)

	_, err := bp.NewPage()
	require.ErrorIs(t, err, util.ErrFlush)
	assert.ErrorIs(t, err, util.ErrIO)
	assert.Equal(t, util.ErrTypeIOError, util.KindOf(err))

	// the victim stays resident and dirty, no page id was consumed
	assert.True(t, bp.IsResident(0))
	assert.Equal(t, 1, bp.Stats().Dirty)
	assert.Equal(t, uint64(0), bp.Stats().Evictions)
	assert.True(t, containsLine(buf.Lines(), "evicting page 0"))

	s.failWrites.Store(false)
	h, err := bp.NewPage()
	require.NoError(t, err)
	assert.Equal(t, util.PageID(1), h.ID())
	require.NoError(t, h.Unpin(false))
	assert.Equal(t, int64(42), storedValue(t, s, 0))
}

func TestFlushPageNotResident(t *testing.T) {
	bp := NewBufferPool(newTestStore(), WithCapacity(1))
	err := bp.FlushPage(5)
	assert.ErrorIs(t, err, util.ErrNotResident)
	assert.Equal(t, util.ErrTypeNotResident, util.KindOf(err))

	assert.ErrorIs(t, bp.UnpinPageID(5, false), util.ErrNotResident)
}

func TestFlushAllBestEffort(t *testing.T) {
	s := newTestStore()
	bp := NewBufferPool(s, WithCapacity(4))
	for i := range 3 {
		newFilled(t, bp, int64(i+1))
	}
	s.failOn(1, true)

	err := bp.FlushAll()
	require.ErrorIs(t, err, util.ErrFlush)
	assert.Contains(t, err.Error(), "page 1")

	assert.Equal(t, int64(1), storedValue(t, s, 0))
	assert.Equal(t, int64(3), storedValue(t, s, 2))
	assert.Equal(t, 1, bp.Stats().Dirty, "only the failed page stays dirty")

	s.failOn(1, false)
	require.NoError(t, bp.FlushAll())
	assert.Equal(t, int64(2), storedValue(t, s, 1))
	assert.Equal(t, 0, bp.Stats().Dirty)
}

func TestSetCapacity(t *testing.T) {
	bp := NewBufferPool(newTestStore(), WithCapacity(4))
	for i := range 3 {
		newFilled(t, bp, int64(i))
	}

	err := bp.SetCapacity(2)
	require.ErrorIs(t, err, util.ErrCapacityViolation)
	assert.Equal(t, util.ErrTypeCapacityViolation, util.KindOf(err))
	assert.Equal(t, 4, bp.Capacity(), "failed change keeps the old limit")

	assert.ErrorIs(t, bp.SetCapacity(0), util.ErrInvalidPoolSize)

	require.NoError(t, bp.SetCapacity(3))
	assert.True(t, bp.Full())

	// at the new limit a new page must evict
	newFilled(t, bp, 3)
	assert.Equal(t, 3, bp.Size())
	assert.False(t, bp.IsResident(0))

	require.NoError(t, bp.SetCapacity(5))
	assert.False(t, bp.Full())
	newFilled(t, bp, 4)
	assert.Equal(t, 4, bp.Size())
}

func TestSetCapacityShrinkDropsIdleFrames(t *testing.T) {
	s := newTestStore()
	s.seed(t, 3)
	bp := NewBufferPool(s, WithCapacity(3))

	h, err := bp.FetchPage(0)
	require.NoError(t, err)
	require.NoError(t, h.Unpin(false))

	// a failed fetch leaves a free frame behind
	_, err = bp.FetchPage(99)
	require.ErrorIs(t, err, util.ErrPageNotFound)
	require.NoError(t, bp.SetCapacity(1))
	assert.Equal(t, 1, bp.Capacity())

	v, err := bp.ReadRecord(util.SlotsPerPage * 2)
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)
	assert.Equal(t, []util.PageID{2}, bp.ResidentPages())
}

func TestRecordAddressing(t *testing.T) {
	s := newTestStore()
	s.seed(t, 3)
	bp := NewBufferPool(s, WithCapacity(2))

	require.NoError(t, bp.WriteRecord(513, 7))
	v, err := bp.ReadRecord(513)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = bp.ReadRecord(1024)
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)

	// push page 1 out and read it back from the store
	_, err = bp.ReadRecord(0)
	require.NoError(t, err)
	assert.False(t, bp.IsResident(1))
	assert.Equal(t, int64(7), readSlot(t, s, 1, 1))

	_, err = bp.ReadRecord(uint64(util.SlotsPerPage) * 9)
	assert.ErrorIs(t, err, util.ErrPageNotFound)
	assert.Equal(t, 0, bp.Stats().Pinned, "records never leave pins behind")
}

func readSlot(t *testing.T, s file.Filer, id util.PageID, slot int) int64 {
	t.Helper()
	data, err := s.ReadPage(id)
	require.NoError(t, err)
	p, err := page.Deserialize(id, data)
	require.NoError(t, err)
	v, err := p.Read(slot)
	require.NoError(t, err)
	return v
}

func TestClockPolicyPool(t *testing.T) {
	s := newTestStore()
	bp := NewBufferPool(s, WithCapacity(2), WithReplacer(NewClockReplacer(2, 1)))

	newFilled(t, bp, 10)
	newFilled(t, bp, 11)
	newFilled(t, bp, 12)

	assert.Equal(t, 2, bp.Size())
	assert.Equal(t, uint64(1), bp.Stats().Evictions)
	assert.Equal(t, int64(10), storedValue(t, s, 0))

	v, err := bp.ReadRecord(0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
}

func TestBufferPoolReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.dat")

	fm, err := file.NewFileManager(path, 1)
	require.NoError(t, err)
	bp := NewBufferPool(fm, WithCapacity(2))
	for i := range 3 {
		h, err := bp.NewPage()
		require.NoError(t, err)
		var vals [util.SlotsPerPage]int64
		for j := range vals {
			vals[j] = int64(i*util.SlotsPerPage + j)
		}
		require.NoError(t, h.Fill(vals))
		require.NoError(t, h.Unpin(true))
	}
	require.NoError(t, bp.Close())

	fm, err = file.NewFileManager(path, 1)
	require.NoError(t, err)
	bp = NewBufferPool(fm, WithCapacity(2))
	defer bp.Close()

	h, err := bp.NewPage()
	require.NoError(t, err)
	assert.Equal(t, util.PageID(3), h.ID())
	require.NoError(t, h.Unpin(false))

	v, err := bp.ReadRecord(util.SlotsPerPage + 511)
	require.NoError(t, err)
	assert.Equal(t, int64(util.SlotsPerPage+511), v)
}

func TestBufferPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := newTestStore()
	bp := NewBufferPool(s, WithCapacity(1), WithMetrics(m))

	newFilled(t, bp, 1)
	_, err := bp.ReadRecord(0)
	require.NoError(t, err)
	newFilled(t, bp, 2)

	s.failWrites.Store(true)
	_, err = bp.ReadRecord(0)
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Hits))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Misses))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Evictions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Flushes))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FlushErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Resident))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Pinned))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 7)
}

func containsLine(lines []string, sub string) bool {
	for _, l := range lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}
