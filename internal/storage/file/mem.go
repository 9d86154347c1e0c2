package file

import (
	"fmt"
	"sync"
	"sync/atomic"

	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

// MemStore is a map-backed Filer. Nothing survives the process.
type MemStore struct {
	mu     sync.RWMutex
	pages  map[util.PageID][]byte
	next   uint64
	closed bool

	reads  atomic.Int64
	writes atomic.Int64
}

func NewMemStore() *MemStore {
	return &MemStore{pages: make(map[util.PageID][]byte)}
}

func (m *MemStore) ReadPage(pageID util.PageID) ([]byte, error) {
	m.reads.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, util.ErrStoreClosed
	}
	data, ok := m.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("read page %d: %w", pageID, util.ErrPageNotFound)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (m *MemStore) WritePage(pageID util.PageID, data []byte) error {
	if err := checkImage(pageID, data); err != nil {
		return err
	}
	m.writes.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return util.ErrStoreClosed
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.pages[pageID] = buf
	if uint64(pageID) >= m.next {
		m.next = uint64(pageID) + 1
	}
	return nil
}

func (m *MemStore) NumPages() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.next
}

// Reads and Writes count store calls, including failed ones.
func (m *MemStore) Reads() int64  { return m.reads.Load() }
func (m *MemStore) Writes() int64 { return m.writes.Load() }

func (m *MemStore) Sync() error { return nil }

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
