package file

import (
	"errors"
	"fmt"
	"os"
	"sync"

	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

/**
* This module is used to read and write pages from / to disk.
* The file is mapped into memory; page id N lives at offset N*PageSize.
* A page exists once it has been written: numPages is the high-water mark,
* and Close truncates the file back to it so reserved space does not turn
* into phantom pages on the next open.
**/
type FileManager struct {
	mu         sync.RWMutex
	File       *os.File
	Data       []byte
	Size       int64
	numPages   uint64
	syncWrites bool
	mapping    uintptr // windows mapping handle
}

type FileOption func(*FileManager)

// WithSyncWrites msyncs the mapping after every WritePage.
func WithSyncWrites(sync bool) FileOption {
	return func(fm *FileManager) {
		fm.syncWrites = sync
	}
}

func NewFileManager(path string, initialPages int, opts ...FileOption) (*FileManager, error) {
	if initialPages <= 0 {
		return nil, util.ErrInvalidInitialPages
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	fm := &FileManager{File: f, numPages: uint64(info.Size() / util.PageSize)}
	for _, opt := range opts {
		opt(fm)
	}

	mapSize := max(int64(initialPages)*util.PageSize, int64(fm.numPages)*util.PageSize)
	if err := mmap(fm, mapSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("map file fail: %w", err)
	}

	return fm, nil
}

/* READ FILE */
func (fm *FileManager) ReadPage(pageId util.PageID) ([]byte, error) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	if fm.File == nil {
		return nil, util.ErrStoreClosed
	}
	if uint64(pageId) >= fm.numPages {
		return nil, fmt.Errorf("read page %d: %w", pageId, util.ErrPageNotFound)
	}

	offset := int64(pageId) * util.PageSize
	if offset+util.PageSize > int64(len(fm.Data)) {
		return nil, ioError(util.ErrNotMapped, "[ReadPage] page %d", pageId)
	}
	buf := make([]byte, util.PageSize)
	copy(buf, fm.Data[offset:offset+util.PageSize])
	return buf, nil
}

/* WRITE FILE */
func (fm *FileManager) WritePage(pageId util.PageID, data []byte) error {
	if err := checkImage(pageId, data); err != nil {
		return err
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.File == nil {
		return util.ErrStoreClosed
	}
	// a failed remap leaves no mapping; growing from here would truncate
	// the file below numPages
	if fm.Data == nil {
		return ioError(util.ErrNotMapped, "[WritePage] page %d", pageId)
	}

	offset := int64(pageId) * util.PageSize
	if offset+util.PageSize > fm.Size {
		newSize := max(fm.Size*2, offset+util.PageSize)
		if newSize > util.MAX_MAP_SIZE {
			return ioError(util.ErrMaxMapSizeExceeded, "[WritePage] grow to %d", newSize)
		}

		if err := munmap(fm); err != nil {
			return ioError(err, "[WritePage] unmap file fail")
		}

		if err := mmap(fm, newSize); err != nil {
			return ioError(err, "[WritePage] map file fail")
		}
	}

	copy(fm.Data[offset:], data)
	if uint64(pageId) >= fm.numPages {
		fm.numPages = uint64(pageId) + 1
	}

	if fm.syncWrites {
		if err := msync(fm); err != nil {
			return ioError(err, "[WritePage] sync page %d", pageId)
		}
	}
	return nil
}

func (fm *FileManager) NumPages() uint64 {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.numPages
}

func (fm *FileManager) Sync() error {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	if fm.File == nil {
		return util.ErrStoreClosed
	}
	if err := msync(fm); err != nil {
		return ioError(err, "[Sync] msync")
	}
	return nil
}

/**
* CLOSE FUNCTION
**/
func (fm *FileManager) Close() error {
	if fm == nil {
		return nil // Idempotent
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.File == nil {
		return nil
	}

	var err error
	if e := msync(fm); e != nil {
		err = errors.Join(err, fmt.Errorf("sync mapping: %w", e))
	}
	if e := munmap(fm); e != nil {
		return fmt.Errorf("[close] unmap file fail: %w", e)
	}

	if e := fm.File.Truncate(int64(fm.numPages) * util.PageSize); e != nil {
		err = errors.Join(err, fmt.Errorf("truncate file: %w", e))
	}
	if e := fm.File.Sync(); e != nil {
		err = errors.Join(err, fmt.Errorf("sync file: %w", e))
	}
	if e := fm.File.Close(); e != nil {
		err = errors.Join(err, fmt.Errorf("close file: %w", e))
	}
	fm.File = nil
	return err
}
