//go:build !windows

package file

import (
	"fmt"

	"golang.org/x/sys/unix"

	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

// Base on: https://github.com/etcd-io/bbolt/blob/main/bolt_unix.go

func mmap(fm *FileManager, size int64) error {
	if fm.File == nil {
		return util.ErrFileManagerNil
	}
	if size <= 0 {
		return util.ErrInvalidInitialPages
	}
	if size > util.MAX_MAP_SIZE {
		return util.ErrMaxMapSizeExceeded
	}

	if err := fm.File.Truncate(size); err != nil {
		return fmt.Errorf("truncate to %d: %w", size, err)
	}

	data, err := unix.Mmap(int(fm.File.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}

	fm.Data = data
	fm.Size = size
	return nil
}

// munmap unmaps a pointer from a file.
func munmap(fm *FileManager) error {
	if fm.Data == nil {
		return nil
	}

	err := unix.Munmap(fm.Data)
	fm.Data = nil
	fm.Size = 0
	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// msync flushes dirty mapped pages to the file.
func msync(fm *FileManager) error {
	if fm.Data == nil {
		return nil
	}
	return unix.Msync(fm.Data, unix.MS_SYNC)
}
