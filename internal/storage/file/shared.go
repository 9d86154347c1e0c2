package file

import (
	"fmt"

	"github.com/pkg/errors"

	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

// Filer is the page store consumed by the buffer pool. Pages are whole
// util.PageSize images addressed by id.
type Filer interface {
	// ReadPage returns a copy of the page image, util.ErrPageNotFound if the
	// page was never written, or an error wrapping util.ErrIO.
	ReadPage(pageID util.PageID) ([]byte, error)
	// WritePage stores a full page image, overwriting any previous one.
	WritePage(pageID util.PageID, data []byte) error
	// NumPages is one past the highest page id ever written.
	NumPages() uint64
	Sync() error
	Close() error
}

// Open builds the store selected by opts.
func Open(opts util.Options) (Filer, error) {
	switch opts.StoreType {
	case util.StoreFile:
		return NewFileManager(opts.Path, opts.InitialPages, WithSyncWrites(opts.SyncWrites))
	case util.StoreBolt:
		return OpenBoltStore(opts.Path, opts.SyncWrites)
	case util.StoreMemory:
		return NewMemStore(), nil
	}
	return nil, fmt.Errorf("store %q: %w", opts.StoreType, util.ErrUnknownStore)
}

// ioError tags err as a persistence failure.
func ioError(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w", util.ErrIO, errors.Wrapf(err, format, args...))
}

func checkImage(pageID util.PageID, data []byte) error {
	if len(data) != util.PageSize {
		return fmt.Errorf("page %d: got %d bytes: %w", pageID, len(data), util.ErrInvalidPageSize)
	}
	return nil
}
