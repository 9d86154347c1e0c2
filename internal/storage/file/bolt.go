package file

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

var pagesBucket = []byte("pages")

// BoltStore keeps page images in a bbolt bucket keyed by the big-endian
// page id, so cursor order is page order.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string, syncWrites bool) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second, NoSync: !syncWrites})
	if err != nil {
		return nil, ioError(err, "open bolt store %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pagesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, ioError(err, "create bucket")
	}
	return &BoltStore{db: db}, nil
}

func pageKey(pageID util.PageID) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(pageID))
	return key
}

func (s *BoltStore) ReadPage(pageID util.PageID) ([]byte, error) {
	var buf []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(pagesBucket).Get(pageKey(pageID))
		if v == nil {
			return nil
		}
		// v is only valid inside the transaction
		buf = make([]byte, len(v))
		copy(buf, v)
		return nil
	})
	if err != nil {
		return nil, ioError(err, "read page %d", pageID)
	}
	if buf == nil {
		return nil, fmt.Errorf("read page %d: %w", pageID, util.ErrPageNotFound)
	}
	return buf, nil
}

func (s *BoltStore) WritePage(pageID util.PageID, data []byte) error {
	if err := checkImage(pageID, data); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pagesBucket).Put(pageKey(pageID), data)
	})
	if err != nil {
		return ioError(err, "write page %d", pageID)
	}
	return nil
}

func (s *BoltStore) NumPages() uint64 {
	var n uint64
	_ = s.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(pagesBucket).Cursor().Last()
		if k != nil {
			n = binary.BigEndian.Uint64(k) + 1
		}
		return nil
	})
	return n
}

func (s *BoltStore) Sync() error {
	if err := s.db.Sync(); err != nil {
		return ioError(err, "sync bolt store")
	}
	return nil
}

func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return ioError(err, "close bolt store")
	}
	return nil
}
