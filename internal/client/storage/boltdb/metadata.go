package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const keyLastRefresh = "last_refresh"

// SaveLastRefresh saves the time of the last successful token refresh
func (s *Storage) SaveLastRefresh(ctx context.Context, at time.Time) error {
	return s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(at.UnixNano()))

		if err := bucket.Put([]byte(keyLastRefresh), buf); err != nil {
			return fmt.Errorf("failed to save last refresh: %w", err)
		}
		return nil
	})
}

// LastRefresh returns the time of the last successful refresh.
// Returns zero time if no refresh has been performed yet.
func (s *Storage) LastRefresh(ctx context.Context) (time.Time, error) {
	var at time.Time

	err := s.view(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		buf := bucket.Get([]byte(keyLastRefresh))
		if buf == nil {
			return nil
		}

		at = time.Unix(0, int64(binary.BigEndian.Uint64(buf))).UTC()
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last refresh: %w", err)
	}

	return at, nil
}
