// Package buckets stores the bucket list of each experiment. The
// experiment service reads it once, on the DRAFT -> RUNNING transition, to
// sanity-check allocations before the experiment goes live.
package buckets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/cohorta/cohorta/pkg/experiment"
)

// ErrNoBuckets is returned when an experiment has no stored bucket list.
var ErrNoBuckets = errors.New("no buckets for experiment")

var bucketLists = []byte("bucket_lists")

// Store is a BoltDB-backed bucket-list store keyed by experiment id.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bucket-list store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bucket db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLists)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutBuckets replaces an experiment's bucket list. The list is validated
// lazily, on the DRAFT -> RUNNING transition, not here: buckets are edited
// incrementally while the experiment is in DRAFT.
func (s *Store) PutBuckets(_ context.Context, experimentID string, list experiment.BucketList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal bucket list: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLists).Put([]byte(experimentID), data)
	})
	if err != nil {
		return fmt.Errorf("store bucket list: %w", err)
	}
	return nil
}

// GetBuckets returns an experiment's bucket list.
func (s *Store) GetBuckets(_ context.Context, experimentID string) (experiment.BucketList, error) {
	var list experiment.BucketList
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLists).Get([]byte(experimentID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNoBuckets, experimentID)
		}
		return json.Unmarshal(data, &list)
	})
	if err != nil {
		return experiment.BucketList{}, err
	}
	return list, nil
}

// DeleteBuckets drops an experiment's bucket list.
func (s *Store) DeleteBuckets(_ context.Context, experimentID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLists).Delete([]byte(experimentID))
	})
	if err != nil {
		return fmt.Errorf("delete bucket list: %w", err)
	}
	return nil
}
