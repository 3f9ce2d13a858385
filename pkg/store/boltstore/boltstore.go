// Package boltstore is the primary experiment store: a BoltDB database
// holding the authoritative rows, the application/label lookup indices and
// the attribute-level audit log.
//
// Layout:
//
//	experiments      id -> avro row
//	labels           app|label -> id        (unique among non-deleted)
//	app_experiments  app|id -> nil          (membership index)
//	audit            id|seq -> JSON         (append-only change log)
//
// Index entries are written by CreateIndices, not by CreateExperiment: the
// row exists first, the lookups come last, matching the create
// orchestration where the index build is the final persistent step.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/cohorta/cohorta/pkg/experiment"
	"github.com/cohorta/cohorta/pkg/store"
)

var (
	bucketExperiments = []byte("experiments")
	bucketLabels      = []byte("labels")
	bucketApps        = []byte("app_experiments")
	bucketAudit       = []byte("audit")
)

// keySep joins composite keys. Identifiers cannot contain NUL.
const keySep = byte(0)

// Store is the BoltDB-backed primary store.
type Store struct {
	db     *bolt.DB
	dbPath string
}

// Open opens (or creates) the primary store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open experiment db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketExperiments, bucketLabels, bucketApps, bucketAudit} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db, dbPath: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func labelKey(appName, label string) []byte {
	k := make([]byte, 0, len(appName)+1+len(label))
	k = append(k, appName...)
	k = append(k, keySep)
	k = append(k, label...)
	return k
}

func appKey(appName, id string) []byte {
	k := make([]byte, 0, len(appName)+1+len(id))
	k = append(k, appName...)
	k = append(k, keySep)
	k = append(k, id...)
	return k
}

func auditKey(id string, seq uint64) []byte {
	k := make([]byte, 0, len(id)+1+8)
	k = append(k, id...)
	k = append(k, keySep)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(k, buf[:]...)
}

func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", store.ErrTransient, op, err)
}

// CreateExperiment writes the DRAFT row, minting the id if needed. The
// label index is consulted so a still-live (application, label) pair is a
// conflict, but no index entries are written here.
func (s *Store) CreateExperiment(ctx context.Context, n *experiment.NewExperiment, at time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", transient("create", err)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	e := n.Experiment(at)
	data, err := encodeRow(e)
	if err != nil {
		return "", fmt.Errorf("%w: %v", store.ErrSchema, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		experiments := tx.Bucket(bucketExperiments)
		labels := tx.Bucket(bucketLabels)

		if experiments.Get([]byte(n.ID)) != nil {
			return fmt.Errorf("%w: experiment %s already exists", store.ErrConflict, n.ID)
		}
		if existing := labels.Get(labelKey(n.ApplicationName, n.Label)); existing != nil {
			return fmt.Errorf("%w: label %q already in use on application %q",
				store.ErrConflict, n.Label, n.ApplicationName)
		}

		return experiments.Put([]byte(n.ID), data)
	})
	if err != nil {
		if isKind(err) {
			return "", err
		}
		return "", transient("create", err)
	}
	return n.ID, nil
}

// CreateIndices writes the label and application lookup entries for a newly
// created experiment.
func (s *Store) CreateIndices(ctx context.Context, n *experiment.NewExperiment) error {
	if err := ctx.Err(); err != nil {
		return transient("create indices", err)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		labels := tx.Bucket(bucketLabels)
		key := labelKey(n.ApplicationName, n.Label)
		if existing := labels.Get(key); existing != nil && string(existing) != n.ID {
			return fmt.Errorf("%w: label %q already indexed on application %q",
				store.ErrConflict, n.Label, n.ApplicationName)
		}
		if err := labels.Put(key, []byte(n.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketApps).Put(appKey(n.ApplicationName, n.ID), nil)
	})
	if err != nil {
		if isKind(err) {
			return err
		}
		return transient("create indices", err)
	}
	return nil
}

// GetExperiment returns the experiment by id. DELETED rows read as absent.
func (s *Store) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("get", err)
	}

	var e *experiment.Experiment
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketExperiments).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		decoded, err := decodeRow(data)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrSchema, err)
		}
		if decoded.State == experiment.StateDeleted {
			return fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		e = decoded
		return nil
	})
	if err != nil {
		if isKind(err) {
			return nil, err
		}
		return nil, transient("get", err)
	}
	return e, nil
}

// GetExperimentByLabel resolves (application, label) through the label index.
func (s *Store) GetExperimentByLabel(ctx context.Context, appName, label string) (*experiment.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("get by label", err)
	}

	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLabels).Get(labelKey(appName, label))
		if v == nil {
			return fmt.Errorf("%w: %s/%s", store.ErrNotFound, appName, label)
		}
		id = string(v)
		return nil
	})
	if err != nil {
		if isKind(err) {
			return nil, err
		}
		return nil, transient("get by label", err)
	}
	return s.GetExperiment(ctx, id)
}

// GetExperiments returns every non-deleted experiment ordered by
// (application, label).
func (s *Store) GetExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("list", err)
	}

	var out []*experiment.Experiment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExperiments).ForEach(func(_, v []byte) error {
			e, err := decodeRow(v)
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrSchema, err)
			}
			if e.State != experiment.StateDeleted {
				out = append(out, e)
			}
			return nil
		})
	})
	if err != nil {
		if isKind(err) {
			return nil, err
		}
		return nil, transient("list", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ApplicationName != out[j].ApplicationName {
			return out[i].ApplicationName < out[j].ApplicationName
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

// GetExperimentsByApp returns an application's non-deleted experiments
// ordered by label, via the membership index.
func (s *Store) GetExperimentsByApp(ctx context.Context, appName string) ([]*experiment.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("list by app", err)
	}

	prefix := append([]byte(appName), keySep)
	var out []*experiment.Experiment
	err := s.db.View(func(tx *bolt.Tx) error {
		experiments := tx.Bucket(bucketExperiments)
		c := tx.Bucket(bucketApps).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			id := k[len(prefix):]
			data := experiments.Get(id)
			if data == nil {
				continue
			}
			e, err := decodeRow(data)
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrSchema, err)
			}
			if e.State != experiment.StateDeleted {
				out = append(out, e)
			}
		}
		return nil
	})
	if err != nil {
		if isKind(err) {
			return nil, err
		}
		return nil, transient("list by app", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

// UpdateExperiment overwrites the row and keeps the indices in step: label
// and membership entries move when the application or label changed, and
// are dropped when the experiment enters DELETED.
func (s *Store) UpdateExperiment(ctx context.Context, e *experiment.Experiment) (*experiment.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("update", err)
	}

	data, err := encodeRow(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrSchema, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		experiments := tx.Bucket(bucketExperiments)
		labels := tx.Bucket(bucketLabels)
		apps := tx.Bucket(bucketApps)

		oldData := experiments.Get([]byte(e.ID))
		if oldData == nil {
			return fmt.Errorf("%w: %s", store.ErrNotFound, e.ID)
		}
		old, err := decodeRow(oldData)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrSchema, err)
		}

		moved := old.ApplicationName != e.ApplicationName || old.Label != e.Label
		if moved {
			newKey := labelKey(e.ApplicationName, e.Label)
			if existing := labels.Get(newKey); existing != nil && string(existing) != e.ID {
				return fmt.Errorf("%w: label %q already in use on application %q",
					store.ErrConflict, e.Label, e.ApplicationName)
			}
			if err := labels.Delete(labelKey(old.ApplicationName, old.Label)); err != nil {
				return err
			}
			if err := labels.Put(newKey, []byte(e.ID)); err != nil {
				return err
			}
		}
		if old.ApplicationName != e.ApplicationName {
			if err := apps.Delete(appKey(old.ApplicationName, e.ID)); err != nil {
				return err
			}
			if err := apps.Put(appKey(e.ApplicationName, e.ID), nil); err != nil {
				return err
			}
		}

		switch {
		case e.State == experiment.StateDeleted:
			if err := labels.Delete(labelKey(e.ApplicationName, e.Label)); err != nil {
				return err
			}
			if err := apps.Delete(appKey(e.ApplicationName, e.ID)); err != nil {
				return err
			}
		case old.State == experiment.StateDeleted:
			// reverting a deletion (mirror-failure compensation): the index
			// entries were dropped with the tombstone, put them back
			key := labelKey(e.ApplicationName, e.Label)
			if existing := labels.Get(key); existing != nil && string(existing) != e.ID {
				return fmt.Errorf("%w: label %q already in use on application %q",
					store.ErrConflict, e.Label, e.ApplicationName)
			}
			if err := labels.Put(key, []byte(e.ID)); err != nil {
				return err
			}
			if err := apps.Put(appKey(e.ApplicationName, e.ID), nil); err != nil {
				return err
			}
		}

		return experiments.Put([]byte(e.ID), data)
	})
	if err != nil {
		if isKind(err) {
			return nil, err
		}
		return nil, transient("update", err)
	}

	stored := *e
	return &stored, nil
}

// DeleteExperiment tombstones a half-created experiment: the row flips to
// DELETED (the id stays burned) and any index entries are removed.
func (s *Store) DeleteExperiment(ctx context.Context, n *experiment.NewExperiment) error {
	if err := ctx.Err(); err != nil {
		return transient("delete", err)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		experiments := tx.Bucket(bucketExperiments)
		data := experiments.Get([]byte(n.ID))
		if data == nil {
			return nil
		}
		e, err := decodeRow(data)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrSchema, err)
		}
		e.State = experiment.StateDeleted
		tombstone, err := encodeRow(e)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrSchema, err)
		}

		labels := tx.Bucket(bucketLabels)
		key := labelKey(e.ApplicationName, e.Label)
		if existing := labels.Get(key); existing != nil && string(existing) == e.ID {
			if err := labels.Delete(key); err != nil {
				return err
			}
		}
		if err := tx.Bucket(bucketApps).Delete(appKey(e.ApplicationName, e.ID)); err != nil {
			return err
		}

		return experiments.Put([]byte(n.ID), tombstone)
	})
	if err != nil {
		if isKind(err) {
			return err
		}
		return transient("delete", err)
	}
	return nil
}

// GetApplicationsList returns the distinct application names present in the
// membership index, sorted.
func (s *Store) GetApplicationsList(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("list applications", err)
	}

	seen := make(map[string]struct{})
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketApps).ForEach(func(k, _ []byte) error {
			if i := bytes.IndexByte(k, keySep); i > 0 {
				seen[string(k[:i])] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return nil, transient("list applications", err)
	}

	out := make([]string, 0, len(seen))
	for app := range seen {
		out = append(out, app)
	}
	sort.Strings(out)
	return out, nil
}

// isKind reports whether err already carries one of the store error kinds.
func isKind(err error) bool {
	for _, t := range []error{store.ErrNotFound, store.ErrConflict, store.ErrSchema, store.ErrTransient} {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
