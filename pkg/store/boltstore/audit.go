package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cohorta/cohorta/pkg/experiment"
	"github.com/cohorta/cohorta/pkg/store"
)

// AuditRecord is one persisted attribute change.
type AuditRecord struct {
	AttributeName string    `json:"attribute"`
	OldValue      string    `json:"old"`
	NewValue      string    `json:"new"`
	At            time.Time `json:"at"`
}

// LogExperimentChanges appends one audit row per changed attribute. Rows
// for the same experiment share a key prefix and are sequenced by the audit
// bucket, so a prefix scan yields them in write order.
func (s *Store) LogExperimentChanges(ctx context.Context, id string, changes []experiment.AuditInfo, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return transient("log changes", err)
	}
	if len(changes) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		audit := tx.Bucket(bucketAudit)
		for _, c := range changes {
			seq, err := audit.NextSequence()
			if err != nil {
				return err
			}
			rec := AuditRecord{
				AttributeName: c.AttributeName,
				OldValue:      c.OldValue,
				NewValue:      c.NewValue,
				At:            at.UTC(),
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("%w: marshal audit row: %v", store.ErrSchema, err)
			}
			if err := audit.Put(auditKey(id, seq), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isKind(err) {
			return err
		}
		return transient("log changes", err)
	}
	return nil
}

// GetExperimentChanges returns an experiment's audit rows in write order.
func (s *Store) GetExperimentChanges(ctx context.Context, id string) ([]AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("get changes", err)
	}

	prefix := append([]byte(id), keySep)
	var out []AuditRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec AuditRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: unmarshal audit row: %v", store.ErrSchema, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		if isKind(err) {
			return nil, err
		}
		return nil, transient("get changes", err)
	}
	return out, nil
}
