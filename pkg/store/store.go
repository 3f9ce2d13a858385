// Package store defines the persistence contract for experiments.
//
// Two backends implement it: the BoltDB primary (authoritative, owns the
// lookup indices and the audit log) and the relational mirror used for
// reporting joins. The experiment service writes to both and compensates
// in reverse order when one of them fails.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cohorta/cohorta/pkg/experiment"
)

// Error kinds. Backends wrap one of these into every failure so callers can
// classify with errors.Is.
var (
	// ErrNotFound: the experiment id (or app/label pair) has no visible row.
	ErrNotFound = errors.New("experiment not found")
	// ErrConflict: unique (application, label) violated, or a lost race.
	ErrConflict = errors.New("conflict")
	// ErrTransient: timeout or otherwise retryable backend failure. The
	// service never retries internally; callers may retry the whole call.
	ErrTransient = errors.New("transient repository error")
	// ErrSchema: non-retryable backend failure (corrupt row, bad encoding).
	ErrSchema = errors.New("repository schema error")
)

// ExperimentStore is implemented by both the primary and the secondary
// backend. Index and audit operations are meaningful on the primary only;
// the secondary accepts them as no-ops.
type ExperimentStore interface {
	// CreateExperiment persists a new experiment in DRAFT state. The
	// primary mints the id if n.ID is empty and fills it in; the secondary
	// requires n.ID to be set already.
	CreateExperiment(ctx context.Context, n *experiment.NewExperiment, at time.Time) (string, error)

	// CreateIndices builds the application and label lookup entries for a
	// newly created experiment. No-op on the secondary.
	CreateIndices(ctx context.Context, n *experiment.NewExperiment) error

	// GetExperiment returns the experiment by id, or ErrNotFound. Deleted
	// experiments are not visible.
	GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error)

	// GetExperimentByLabel returns the experiment by (application, label),
	// or ErrNotFound.
	GetExperimentByLabel(ctx context.Context, appName, label string) (*experiment.Experiment, error)

	// GetExperiments returns all non-deleted experiments, ordered by
	// (application, label).
	GetExperiments(ctx context.Context) ([]*experiment.Experiment, error)

	// GetExperimentsByApp returns an application's non-deleted experiments,
	// ordered by label.
	GetExperimentsByApp(ctx context.Context, appName string) ([]*experiment.Experiment, error)

	// UpdateExperiment overwrites the stored experiment and returns the
	// stored form. The primary also moves its index entries when the
	// application or label changed, and drops them when the experiment
	// enters DELETED.
	UpdateExperiment(ctx context.Context, e *experiment.Experiment) (*experiment.Experiment, error)

	// DeleteExperiment undoes a create during compensation: logical on the
	// primary (row kept as a DELETED tombstone, indices dropped), physical
	// on the secondary.
	DeleteExperiment(ctx context.Context, n *experiment.NewExperiment) error

	// LogExperimentChanges appends attribute-level audit rows for an
	// update. No-op on the secondary.
	LogExperimentChanges(ctx context.Context, id string, changes []experiment.AuditInfo, at time.Time) error

	// GetApplicationsList returns the distinct application names that have
	// experiments, sorted.
	GetApplicationsList(ctx context.Context) ([]string, error)
}
