package experiments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cohorta/cohorta/pkg/experiment"
	"github.com/cohorta/cohorta/pkg/eventlog"
	"github.com/cohorta/cohorta/pkg/rules"
	"github.com/cohorta/cohorta/pkg/store"
)

// PriorityList orders an application's live experiments. Append must be
// idempotent for already-present ids; Remove must tolerate absent ids.
type PriorityList interface {
	Append(ctx context.Context, appName, experimentID string) error
	Remove(ctx context.Context, appName, experimentID string) error
}

// Pages erases an experiment's page bindings when it stops running.
type Pages interface {
	ErasePageData(ctx context.Context, appName, experimentID string, user experiment.UserInfo) error
}

// Buckets supplies the bucket list for the DRAFT -> RUNNING sanity check.
type Buckets interface {
	GetBuckets(ctx context.Context, experimentID string) (experiment.BucketList, error)
}

// Config wires a Service. Primary, Secondary, Priorities, Pages and
// Buckets are required; the rest is backfilled.
type Config struct {
	Primary   store.ExperimentStore
	Secondary store.ExperimentStore

	Priorities PriorityList
	Pages      Pages
	Buckets    Buckets

	RuleCache *rules.Cache
	Compiler  *rules.Compiler

	Events eventlog.Log

	// Now is the clock for every "already passed" check and every
	// service-owned timestamp. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Service orchestrates the experiment lifecycle.
type Service struct {
	primary   store.ExperimentStore
	secondary store.ExperimentStore

	priorities PriorityList
	pages      Pages
	buckets    Buckets

	ruleCache *rules.Cache
	compiler  *rules.Compiler

	events eventlog.Log
	now    func() time.Time
	logger *slog.Logger

	locks stripedLocks
}

// New builds a Service from cfg.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Primary == nil:
		return nil, errors.New("experiments: primary store is required")
	case cfg.Secondary == nil:
		return nil, errors.New("experiments: secondary store is required")
	case cfg.Priorities == nil:
		return nil, errors.New("experiments: priority list is required")
	case cfg.Pages == nil:
		return nil, errors.New("experiments: pages collaborator is required")
	case cfg.Buckets == nil:
		return nil, errors.New("experiments: buckets collaborator is required")
	}

	if cfg.RuleCache == nil {
		cfg.RuleCache = rules.NewCache()
	}
	if cfg.Compiler == nil {
		c, err := rules.NewCompiler()
		if err != nil {
			return nil, fmt.Errorf("experiments: build rule compiler: %w", err)
		}
		cfg.Compiler = c
	}
	if cfg.Events == nil {
		cfg.Events = eventlog.Noop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		primary:    cfg.Primary,
		secondary:  cfg.Secondary,
		priorities: cfg.Priorities,
		pages:      cfg.Pages,
		buckets:    cfg.Buckets,
		ruleCache:  cfg.RuleCache,
		compiler:   cfg.Compiler,
		events:     cfg.Events,
		now:        cfg.Now,
		logger:     cfg.Logger.With("component", "experiments"),
	}, nil
}

// RuleCache exposes the cache for the assignment path.
func (s *Service) RuleCache() *rules.Cache {
	return s.ruleCache
}

// GetExperiments returns every non-deleted experiment, ordered by
// (application, label). Reads always hit the primary.
func (s *Service) GetExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	return s.primary.GetExperiments(ctx)
}

// GetApplications returns the distinct application names with experiments.
func (s *Service) GetApplications(ctx context.Context) ([]string, error) {
	return s.primary.GetApplicationsList(ctx)
}

// GetExperiment returns an experiment by id, or nil when it does not exist
// (or is deleted).
func (s *Service) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	e, err := s.primary.GetExperiment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return e, err
}

// GetExperimentByLabel returns an experiment by (application, label), or
// nil when absent.
func (s *Service) GetExperimentByLabel(ctx context.Context, appName, label string) (*experiment.Experiment, error) {
	e, err := s.primary.GetExperimentByLabel(ctx, appName, label)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return e, err
}

// GetExperimentsByApp returns an application's non-deleted experiments,
// ordered by label.
func (s *Service) GetExperimentsByApp(ctx context.Context, appName string) ([]*experiment.Experiment, error) {
	return s.primary.GetExperimentsByApp(ctx, appName)
}
