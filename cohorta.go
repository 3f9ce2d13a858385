// Package cohorta assembles the experiment lifecycle core from
// configuration: the BoltDB primary store, the relational mirror, the
// bucket store, the in-memory priority list and page binder, the rule
// compiler and cache, and the domain-event log.
package cohorta

import (
	"fmt"
	"log/slog"

	"github.com/cohorta/cohorta/pkg/buckets"
	"github.com/cohorta/cohorta/pkg/config"
	"github.com/cohorta/cohorta/pkg/eventlog"
	"github.com/cohorta/cohorta/pkg/experiments"
	"github.com/cohorta/cohorta/pkg/pages"
	"github.com/cohorta/cohorta/pkg/priority"
	"github.com/cohorta/cohorta/pkg/store/boltstore"
	"github.com/cohorta/cohorta/pkg/store/sqlstore"
)

// Open wires a Service from cfg. The returned close function releases
// every opened resource; call it when the service is retired.
func Open(cfg *config.Config, logger *slog.Logger) (*experiments.Service, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func() error
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	fail := func(err error) (*experiments.Service, func() error, error) {
		closeAll()
		return nil, nil, err
	}

	primary, err := boltstore.Open(cfg.Primary.Path)
	if err != nil {
		return fail(fmt.Errorf("open primary store: %w", err))
	}
	closers = append(closers, primary.Close)

	secondary, err := sqlstore.Open(cfg.Mirror.DSN)
	if err != nil {
		return fail(fmt.Errorf("open mirror store: %w", err))
	}
	closers = append(closers, secondary.Close)

	bucketStore, err := buckets.Open(cfg.Buckets.Path)
	if err != nil {
		return fail(fmt.Errorf("open bucket store: %w", err))
	}
	closers = append(closers, bucketStore.Close)

	var events eventlog.Log
	if cfg.EventLog.Path != "" {
		sink, err := eventlog.OpenFileSink(cfg.EventLog.Path)
		if err != nil {
			return fail(fmt.Errorf("open event log: %w", err))
		}
		closers = append(closers, sink.Close)
		async := eventlog.NewAsyncLog(eventlog.AsyncConfig{
			Sink:   sink,
			Buffer: cfg.EventLog.Buffer,
			Logger: logger,
		})
		// drain before the sink closes
		closers = append(closers, async.Close)
		events = async
	} else {
		async := eventlog.NewAsyncLog(eventlog.AsyncConfig{
			Sink:   eventlog.SlogSink{Logger: logger},
			Buffer: cfg.EventLog.Buffer,
			Logger: logger,
		})
		closers = append(closers, async.Close)
		events = async
	}

	svc, err := experiments.New(experiments.Config{
		Primary:    primary,
		Secondary:  secondary,
		Priorities: priority.NewList(),
		Pages:      pages.NewBinder(),
		Buckets:    bucketStore,
		Events:     events,
		Logger:     logger,
	})
	if err != nil {
		return fail(err)
	}

	return svc, closeAll, nil
}
