// Package eventlog carries the domain events the experiment service emits.
//
// The log is best-effort by contract: posting never blocks the caller and a
// failure to record an event never fails or unwinds the operation that
// produced it.
package eventlog

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cohorta/cohorta/pkg/experiment"
)

// Event is a domain event.
type Event interface {
	// EventType is a stable name, e.g. "experiment_create".
	EventType() string
}

// ExperimentCreateEvent records a successful create.
type ExperimentCreateEvent struct {
	User       experiment.UserInfo       `json:"user"`
	Experiment *experiment.NewExperiment `json:"experiment"`
}

func (ExperimentCreateEvent) EventType() string { return "experiment_create" }

// ExperimentChangeEvent records one audited attribute change. An update
// emits one per entry of its change list.
type ExperimentChangeEvent struct {
	User          experiment.UserInfo    `json:"user"`
	Experiment    *experiment.Experiment `json:"experiment"`
	AttributeName string                 `json:"attribute"`
	OldValue      string                 `json:"old"`
	NewValue      string                 `json:"new"`
}

func (ExperimentChangeEvent) EventType() string { return "experiment_change" }

// Log is the posting side. Post is fire-and-forget.
type Log interface {
	Post(Event)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Post(Event) {}

// Sink consumes events drained from an AsyncLog.
type Sink interface {
	Write(Event) error
}

// AsyncLog decouples posting from sinking through a bounded channel. A full
// channel drops the event and counts it; sink errors are logged and
// dropped. Close drains what was already accepted.
type AsyncLog struct {
	ch      chan Event
	sink    Sink
	logger  *slog.Logger
	dropped atomic.Uint64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// AsyncConfig configures an AsyncLog.
type AsyncConfig struct {
	Sink Sink
	// Buffer is the channel capacity. Default 1024.
	Buffer int
	Logger *slog.Logger
}

// NewAsyncLog starts the drain goroutine.
func NewAsyncLog(cfg AsyncConfig) *AsyncLog {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	l := &AsyncLog{
		ch:     make(chan Event, cfg.Buffer),
		sink:   cfg.Sink,
		logger: cfg.Logger.With("component", "eventlog"),
	}
	l.wg.Add(1)
	go l.drain()
	return l
}

func (l *AsyncLog) drain() {
	defer l.wg.Done()
	for ev := range l.ch {
		if err := l.sink.Write(ev); err != nil {
			l.logger.Error("event sink write failed",
				"event_type", ev.EventType(), "error", err)
		}
	}
}

// Post enqueues the event, dropping it if the buffer is full.
func (l *AsyncLog) Post(ev Event) {
	select {
	case l.ch <- ev:
	default:
		l.dropped.Add(1)
		l.logger.Warn("event dropped, buffer full", "event_type", ev.EventType())
	}
}

// Dropped returns the number of events discarded on a full buffer.
func (l *AsyncLog) Dropped() uint64 {
	return l.dropped.Load()
}

// Close stops accepting events and waits for the drain to finish.
func (l *AsyncLog) Close() error {
	l.closeOnce.Do(func() {
		close(l.ch)
	})
	l.wg.Wait()
	return nil
}

// SlogSink writes events as structured log lines.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Write(ev Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch e := ev.(type) {
	case ExperimentCreateEvent:
		logger.Info("experiment created",
			"user", e.User.Username,
			"application", e.Experiment.ApplicationName,
			"label", e.Experiment.Label,
			"id", e.Experiment.ID)
	case ExperimentChangeEvent:
		logger.Info("experiment changed",
			"user", e.User.Username,
			"id", e.Experiment.ID,
			"attribute", e.AttributeName,
			"old", e.OldValue,
			"new", e.NewValue)
	default:
		logger.Info("experiment event", "event_type", ev.EventType())
	}
	return nil
}

// envelope is the persisted form used by file sinks.
type envelope struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Body Event     `json:"body"`
}
