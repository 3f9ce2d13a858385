package experiments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cohorta/cohorta/pkg/experiment"
	"github.com/cohorta/cohorta/pkg/eventlog"
	"github.com/cohorta/cohorta/pkg/store"
)

// fakeStore is an in-memory ExperimentStore with settable error hooks, so
// tests can fail any orchestration step and watch the compensation.
type fakeStore struct {
	mu     sync.Mutex
	mint   int
	rows   map[string]experiment.Experiment
	labels map[string]string // app\x00label -> id
	audit  map[string][]experiment.AuditInfo

	createErr  error
	indicesErr error
	getErr     error
	updateErr  error
	deleteErr  error
	logErr     error

	createCalls  int
	indicesCalls int
	updateCalls  int
	deleteCalls  int
	logCalls     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:   make(map[string]experiment.Experiment),
		labels: make(map[string]string),
		audit:  make(map[string][]experiment.AuditInfo),
	}
}

func fakeLabelKey(app, label string) string { return app + "\x00" + label }

func (f *fakeStore) CreateExperiment(_ context.Context, n *experiment.NewExperiment, at time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	key := fakeLabelKey(n.ApplicationName, n.Label)
	if id, ok := f.labels[key]; ok {
		if row, live := f.rows[id]; live && row.State != experiment.StateDeleted {
			return "", fmt.Errorf("%w: label in use", store.ErrConflict)
		}
	}
	if n.ID == "" {
		f.mint++
		n.ID = fmt.Sprintf("exp-%d", f.mint)
	}
	f.rows[n.ID] = *n.Experiment(at)
	f.labels[key] = n.ID
	return n.ID, nil
}

func (f *fakeStore) CreateIndices(_ context.Context, _ *experiment.NewExperiment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indicesCalls++
	return f.indicesErr
}

func (f *fakeStore) GetExperiment(_ context.Context, id string) (*experiment.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	row, ok := f.rows[id]
	if !ok || row.State == experiment.StateDeleted {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	out := row
	return &out, nil
}

func (f *fakeStore) GetExperimentByLabel(_ context.Context, app, label string) (*experiment.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.labels[fakeLabelKey(app, label)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrNotFound, app, label)
	}
	row, ok := f.rows[id]
	if !ok || row.State == experiment.StateDeleted {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrNotFound, app, label)
	}
	out := row
	return &out, nil
}

func (f *fakeStore) GetExperiments(_ context.Context) ([]*experiment.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*experiment.Experiment
	for _, row := range f.rows {
		if row.State == experiment.StateDeleted {
			continue
		}
		e := row
		out = append(out, &e)
	}
	return out, nil
}

func (f *fakeStore) GetExperimentsByApp(_ context.Context, app string) ([]*experiment.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*experiment.Experiment
	for _, row := range f.rows {
		if row.ApplicationName == app && row.State != experiment.StateDeleted {
			e := row
			out = append(out, &e)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateExperiment(_ context.Context, e *experiment.Experiment) (*experiment.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	old, ok := f.rows[e.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, e.ID)
	}
	if old.ApplicationName != e.ApplicationName || old.Label != e.Label {
		delete(f.labels, fakeLabelKey(old.ApplicationName, old.Label))
		f.labels[fakeLabelKey(e.ApplicationName, e.Label)] = e.ID
	}
	if e.State == experiment.StateDeleted {
		delete(f.labels, fakeLabelKey(e.ApplicationName, e.Label))
	} else if old.State == experiment.StateDeleted {
		f.labels[fakeLabelKey(e.ApplicationName, e.Label)] = e.ID
	}
	f.rows[e.ID] = *e
	out := *e
	return &out, nil
}

func (f *fakeStore) DeleteExperiment(_ context.Context, n *experiment.NewExperiment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	row, ok := f.rows[n.ID]
	if !ok {
		return nil
	}
	row.State = experiment.StateDeleted
	f.rows[n.ID] = row
	delete(f.labels, fakeLabelKey(row.ApplicationName, row.Label))
	return nil
}

func (f *fakeStore) LogExperimentChanges(_ context.Context, id string, changes []experiment.AuditInfo, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logCalls++
	if f.logErr != nil {
		return f.logErr
	}
	f.audit[id] = append(f.audit[id], changes...)
	return nil
}

func (f *fakeStore) GetApplicationsList(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]struct{}{}
	var out []string
	for _, row := range f.rows {
		if row.State == experiment.StateDeleted {
			continue
		}
		if _, ok := seen[row.ApplicationName]; !ok {
			seen[row.ApplicationName] = struct{}{}
			out = append(out, row.ApplicationName)
		}
	}
	return out, nil
}

// visible reports whether the store holds a non-deleted row for id.
func (f *fakeStore) visible(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	return ok && row.State != experiment.StateDeleted
}

func (f *fakeStore) row(id string) (experiment.Experiment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	return row, ok
}

var _ store.ExperimentStore = (*fakeStore)(nil)

// fakePriorities is an in-memory PriorityList with error hooks.
type fakePriorities struct {
	mu        sync.Mutex
	byApp     map[string][]string
	appendErr error
	removeErr error
}

func newFakePriorities() *fakePriorities {
	return &fakePriorities{byApp: make(map[string][]string)}
}

func (p *fakePriorities) Append(_ context.Context, app, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.appendErr != nil {
		return p.appendErr
	}
	for _, existing := range p.byApp[app] {
		if existing == id {
			return nil
		}
	}
	p.byApp[app] = append(p.byApp[app], id)
	return nil
}

func (p *fakePriorities) Remove(_ context.Context, app, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removeErr != nil {
		return p.removeErr
	}
	ids := p.byApp[app]
	for i, existing := range ids {
		if existing == id {
			p.byApp[app] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return nil
}

func (p *fakePriorities) ids(app string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.byApp[app]...)
}

func (p *fakePriorities) contains(app, id string) bool {
	for _, existing := range p.ids(app) {
		if existing == id {
			return true
		}
	}
	return false
}

// fakePages records erase calls.
type fakePages struct {
	mu     sync.Mutex
	erased []string // "app/id"
}

func (p *fakePages) ErasePageData(_ context.Context, app, id string, _ experiment.UserInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.erased = append(p.erased, app+"/"+id)
	return nil
}

// fakeBuckets serves a canned bucket list per experiment.
type fakeBuckets struct {
	mu    sync.Mutex
	lists map[string]experiment.BucketList
}

func newFakeBuckets() *fakeBuckets {
	return &fakeBuckets{lists: make(map[string]experiment.BucketList)}
}

func (b *fakeBuckets) set(id string, list experiment.BucketList) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists[id] = list
}

func (b *fakeBuckets) GetBuckets(_ context.Context, id string) (experiment.BucketList, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list, ok := b.lists[id]
	if !ok {
		return experiment.BucketList{}, fmt.Errorf("no buckets for %s", id)
	}
	return list, nil
}

// captureLog collects posted events.
type captureLog struct {
	mu     sync.Mutex
	events []eventlog.Event
}

func (l *captureLog) Post(ev eventlog.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *captureLog) all() []eventlog.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]eventlog.Event(nil), l.events...)
}

func (l *captureLog) ofType(eventType string) []eventlog.Event {
	var out []eventlog.Event
	for _, ev := range l.all() {
		if ev.EventType() == eventType {
			out = append(out, ev)
		}
	}
	return out
}
