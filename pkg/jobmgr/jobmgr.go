// Package jobmgr runs named background jobs with cancellation and lifecycle
// reporting.
//
//	jm := jobmgr.NewManager(func(ev jobmgr.Event) {
//	    log.Info().Str("job", ev.Job).Str("state", ev.State).Msg("job")
//	})
//	_ = jm.StartAsync(ctx, "cooldown-sweep", func(ctx context.Context) error {
//	    return tracker.Run(ctx, time.Minute)
//	})
//	...
//	jm.StopAll()
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Job lifecycle states reported through Event.
const (
	StateRunning = "running"
	StateDone    = "done"
	StateError   = "error"
)

var ErrNotRunning = errors.New("job not running")

// Event is one lifecycle transition of a job.
type Event struct {
	Job   string
	State string
	Err   error
}

// String renders the event as "state:job[:error]".
func (e Event) String() string {
	if e.Err != nil {
		return e.State + ":" + e.Job + ":" + e.Err.Error()
	}
	return e.State + ":" + e.Job
}

// StatusReporter receives lifecycle events. It may be nil.
type StatusReporter func(Event)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager starts, stops and tracks jobs. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*job
	reporter StatusReporter
	wg       sync.WaitGroup
}

func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*job),
		reporter: reporter,
	}
}

// StartAsync runs runner in its own goroutine under a context derived from
// parent. Names are unique among running jobs. A job that returns
// context.Canceled after Stop is reported as done.
func (m *Manager) StartAsync(parent context.Context, name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("job '%s' is already running", name)
	}
	ctx, cancel := context.WithCancel(parent)
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = j
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer close(j.done)
		defer cancel()

		m.report(Event{Job: name, State: StateRunning})
		err := runner(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.report(Event{Job: name, State: StateError, Err: err})
		} else {
			m.report(Event{Job: name, State: StateDone})
		}

		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()
	return nil
}

// Stop cancels a running job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	j.cancel()
	<-j.done
	return nil
}

// StopAll cancels every job and waits for all of them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for name, j := range m.jobs {
		j.cancel()
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// List returns the running job names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Status returns a human-readable summary of running jobs.
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

func (m *Manager) report(ev Event) {
	if m.reporter != nil {
		m.reporter(ev)
	}
}
