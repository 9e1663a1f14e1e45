// Package jobmgr runs named, cancellable background jobs: fire-and-
// forget goroutines and delayed one-shots. Jobs remove themselves on
// completion; Stop cancels by name. Intentionally minimal — no retry,
// no queueing, no persistence.
package jobmgr

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type job struct {
	name   string
	cancel context.CancelFunc
}

// Manager tracks running jobs by name. Safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*job
}

func New() *Manager {
	return &Manager{jobs: make(map[string]*job)}
}

// Start runs fn in a goroutine under a cancellable context. Starting a
// name that is already running is an error.
func (m *Manager) Start(name string, fn func(ctx context.Context)) error {
	ctx, cancel, err := m.add(name)
	if err != nil {
		return err
	}

	go func() {
		defer cancel()
		defer m.remove(name)
		fn(ctx)
	}()
	return nil
}

// Schedule runs fn once after delay unless the job is stopped first.
// Scheduling an existing name replaces the pending job.
func (m *Manager) Schedule(name string, delay time.Duration, fn func()) {
	_ = m.Stop(name)

	ctx, cancel, err := m.add(name)
	if err != nil {
		return
	}

	go func() {
		defer cancel()
		defer m.remove(name)

		select {
		case <-ctx.Done():
		case <-time.After(delay):
			fn()
		}
	}()
}

// Stop cancels a running or pending job by name.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("job %q not running", name)
	}
	j.cancel()
	delete(m.jobs, name)
	return nil
}

// StopAll cancels everything. Used at shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, j := range m.jobs {
		j.cancel()
		delete(m.jobs, name)
	}
}

// List returns active job names in sorted order.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) add(name string) (context.Context, context.CancelFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[name]; exists {
		return nil, nil, fmt.Errorf("job %q already running", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.jobs[name] = &job{name: name, cancel: cancel}
	return ctx, cancel, nil
}

func (m *Manager) remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, name)
}
