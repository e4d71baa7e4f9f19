// Package store keeps the most recent chat events per category in memory.
package store

import (
	"sync"

	"github.com/you/poe-chatwatch/internal/core"
	"github.com/you/poe-chatwatch/internal/metrics"
)

// Listener is called with every stored event, after the store lock has been
// released, on the goroutine that called Add.
type Listener func(core.Category, core.ChatEvent)

// Store is a fixed set of bounded FIFO queues, one per category.
type Store struct {
	maxLogs  int
	metrics  *metrics.Metrics
	listener Listener

	mu     sync.RWMutex
	queues [core.NumCategories][]core.ChatEvent

	changed chan struct{}
}

type Option func(*Store)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithListener(fn Listener) Option {
	return func(s *Store) { s.listener = fn }
}

// New returns an empty store. maxLogs <= 0 disables eviction.
func New(maxLogs int, opts ...Option) *Store {
	if maxLogs < 0 {
		maxLogs = 0
	}
	s := &Store{
		maxLogs: maxLogs,
		changed: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSeeded builds a store and appends each seeded list through the normal
// bounded-append path, so only the newest maxLogs entries of each survive.
// Seeded events are placed under the category they are keyed by. The
// listener is not invoked for seeded events.
func NewSeeded(maxLogs int, seed map[core.Category][]core.ChatEvent, opts ...Option) *Store {
	s := New(maxLogs, opts...)
	s.mu.Lock()
	for _, c := range core.Categories() {
		for _, ev := range seed[c] {
			s.appendLocked(c, ev)
		}
	}
	s.mu.Unlock()
	return s
}

// MaxLogs reports the per-category capacity (0 means unbounded).
func (s *Store) MaxLogs() int { return s.maxLogs }

// Add classifies ev by its marker and appends it to that category's queue,
// evicting the oldest entries beyond capacity. Events with an unknown marker
// are discarded and ok is false.
func (s *Store) Add(ev core.ChatEvent) (core.Category, bool) {
	c, ok := core.Classify(ev.Marker)
	if !ok {
		s.metrics.IncDropped("unclassified")
		return 0, false
	}

	s.mu.Lock()
	evicted := s.appendLocked(c, ev)
	n := len(s.queues[c])
	s.mu.Unlock()

	s.metrics.IncStored(c.String())
	if evicted > 0 {
		s.metrics.AddEvicted(c.String(), evicted)
	}
	s.metrics.SetQueueLen(c.String(), n)

	select {
	case s.changed <- struct{}{}:
	default:
	}
	if s.listener != nil {
		s.listener(c, ev)
	}
	return c, true
}

func (s *Store) appendLocked(c core.Category, ev core.ChatEvent) int {
	q := append(s.queues[c], ev)
	evicted := 0
	if s.maxLogs > 0 && len(q) > s.maxLogs {
		evicted = len(q) - s.maxLogs
		copy(q, q[evicted:])
		clear(q[s.maxLogs:])
		q = q[:s.maxLogs]
	}
	s.queues[c] = q
	return evicted
}

// Snapshot returns a copy of the category's queue, oldest first.
func (s *Store) Snapshot(c core.Category) []core.ChatEvent {
	if !c.Valid() {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ChatEvent, len(s.queues[c]))
	copy(out, s.queues[c])
	return out
}

// Len returns the number of events held for c.
func (s *Store) Len(c core.Category) int {
	if !c.Valid() {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queues[c])
}

// Counts returns the queue length of every category keyed by name.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, core.NumCategories)
	for _, c := range core.Categories() {
		out[c.String()] = len(s.queues[c])
	}
	return out
}

// Changed delivers a coalesced notification after one or more Adds. A reader
// that drains it and then takes Snapshots sees at least those additions.
func (s *Store) Changed() <-chan struct{} { return s.changed }
