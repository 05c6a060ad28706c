package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Mirror is a local, non-authoritative copy of one table's rows, keyed by
// row identity. Consumers read it; every write path goes through the data
// store, never the mirror.
type Mirror[T any] struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]T
	order []uuid.UUID
	id    func(T) uuid.UUID
}

func NewMirror[T any](id func(T) uuid.UUID) *Mirror[T] {
	return &Mirror[T]{
		byID: make(map[uuid.UUID]T),
		id:   id,
	}
}

// Reset rebuilds the mirror from a full snapshot, discarding prior state.
func (m *Mirror[T]) Reset(rows []T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byID = make(map[uuid.UUID]T, len(rows))
	m.order = m.order[:0]
	for _, row := range rows {
		id := m.id(row)
		if _, ok := m.byID[id]; ok {
			continue
		}
		m.byID[id] = row
		m.order = append(m.order, id)
	}
}

// Apply folds one delta into the mirror. INSERT is idempotent against
// replay, UPDATE of an absent row is a no-op, DELETE of an absent row is a
// no-op. Out-of-order deltas therefore never corrupt the mirror; the row
// simply stays absent.
func (m *Mirror[T]) Apply(d Delta) error {
	switch d.Event {
	case Insert, Update:
		if len(d.New) == 0 {
			return nil
		}
		var row T
		if err := json.Unmarshal(d.New, &row); err != nil {
			return err
		}
		m.apply(d.Event, row)
	case Delete:
		if len(d.Old) == 0 {
			return nil
		}
		var row T
		if err := json.Unmarshal(d.Old, &row); err != nil {
			return err
		}
		m.apply(d.Event, row)
	}
	return nil
}

func (m *Mirror[T]) apply(ev EventType, row T) {
	id := m.id(row)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev {
	case Insert:
		if _, ok := m.byID[id]; ok {
			return
		}
		m.byID[id] = row
		m.order = append(m.order, id)
	case Update:
		if _, ok := m.byID[id]; !ok {
			return
		}
		m.byID[id] = row
	case Delete:
		if _, ok := m.byID[id]; !ok {
			return
		}
		delete(m.byID, id)
		for i, oid := range m.order {
			if oid == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
}

func (m *Mirror[T]) Get(id uuid.UUID) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.byID[id]
	return row, ok
}

// List returns rows in insertion order.
func (m *Mirror[T]) List() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]T, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out
}

func (m *Mirror[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.byID)
}

// Lister produces the full snapshot a Watcher rebuilds its mirror from.
type Lister[T any] func(ctx context.Context) ([]T, error)

// Subscriber delivers one table's deltas in arrival order. *Bus implements
// it.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, handler func(ctx context.Context, d Delta)) error
}

// Watcher keeps a Mirror current: full snapshot on start, then deltas
// applied in arrival order until ctx is cancelled.
type Watcher[T any] struct {
	sub     Subscriber
	table   string
	mirror  *Mirror[T]
	list    Lister[T]
	logger  *slog.Logger
	onApply func()
}

func NewWatcher[T any](
	sub Subscriber,
	table string,
	mirror *Mirror[T],
	list Lister[T],
	logger *slog.Logger,
) *Watcher[T] {
	return &Watcher[T]{
		sub:    sub,
		table:  table,
		mirror: mirror,
		list:   list,
		logger: logger,
	}
}

func (w *Watcher[T]) Mirror() *Mirror[T] { return w.mirror }

// OnApply registers fn to run after every delta folded into the mirror.
// Must be set before Run.
func (w *Watcher[T]) OnApply(fn func()) { w.onApply = fn }

// Run blocks until ctx is cancelled. The snapshot is re-fetched on every
// call, so a re-subscribing consumer never trusts a stale mirror.
func (w *Watcher[T]) Run(ctx context.Context) error {
	rows, err := w.list(ctx)
	if err != nil {
		return err
	}

	w.mirror.Reset(rows)
	if w.onApply != nil {
		w.onApply()
	}

	return w.sub.Subscribe(ctx, w.table, func(ctx context.Context, d Delta) {
		if err := w.mirror.Apply(d); err != nil {
			w.logger.Warn("feed: dropping malformed delta",
				"table", w.table, "event", d.Event, "error", err)
			return
		}
		if w.onApply != nil {
			w.onApply()
		}
	})
}
