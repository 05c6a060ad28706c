package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

// scriptedSubscriber replays a fixed sequence of deltas to the handler and
// then returns, standing in for the pubsub channel closing.
type scriptedSubscriber struct {
	deltas []Delta
	table  string
}

func (s *scriptedSubscriber) Subscribe(
	ctx context.Context,
	table string,
	handler func(ctx context.Context, d Delta),
) error {
	s.table = table
	for _, d := range s.deltas {
		handler(ctx, d)
	}
	return nil
}

func TestWatcherRunSnapshotThenDeltas(t *testing.T) {
	snapshot := []row{
		{ID: uuid.New(), Name: "seed-a"},
		{ID: uuid.New(), Name: "seed-b"},
	}
	inserted := row{ID: uuid.New(), Name: "late"}

	sub := &scriptedSubscriber{deltas: []Delta{
		{Event: Insert, New: rawRow(t, inserted)},
		{Event: Delete, Old: rawRow(t, snapshot[1])},
	}}

	mirror := NewMirror(rowID)
	// Stale rows pre-dating Run must be discarded by the snapshot reset.
	mirror.Reset([]row{{ID: uuid.New(), Name: "stale"}})

	var notified int
	w := NewWatcher(sub, "rows", mirror,
		func(ctx context.Context) ([]row, error) { return snapshot, nil },
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.OnApply(func() { notified++ })

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v", err)
	}

	if sub.table != "rows" {
		t.Errorf("subscribed table = %q, want %q", sub.table, "rows")
	}
	// Reset plus two applied deltas.
	if notified != 3 {
		t.Errorf("notified %d times, want 3", notified)
	}

	list := w.Mirror().List()
	if len(list) != 2 {
		t.Fatalf("mirror len = %d, want 2", len(list))
	}
	if list[0].Name != "seed-a" || list[1].Name != "late" {
		t.Errorf("mirror = [%q, %q], want [seed-a, late]", list[0].Name, list[1].Name)
	}
}

func TestWatcherRunMalformedDeltaDropped(t *testing.T) {
	kept := row{ID: uuid.New(), Name: "kept"}
	sub := &scriptedSubscriber{deltas: []Delta{
		{Event: Insert, New: []byte(`{bad`)},
		{Event: Insert, New: rawRow(t, kept)},
	}}

	var notified int
	w := NewWatcher(sub, "rows", NewMirror(rowID),
		func(ctx context.Context) ([]row, error) { return nil, nil },
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.OnApply(func() { notified++ })

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v", err)
	}

	if got := w.Mirror().Len(); got != 1 {
		t.Errorf("mirror len = %d, want 1", got)
	}
	// Reset and the one valid insert; the malformed delta must not notify.
	if notified != 2 {
		t.Errorf("notified %d times, want 2", notified)
	}
}

func TestWatcherRunSnapshotError(t *testing.T) {
	sub := &scriptedSubscriber{}
	w := NewWatcher(sub, "rows", NewMirror(rowID),
		func(ctx context.Context) ([]row, error) { return nil, context.DeadlineExceeded },
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := w.Run(context.Background()); err == nil {
		t.Fatal("Run = nil, want snapshot error")
	}
	if sub.table != "" {
		t.Error("subscribed despite snapshot failure")
	}
}
