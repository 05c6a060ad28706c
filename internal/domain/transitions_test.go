package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from QueueStatus
		to   QueueStatus
		want bool
	}{
		{"waiting to notified", QueueWaiting, QueueNotified, true},
		{"waiting to in_progress", QueueWaiting, QueueInProgress, true},
		{"waiting to cancelled", QueueWaiting, QueueCancelled, true},
		{"waiting to done", QueueWaiting, QueueDone, false},
		{"notified to in_progress", QueueNotified, QueueInProgress, true},
		{"notified to cancelled", QueueNotified, QueueCancelled, true},
		{"notified to waiting", QueueNotified, QueueWaiting, false},
		{"notified to done", QueueNotified, QueueDone, false},
		{"in_progress to done", QueueInProgress, QueueDone, true},
		{"in_progress to cancelled", QueueInProgress, QueueCancelled, false},
		{"in_progress to waiting", QueueInProgress, QueueWaiting, false},
		{"done is terminal", QueueDone, QueueWaiting, false},
		{"cancelled is terminal", QueueCancelled, QueueNotified, false},
		{"same status is a no-op", QueueNotified, QueueNotified, true},
		{"same terminal status is a no-op", QueueDone, QueueDone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStampTransitionFirstWins(t *testing.T) {
	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(5 * time.Minute)

	var e QueueEntry

	StampTransition(&e, QueueNotified, first)
	if e.NotifiedAt == nil || !e.NotifiedAt.Equal(first) {
		t.Fatalf("NotifiedAt = %v, want %v", e.NotifiedAt, first)
	}

	// A repeated transition must not move the stamp.
	StampTransition(&e, QueueNotified, second)
	if !e.NotifiedAt.Equal(first) {
		t.Errorf("NotifiedAt overwritten to %v, want %v", e.NotifiedAt, first)
	}

	StampTransition(&e, QueueInProgress, second)
	if e.StartedAt == nil || !e.StartedAt.Equal(second) {
		t.Fatalf("StartedAt = %v, want %v", e.StartedAt, second)
	}
	if e.CompletedAt != nil {
		t.Errorf("CompletedAt set prematurely: %v", e.CompletedAt)
	}

	third := second.Add(20 * time.Minute)
	StampTransition(&e, QueueDone, third)
	if e.CompletedAt == nil || !e.CompletedAt.Equal(third) {
		t.Fatalf("CompletedAt = %v, want %v", e.CompletedAt, third)
	}
}

func TestStampTransitionCancelled(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	var e QueueEntry
	StampTransition(&e, QueueCancelled, now)
	if e.CompletedAt == nil || !e.CompletedAt.Equal(now) {
		t.Fatalf("CompletedAt = %v, want %v", e.CompletedAt, now)
	}
	if e.NotifiedAt != nil || e.StartedAt != nil {
		t.Errorf("unrelated stamps set: notified=%v started=%v", e.NotifiedAt, e.StartedAt)
	}
}

func TestQueueStatusActive(t *testing.T) {
	active := []QueueStatus{QueueWaiting, QueueNotified, QueueInProgress}
	for _, s := range active {
		if !s.Active() {
			t.Errorf("%s.Active() = false, want true", s)
		}
	}

	inactive := []QueueStatus{QueueDone, QueueCancelled}
	for _, s := range inactive {
		if s.Active() {
			t.Errorf("%s.Active() = true, want false", s)
		}
	}
}

func TestTimeRemainingFromMinutes(t *testing.T) {
	tests := []struct {
		name string
		min  int
		want TimeRemaining
	}{
		{"zero", 0, TimeRemaining{}},
		{"negative floors to zero", -10, TimeRemaining{}},
		{"minutes only", 45, TimeRemaining{Minutes: 45}},
		{"hours and minutes", 90, TimeRemaining{Hours: 1, Minutes: 30}},
		{"days", 24*60 + 61, TimeRemaining{Days: 1, Hours: 1, Minutes: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeRemainingFromMinutes(tt.min); got != tt.want {
				t.Errorf("TimeRemainingFromMinutes(%d) = %+v, want %+v", tt.min, got, tt.want)
			}
		})
	}
}

func TestTimeRemainingUntil(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	got := TimeRemainingUntil(now, now.Add(26*time.Hour+30*time.Minute))
	want := TimeRemaining{Days: 1, Hours: 2, Minutes: 30}
	if got != want {
		t.Errorf("TimeRemainingUntil = %+v, want %+v", got, want)
	}

	if got := TimeRemainingUntil(now, now.Add(-time.Hour)); got != (TimeRemaining{}) {
		t.Errorf("past target = %+v, want zero", got)
	}
}
