package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/push"
)

type fakeQueueStore struct {
	entries      []domain.QueueEntry
	lastNotified map[uuid.UUID]int
	decrements   int
	listErr      error
}

func (f *fakeQueueStore) ListActive(ctx context.Context) ([]domain.QueueEntry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entries, nil
}

func (f *fakeQueueStore) SetLastNotifiedPosition(ctx context.Context, id uuid.UUID, pos int) error {
	if f.lastNotified == nil {
		f.lastNotified = make(map[uuid.UUID]int)
	}
	f.lastNotified[id] = pos
	return nil
}

func (f *fakeQueueStore) DecrementWaitTimes(ctx context.Context) (int64, error) {
	f.decrements++
	return int64(len(f.entries)), nil
}

type fakeApptStore struct {
	appts  []domain.Appointment
	marked map[uuid.UUID]bool
}

func (f *fakeApptStore) DueReminders(ctx context.Context, from, to time.Time) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for _, a := range f.appts {
		if a.ReminderSent || f.marked[a.ID] {
			continue
		}
		if a.Status != domain.AppointmentConfirmed {
			continue
		}
		if a.StartTime.Before(from) || !a.StartTime.Before(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeApptStore) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	if f.marked == nil {
		f.marked = make(map[uuid.UUID]bool)
	}
	f.marked[id] = true
	return nil
}

type fakeSubStore struct {
	subs    map[uuid.UUID][]domain.PushSubscription
	deleted []uuid.UUID
}

func (f *fakeSubStore) ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.PushSubscription, error) {
	return f.subs[clientID], nil
}

func (f *fakeSubStore) Delete(ctx context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type sent struct {
	endpoint string
	payload  push.Payload
}

type fakeSender struct {
	sent     []sent
	failWith map[string]error // keyed by endpoint
}

func (f *fakeSender) Send(sub domain.PushSubscription, p push.Payload) error {
	if err := f.failWith[sub.Endpoint]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{endpoint: sub.Endpoint, payload: p})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func subscribed(clients ...uuid.UUID) *fakeSubStore {
	f := &fakeSubStore{subs: make(map[uuid.UUID][]domain.PushSubscription)}
	for _, c := range clients {
		f.subs[c] = []domain.PushSubscription{{
			ID:       uuid.New(),
			Endpoint: "https://push.example/" + c.String(),
			ClientID: &c,
		}}
	}
	return f
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestScanQueueThresholdMessages(t *testing.T) {
	tests := []struct {
		name     string
		position int
		wantBody string
		wantPush bool
	}{
		{"position three", 3, msgPosition3, true},
		{"position two", 2, msgPosition2, true},
		{"position one", 1, msgPosition1, true},
		{"position four is silent", 4, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientID := uuid.New()
			qs := &fakeQueueStore{entries: []domain.QueueEntry{{
				ID:       uuid.New(),
				ClientID: clientID,
				Position: tt.position,
				Status:   domain.QueueWaiting,
			}}}
			sender := &fakeSender{}

			s := New(qs, &fakeApptStore{}, subscribed(clientID), sender, testLogger(), Config{})
			s.RunCycle(context.Background())

			if !tt.wantPush {
				if len(sender.sent) != 0 {
					t.Fatalf("sent %d pushes, want 0", len(sender.sent))
				}
				if len(qs.lastNotified) != 0 {
					t.Error("marker set without a push")
				}
				return
			}

			if len(sender.sent) != 1 {
				t.Fatalf("sent %d pushes, want 1", len(sender.sent))
			}
			if sender.sent[0].payload.Body != tt.wantBody {
				t.Errorf("body = %q, want %q", sender.sent[0].payload.Body, tt.wantBody)
			}
			if sender.sent[0].payload.Title != pushTitle {
				t.Errorf("title = %q, want %q", sender.sent[0].payload.Title, pushTitle)
			}
			if qs.lastNotified[qs.entries[0].ID] != tt.position {
				t.Errorf("marker = %d, want %d", qs.lastNotified[qs.entries[0].ID], tt.position)
			}
		})
	}
}

func TestScanQueueAtMostOncePerThreshold(t *testing.T) {
	clientID := uuid.New()
	entryID := uuid.New()
	three := 3

	qs := &fakeQueueStore{entries: []domain.QueueEntry{{
		ID:              entryID,
		ClientID:        clientID,
		Position:        3,
		Status:          domain.QueueWaiting,
		LastNotifiedPos: &three,
	}}}
	sender := &fakeSender{}

	s := New(qs, &fakeApptStore{}, subscribed(clientID), sender, testLogger(), Config{})

	// Already notified at this position: repeated cycles stay silent.
	s.RunCycle(context.Background())
	s.RunCycle(context.Background())
	if len(sender.sent) != 0 {
		t.Fatalf("sent %d pushes at unchanged position, want 0", len(sender.sent))
	}

	// Advancing to position 2 fires exactly the next threshold.
	qs.entries[0].Position = 2
	s.RunCycle(context.Background())
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d pushes after advance, want 1", len(sender.sent))
	}
	if sender.sent[0].payload.Body != msgPosition2 {
		t.Errorf("body = %q, want %q", sender.sent[0].payload.Body, msgPosition2)
	}
	if qs.lastNotified[entryID] != 2 {
		t.Errorf("marker = %d, want 2", qs.lastNotified[entryID])
	}
}

func TestScanQueueNoSubscriptionLeavesMarkerUnset(t *testing.T) {
	clientID := uuid.New()
	qs := &fakeQueueStore{entries: []domain.QueueEntry{{
		ID:       uuid.New(),
		ClientID: clientID,
		Position: 2,
		Status:   domain.QueueWaiting,
	}}}
	sender := &fakeSender{}
	subs := &fakeSubStore{} // nobody subscribed

	s := New(qs, &fakeApptStore{}, subs, sender, testLogger(), Config{})
	s.RunCycle(context.Background())

	if len(qs.lastNotified) != 0 {
		t.Error("marker set although no subscription was reached")
	}

	// The client subscribes; the next cycle delivers the pending threshold.
	c := clientID
	subs.subs = map[uuid.UUID][]domain.PushSubscription{
		clientID: {{ID: uuid.New(), Endpoint: "https://push.example/late", ClientID: &c}},
	}
	s.RunCycle(context.Background())

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d pushes after late subscribe, want 1", len(sender.sent))
	}
}

func TestScanQueueSkipsInProgress(t *testing.T) {
	clientID := uuid.New()
	qs := &fakeQueueStore{entries: []domain.QueueEntry{{
		ID:       uuid.New(),
		ClientID: clientID,
		Position: 1,
		Status:   domain.QueueInProgress,
	}}}
	sender := &fakeSender{}

	s := New(qs, &fakeApptStore{}, subscribed(clientID), sender, testLogger(), Config{})
	s.RunCycle(context.Background())

	if len(sender.sent) != 0 {
		t.Errorf("sent %d pushes for in_progress entry, want 0", len(sender.sent))
	}
}

func TestScanRemindersWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clientIn := uuid.New()
	clientEdge := uuid.New()
	clientOut := uuid.New()

	appts := &fakeApptStore{appts: []domain.Appointment{
		{
			ID:        uuid.New(),
			ClientID:  clientIn,
			StartTime: now.Add(20 * time.Minute),
			Status:    domain.AppointmentConfirmed,
		},
		{
			// Lower bound is inclusive.
			ID:        uuid.New(),
			ClientID:  clientEdge,
			StartTime: now,
			Status:    domain.AppointmentConfirmed,
		},
		{
			// Upper bound is exclusive.
			ID:        uuid.New(),
			ClientID:  clientOut,
			StartTime: now.Add(30 * time.Minute),
			Status:    domain.AppointmentConfirmed,
		},
	}}
	sender := &fakeSender{}

	s := New(&fakeQueueStore{}, appts, subscribed(clientIn, clientEdge, clientOut), sender, testLogger(), Config{})
	s.now = fixedClock(now)

	s.RunCycle(context.Background())

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d reminders, want 2", len(sender.sent))
	}
	for _, m := range sender.sent {
		if m.payload.Body != msgReminder {
			t.Errorf("body = %q, want %q", m.payload.Body, msgReminder)
		}
	}

	if !appts.marked[appts.appts[0].ID] || !appts.marked[appts.appts[1].ID] {
		t.Error("in-window appointments not marked")
	}
	if appts.marked[appts.appts[2].ID] {
		t.Error("out-of-window appointment marked")
	}

	// Second cycle must not resend.
	s.RunCycle(context.Background())
	if len(sender.sent) != 2 {
		t.Errorf("sent %d reminders after second cycle, want 2", len(sender.sent))
	}
}

func TestScanRemindersNoSubscriptionKeepsUnmarked(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clientID := uuid.New()

	appts := &fakeApptStore{appts: []domain.Appointment{{
		ID:        uuid.New(),
		ClientID:  clientID,
		StartTime: now.Add(10 * time.Minute),
		Status:    domain.AppointmentConfirmed,
	}}}
	sender := &fakeSender{}
	subs := &fakeSubStore{}

	s := New(&fakeQueueStore{}, appts, subs, sender, testLogger(), Config{})
	s.now = fixedClock(now)

	s.RunCycle(context.Background())

	if appts.marked[appts.appts[0].ID] {
		t.Error("appointment marked although nobody was reached")
	}

	// Late subscribe inside the window still gets the reminder.
	c := clientID
	subs.subs = map[uuid.UUID][]domain.PushSubscription{
		clientID: {{ID: uuid.New(), Endpoint: "https://push.example/late", ClientID: &c}},
	}
	s.RunCycle(context.Background())

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d reminders, want 1", len(sender.sent))
	}
	if !appts.marked[appts.appts[0].ID] {
		t.Error("appointment not marked after delivery")
	}
}

func TestDeliverRemovesGoneSubscription(t *testing.T) {
	clientID := uuid.New()
	goneID := uuid.New()
	liveID := uuid.New()

	c := clientID
	subs := &fakeSubStore{subs: map[uuid.UUID][]domain.PushSubscription{
		clientID: {
			{ID: goneID, Endpoint: "https://push.example/gone", ClientID: &c},
			{ID: liveID, Endpoint: "https://push.example/live", ClientID: &c},
		},
	}}
	sender := &fakeSender{failWith: map[string]error{
		"https://push.example/gone": push.ErrSubscriptionGone,
	}}

	qs := &fakeQueueStore{entries: []domain.QueueEntry{{
		ID:       uuid.New(),
		ClientID: clientID,
		Position: 1,
		Status:   domain.QueueNotified,
	}}}

	s := New(qs, &fakeApptStore{}, subs, sender, testLogger(), Config{})
	s.RunCycle(context.Background())

	if len(subs.deleted) != 1 || subs.deleted[0] != goneID {
		t.Errorf("deleted = %v, want [%s]", subs.deleted, goneID)
	}
	if len(sender.sent) != 1 || sender.sent[0].endpoint != "https://push.example/live" {
		t.Errorf("sent = %+v, want single delivery to live endpoint", sender.sent)
	}
	// The live endpoint was reached, so the marker advances.
	if qs.lastNotified[qs.entries[0].ID] != 1 {
		t.Errorf("marker = %d, want 1", qs.lastNotified[qs.entries[0].ID])
	}
}

func TestDeliverTransientFailureKeepsSubscription(t *testing.T) {
	clientID := uuid.New()
	c := clientID
	subs := &fakeSubStore{subs: map[uuid.UUID][]domain.PushSubscription{
		clientID: {{ID: uuid.New(), Endpoint: "https://push.example/flaky", ClientID: &c}},
	}}
	sender := &fakeSender{failWith: map[string]error{
		"https://push.example/flaky": errors.New("503 service unavailable"),
	}}

	qs := &fakeQueueStore{entries: []domain.QueueEntry{{
		ID:       uuid.New(),
		ClientID: clientID,
		Position: 1,
		Status:   domain.QueueWaiting,
	}}}

	s := New(qs, &fakeApptStore{}, subs, sender, testLogger(), Config{})
	s.RunCycle(context.Background())

	if len(subs.deleted) != 0 {
		t.Errorf("deleted = %v, want none for transient failure", subs.deleted)
	}
	// A failed attempt still advances the marker: the notification is
	// logged and lost, never re-sent.
	if qs.lastNotified[qs.entries[0].ID] != 1 {
		t.Errorf("marker = %d, want 1 after attempted dispatch", qs.lastNotified[qs.entries[0].ID])
	}
}

func TestScanRemindersFullyFailedAttemptStillMarks(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clientID := uuid.New()
	c := clientID

	appts := &fakeApptStore{appts: []domain.Appointment{{
		ID:        uuid.New(),
		ClientID:  clientID,
		StartTime: now.Add(10 * time.Minute),
		Status:    domain.AppointmentConfirmed,
	}}}
	subs := &fakeSubStore{subs: map[uuid.UUID][]domain.PushSubscription{
		clientID: {{ID: uuid.New(), Endpoint: "https://push.example/down", ClientID: &c}},
	}}
	sender := &fakeSender{failWith: map[string]error{
		"https://push.example/down": errors.New("502 bad gateway"),
	}}

	s := New(&fakeQueueStore{}, appts, subs, sender, testLogger(), Config{})
	s.now = fixedClock(now)

	s.RunCycle(context.Background())

	if !appts.marked[appts.appts[0].ID] {
		t.Error("appointment unmarked after a failed dispatch attempt")
	}

	// No retry next cycle.
	s.RunCycle(context.Background())
	if len(sender.sent) != 0 {
		t.Errorf("sent %d reminders, want 0 (all attempts failed)", len(sender.sent))
	}
}

func TestRunCycleSurvivesScanErrors(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clientID := uuid.New()

	// Queue scan fails; reminders and the wait tick must still run.
	qs := &fakeQueueStore{listErr: errors.New("connection reset")}
	appts := &fakeApptStore{appts: []domain.Appointment{{
		ID:        uuid.New(),
		ClientID:  clientID,
		StartTime: now.Add(15 * time.Minute),
		Status:    domain.AppointmentConfirmed,
	}}}
	sender := &fakeSender{}

	s := New(qs, appts, subscribed(clientID), sender, testLogger(), Config{})
	s.now = fixedClock(now)

	s.RunCycle(context.Background())

	if len(sender.sent) != 1 {
		t.Errorf("sent %d reminders despite queue scan failure, want 1", len(sender.sent))
	}
	if qs.decrements != 1 {
		t.Errorf("decrements = %d, want 1", qs.decrements)
	}
}

func TestRunCycleDecrementsWaitTimes(t *testing.T) {
	qs := &fakeQueueStore{}
	s := New(qs, &fakeApptStore{}, &fakeSubStore{}, &fakeSender{}, testLogger(), Config{})

	s.RunCycle(context.Background())
	s.RunCycle(context.Background())

	if qs.decrements != 2 {
		t.Errorf("decrements = %d, want 2", qs.decrements)
	}
}
