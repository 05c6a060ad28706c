// Package scheduler runs the periodic notification loop: queue-position
// pushes, appointment reminders, and the wait-estimate countdown. It is a
// standalone process; the API server does not send pushes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/push"
)

type QueueStore interface {
	ListActive(ctx context.Context) ([]domain.QueueEntry, error)
	SetLastNotifiedPosition(ctx context.Context, id uuid.UUID, pos int) error
	DecrementWaitTimes(ctx context.Context) (int64, error)
}

type AppointmentStore interface {
	DueReminders(ctx context.Context, from, to time.Time) ([]domain.Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
}

type SubscriptionStore interface {
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.PushSubscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

const (
	pushTitle = "FRESHCUT X"

	msgPosition3 = "Il reste 2 personnes avant vous. Veuillez vous approcher du salon 💈"
	msgPosition2 = "C'est bientôt votre tour 💈"
	msgPosition1 = "C'est votre tour ! Avancez vers la chaise 🔔"
	msgReminder  = "Votre rendez-vous commence dans 30 minutes ⏳"
)

type Config struct {
	// Interval between cycles. Wait estimates are decremented one minute
	// per cycle, so the loop assumes a one-minute cadence unless tuned
	// together with the estimate math.
	Interval time.Duration

	// ReminderWindow is how far ahead an appointment reminder fires.
	ReminderWindow time.Duration
}

type Scheduler struct {
	queues QueueStore
	appts  AppointmentStore
	subs   SubscriptionStore
	sender push.Sender
	log    *slog.Logger
	now    func() time.Time
	cfg    Config
}

func New(
	queues QueueStore,
	appts AppointmentStore,
	subs SubscriptionStore,
	sender push.Sender,
	log *slog.Logger,
	cfg Config,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}

	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = 30 * time.Minute
	}

	return &Scheduler{
		queues: queues,
		appts:  appts,
		subs:   subs,
		sender: sender,
		log:    log,
		now:    time.Now,
		cfg:    cfg,
	}
}

// Run executes one cycle immediately, then one per interval until ctx is
// cancelled. A failing cycle is logged and the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle performs one pass over the three scans. Each scan fails
// independently; a panic or error in one never stops the others and never
// exits the process.
func (s *Scheduler) RunCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler cycle panicked", "panic", fmt.Sprint(r))
		}
	}()

	if err := s.scanQueue(ctx); err != nil {
		s.log.Error("queue scan failed", "error", err)
	}

	if err := s.scanReminders(ctx); err != nil {
		s.log.Error("reminder scan failed", "error", err)
	}

	if err := s.tickWaitTimes(ctx); err != nil {
		s.log.Error("wait tick failed", "error", err)
	}
}

// scanQueue pushes threshold notifications to clients at positions 3, 2
// and 1. last_notified_position guards at-most-once per threshold: a push
// fires only when the entry has advanced past the last notified position.
func (s *Scheduler) scanQueue(ctx context.Context) error {
	const op = "scheduler.scanQueue"

	entries, err := s.queues.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	for _, e := range entries {
		if e.Status == domain.QueueInProgress {
			continue
		}

		body, ok := positionMessage(e.Position)
		if !ok {
			continue
		}

		if e.LastNotifiedPos != nil && e.Position >= *e.LastNotifiedPos {
			continue
		}

		attempted := s.deliver(ctx, e.ClientID, push.Payload{
			Title: pushTitle,
			Body:  body,
		})
		if attempted == 0 {
			// No subscription to reach: leave the marker unset so the
			// client still gets this threshold once they subscribe.
			continue
		}

		if err := s.queues.SetLastNotifiedPosition(ctx, e.ID, e.Position); err != nil {
			s.log.Error("set last notified position failed",
				"entry_id", e.ID, "error", err)
		}
	}

	return nil
}

func positionMessage(pos int) (string, bool) {
	switch pos {
	case 3:
		return msgPosition3, true
	case 2:
		return msgPosition2, true
	case 1:
		return msgPosition1, true
	}
	return "", false
}

// scanReminders sends the 30-minute reminder for confirmed appointments
// starting inside [now, now+window). reminder_sent flips once a dispatch
// attempt has been made, even a fully-failed one: a failed reminder is
// logged, never retried. A client with no subscription yet keeps the row
// unmarked and still gets the reminder after subscribing inside the window.
func (s *Scheduler) scanReminders(ctx context.Context) error {
	const op = "scheduler.scanReminders"

	now := s.now()

	appts, err := s.appts.DueReminders(ctx, now, now.Add(s.cfg.ReminderWindow))
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	for _, a := range appts {
		attempted := s.deliver(ctx, a.ClientID, push.Payload{
			Title: pushTitle,
			Body:  msgReminder,
		})
		if attempted == 0 {
			continue
		}

		if err := s.appts.MarkReminderSent(ctx, a.ID); err != nil {
			// A concurrent cycle already marked it; the client may get a
			// duplicate but the row stays consistent.
			s.log.Warn("mark reminder sent failed",
				"appointment_id", a.ID, "error", err)
		}
	}

	return nil
}

// tickWaitTimes counts every waiting entry's estimate down one minute,
// flooring at zero.
func (s *Scheduler) tickWaitTimes(ctx context.Context) error {
	const op = "scheduler.tickWaitTimes"

	n, err := s.queues.DecrementWaitTimes(ctx)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if n > 0 {
		s.log.Debug("wait estimates decremented", "entries", n)
	}

	return nil
}

// deliver sends one payload to every subscription of a client and returns
// how many sends were attempted. Failures do not block the rest of the
// batch: permanently-gone endpoints are deleted on the spot, transient
// failures are logged.
func (s *Scheduler) deliver(ctx context.Context, clientID uuid.UUID, p push.Payload) int {
	subs, err := s.subs.ListByClient(ctx, clientID)
	if err != nil {
		s.log.Error("list subscriptions failed", "client_id", clientID, "error", err)
		return 0
	}

	for _, sub := range subs {
		err := s.sender.Send(sub, p)
		if err == nil {
			continue
		}

		if errors.Is(err, push.ErrSubscriptionGone) {
			if derr := s.subs.Delete(ctx, sub.ID); derr != nil {
				s.log.Error("delete dead subscription failed",
					"subscription_id", sub.ID, "error", derr)
			} else {
				s.log.Info("dead subscription removed", "subscription_id", sub.ID)
			}
			continue
		}

		s.log.Warn("push delivery failed",
			"subscription_id", sub.ID, "error", err)
	}

	return len(subs)
}
