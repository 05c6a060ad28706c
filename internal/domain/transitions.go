package domain

import "time"

// queueTransitions holds the allowed queue status moves. Re-entering the
// current status is treated as a no-op by CanTransition, not listed here.
var queueTransitions = map[QueueStatus][]QueueStatus{
	QueueWaiting:    {QueueNotified, QueueInProgress, QueueCancelled},
	QueueNotified:   {QueueInProgress, QueueCancelled},
	QueueInProgress: {QueueDone},
}

// CanTransition reports whether a queue entry may move from one status to
// another. Same-status moves are allowed (callers treat them as no-ops).
func CanTransition(from, to QueueStatus) bool {
	if from == to {
		return true
	}
	for _, next := range queueTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StampTransition sets the timestamp field matching the new status, but only
// on the first transition into that status: an already-set stamp is never
// overwritten.
func StampTransition(e *QueueEntry, to QueueStatus, now time.Time) {
	switch to {
	case QueueNotified:
		if e.NotifiedAt == nil {
			t := now
			e.NotifiedAt = &t
		}
	case QueueInProgress:
		if e.StartedAt == nil {
			t := now
			e.StartedAt = &t
		}
	case QueueDone, QueueCancelled:
		if e.CompletedAt == nil {
			t := now
			e.CompletedAt = &t
		}
	}
}
