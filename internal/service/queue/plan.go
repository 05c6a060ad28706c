package queue

import (
	"github.com/google/uuid"

	"github.com/freshcut/freshcut-go/internal/domain"
	postgresrepo "github.com/freshcut/freshcut-go/internal/repository/postgres"
)

// planPositions assigns dense 1-based positions to entries in the given
// order and recomputes each wait estimate as
// avgMin*(position-1) + the entry's own service minutes.
func planPositions(
	entries []domain.QueueEntry,
	avgMin int,
	ownMin map[uuid.UUID]int,
) []postgresrepo.PositionUpdate {
	updates := make([]postgresrepo.PositionUpdate, 0, len(entries))
	for i, e := range entries {
		updates = append(updates, postgresrepo.PositionUpdate{
			ID:       e.ID,
			Position: i + 1,
			WaitMin:  avgMin*i + ownMin[e.ID],
		})
	}
	return updates
}

// reindexByID maps each active entry to its place in the requested ordering.
// Returns false when the ordering is not a permutation of the active set.
func reindexByID(
	active []domain.QueueEntry,
	orderedIDs []uuid.UUID,
) ([]domain.QueueEntry, bool) {
	if len(active) != len(orderedIDs) {
		return nil, false
	}

	byID := make(map[uuid.UUID]domain.QueueEntry, len(active))
	for _, e := range active {
		byID[e.ID] = e
	}

	out := make([]domain.QueueEntry, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		e, ok := byID[id]
		if !ok {
			return nil, false
		}
		out = append(out, e)
		delete(byID, id)
	}

	return out, true
}

// serviceMinutes sums each entry's own service durations given a duration
// lookup for every involved service.
func serviceMinutes(
	entries []domain.QueueEntry,
	durations map[uuid.UUID]int,
) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(entries))
	for _, e := range entries {
		total := 0
		for _, sid := range e.ServiceIDs {
			total += durations[sid]
		}
		out[e.ID] = total
	}
	return out
}
