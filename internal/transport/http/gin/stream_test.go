package httpgin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/feed"
)

// scriptedFeed replays fixed deltas to the subscriber and returns, as if
// the pubsub channel closed.
type scriptedFeed struct {
	deltas []feed.Delta
}

func (s *scriptedFeed) Subscribe(
	ctx context.Context,
	table string,
	handler func(ctx context.Context, d feed.Delta),
) error {
	for _, d := range s.deltas {
		handler(ctx, d)
	}
	return nil
}

func rawEntry(t *testing.T, e domain.QueueEntry) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// lastQueueEvent returns the data payload of the final queue event in an
// SSE body.
func lastQueueEvent(t *testing.T, body string) []domain.QueueEntry {
	t.Helper()

	var data string
	for _, frame := range strings.Split(body, "\n\n") {
		if !strings.HasPrefix(frame, "event: queue\n") {
			continue
		}
		for _, line := range strings.Split(frame, "\n") {
			if d, ok := strings.CutPrefix(line, "data: "); ok {
				data = d
			}
		}
	}
	if data == "" {
		t.Fatalf("no queue event in body:\n%s", body)
	}

	var entries []domain.QueueEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		t.Fatalf("unmarshal queue event: %v", err)
	}
	return entries
}

func streamRouter(list QueueLister, sub feed.Subscriber) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/shops/:id/queue/stream",
		handleStreamQueue(list, sub, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return r
}

func TestStreamQueueSnapshotAndDeltas(t *testing.T) {
	shopID := uuid.New()
	otherShop := uuid.New()

	first := domain.QueueEntry{
		ID: uuid.New(), ShopID: shopID, Position: 1, Status: domain.QueueWaiting,
	}
	joined := domain.QueueEntry{
		ID: uuid.New(), ShopID: shopID, Position: 2, Status: domain.QueueWaiting,
	}
	elsewhere := domain.QueueEntry{
		ID: uuid.New(), ShopID: otherShop, Position: 1, Status: domain.QueueWaiting,
	}
	finished := first
	finished.Status = domain.QueueDone

	sub := &scriptedFeed{deltas: []feed.Delta{
		{Event: feed.Insert, New: rawEntry(t, joined)},
		{Event: feed.Insert, New: rawEntry(t, elsewhere)},
		{Event: feed.Update, New: rawEntry(t, finished)},
	}}

	r := streamRouter(func(ctx context.Context, id uuid.UUID) ([]domain.QueueEntry, error) {
		return []domain.QueueEntry{first}, nil
	}, sub)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shops/"+shopID.String()+"/queue/stream", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	// After all deltas: first is done, elsewhere belongs to another shop,
	// only joined remains visible.
	entries := lastQueueEvent(t, w.Body.String())
	if len(entries) != 1 {
		t.Fatalf("final view has %d entries, want 1: %+v", len(entries), entries)
	}
	if entries[0].ID != joined.ID {
		t.Errorf("final view entry = %s, want %s", entries[0].ID, joined.ID)
	}
}

func TestStreamQueueInvalidShopID(t *testing.T) {
	r := streamRouter(func(ctx context.Context, id uuid.UUID) ([]domain.QueueEntry, error) {
		t.Fatal("lister called for invalid id")
		return nil, nil
	}, &scriptedFeed{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shops/not-a-uuid/queue/stream", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
