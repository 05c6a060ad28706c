package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/feed"
)

// QueueLister fetches the active-queue snapshot a stream starts from.
type QueueLister func(ctx context.Context, shopID uuid.UUID) ([]domain.QueueEntry, error)

const streamHeartbeat = 25 * time.Second

// handleStreamQueue serves the shop's live queue over Server-Sent Events:
// a full snapshot on connect, then a fresh snapshot after every change. The
// connection's mirror tracks the whole table; the view sent to the client
// is filtered to the requested shop's active entries.
func handleStreamQueue(list QueueLister, sub feed.Subscriber, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		ctx := c.Request.Context()

		mirror := feed.NewMirror(func(e domain.QueueEntry) uuid.UUID { return e.ID })
		watcher := feed.NewWatcher(sub, "queue_items", mirror,
			func(ctx context.Context) ([]domain.QueueEntry, error) {
				return list(ctx, shopID)
			}, logger)

		updates := make(chan struct{}, 1)
		watcher.OnApply(func() {
			select {
			case updates <- struct{}{}:
			default:
			}
		})

		done := make(chan error, 1)
		go func() { done <- watcher.Run(ctx) }()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Writer.WriteHeaderNow()
		c.Writer.Flush()

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-done:
				// Flush anything folded in before the subscription ended.
				select {
				case <-updates:
					writeQueueEvent(c, activeQueueView(mirror.List(), shopID))
				default:
				}
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("queue stream ended",
						"shop_id", shopID, "error", err)
				}
				return
			case <-updates:
				if !writeQueueEvent(c, activeQueueView(mirror.List(), shopID)) {
					return
				}
			case <-heartbeat.C:
				if _, err := fmt.Fprint(c.Writer, ": keep-alive\n\n"); err != nil {
					return
				}
				c.Writer.Flush()
			}
		}
	}
}

func writeQueueEvent(c *gin.Context, entries []domain.QueueEntry) bool {
	b, err := json.Marshal(entries)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(c.Writer, "event: queue\ndata: %s\n\n", b); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}

// activeQueueView filters mirrored rows down to one shop's active entries
// in position order.
func activeQueueView(entries []domain.QueueEntry, shopID uuid.UUID) []domain.QueueEntry {
	out := make([]domain.QueueEntry, 0, len(entries))
	for _, e := range entries {
		if e.ShopID == shopID && e.Status.Active() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
