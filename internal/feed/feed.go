package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	redisrepo "github.com/freshcut/freshcut-go/internal/repository/redis"
)

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Delta is one row-level change published for a table. New carries the row
// after the change (INSERT/UPDATE), Old the row before it (DELETE).
type Delta struct {
	Event  EventType       `json:"event"`
	New    json.RawMessage `json:"new,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
	TsUnix int64           `json:"ts_unix"`
}

// Bus publishes and subscribes to per-table change feeds. Writers publish
// from after-commit hooks only, so subscribers never observe a rolled-back
// row.
type Bus struct {
	rdb *redis.Client
}

func NewBus(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

func (b *Bus) publish(ctx context.Context, table string, d Delta) error {
	d.TsUnix = time.Now().Unix()

	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}

	return b.rdb.Publish(ctx, redisrepo.ChannelFeed(table), payload).Err()
}

func (b *Bus) PublishInsert(ctx context.Context, table string, row any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return b.publish(ctx, table, Delta{Event: Insert, New: raw})
}

func (b *Bus) PublishUpdate(ctx context.Context, table string, row any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return b.publish(ctx, table, Delta{Event: Update, New: raw})
}

func (b *Bus) PublishDelete(ctx context.Context, table string, row any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return b.publish(ctx, table, Delta{Event: Delete, Old: raw})
}

// Subscribe streams deltas for one table to handler in arrival order until
// ctx is cancelled. Deltas in flight at cancellation are discarded; a
// re-subscribing consumer must rebuild its snapshot first.
func (b *Bus) Subscribe(ctx context.Context, table string, handler func(ctx context.Context, d Delta)) error {
	sub := b.rdb.Subscribe(ctx, redisrepo.ChannelFeed(table))
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var d Delta
			if err := json.Unmarshal([]byte(m.Payload), &d); err == nil &&
				d.Event != "" {
				handler(ctx, d)
			}
		}
	}
}
