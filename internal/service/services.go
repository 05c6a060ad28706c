package service

import (
	"github.com/freshcut/freshcut-go/internal/feed"
	postgres "github.com/freshcut/freshcut-go/internal/repository/postgres"
	redis "github.com/freshcut/freshcut-go/internal/repository/redis"
	"github.com/freshcut/freshcut-go/internal/service/admin"
	"github.com/freshcut/freshcut-go/internal/service/booking"
	"github.com/freshcut/freshcut-go/internal/service/query"
	"github.com/freshcut/freshcut-go/internal/service/queue"
	"github.com/freshcut/freshcut-go/internal/service/subscription"
	"github.com/freshcut/freshcut-go/internal/uow"
)

type Services struct {
	Booking       *booking.Service
	Queue         *queue.Service
	Query         *query.Service
	Admin         *admin.Service
	Subscriptions *subscription.Service
}

type Config struct {
	Booking booking.Config
	Queue   queue.Config
	Query   query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	bus *feed.Bus,
	limiter *redis.SlidingWindowLimiter,
	cfg Config,
) *Services {
	return &Services{
		Booking:       booking.New(store, cache, bus, limiter, cfg.Booking),
		Queue:         queue.New(store, cache, bus, cfg.Queue),
		Query:         query.New(store, cache, cfg.Query),
		Admin:         admin.New(store, cache, bus, uow.NewUoW(store)),
		Subscriptions: subscription.New(store),
	}
}
