package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/freshcut/freshcut-go/internal/domain"
	"github.com/freshcut/freshcut-go/internal/feed"
	redisrepo "github.com/freshcut/freshcut-go/internal/repository/redis"
	"github.com/freshcut/freshcut-go/internal/service"
	"github.com/freshcut/freshcut-go/internal/service/admin"
	"github.com/freshcut/freshcut-go/internal/service/booking"
	"github.com/freshcut/freshcut-go/internal/service/query"
	"github.com/freshcut/freshcut-go/internal/service/queue"
	"github.com/freshcut/freshcut-go/internal/service/subscription"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	stream feed.Subscriber,
	jwtSecret string,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/shops/:id", handleGetShop(svcs))
	r.GET("/shops/:id/queue", handleGetQueue(svcs))
	if stream != nil {
		r.GET("/shops/:id/queue/stream", handleStreamQueue(svcs.Queue.Active, stream, logger))
	}
	r.GET("/shops/:id/barbers", handleListBarbers(svcs))
	r.GET("/shops/:id/services", handleListServices(svcs))
	r.GET("/shops/:id/products", handleListProducts(svcs))
	r.GET("/shops/:id/promotions", handleListPromotions(svcs))

	r.POST("/shops/:id/bookings", handleCreateBooking(svcs, idem))

	r.POST("/push/subscriptions", handleRegisterSubscription(svcs))

	// Admin-API
	adm := r.Group("/admin", JWTAuthMiddleware(jwtSecret))
	{
		adm.PATCH("/shops/:id/status", handleSetShopStatus(svcs))
		adm.GET("/shops/:id/appointments", handleListAppointments(svcs))
		adm.GET("/clients/:id", handleGetClient(svcs))
		adm.PATCH("/appointments/:id/status", handleSetAppointmentStatus(svcs))
		adm.PUT("/shops/:id/queue/order", handleReorderQueue(svcs))
		adm.POST("/queue/:id/transition", handleTransition(svcs))
		adm.DELETE("/queue/:id", handleRemoveEntry(svcs))
		adm.POST("/shops/:id/barbers", handleCreateBarber(svcs))
		adm.POST("/shops/:id/services", handleCreateService(svcs))
		adm.POST("/shops/:id/products", handleCreateProduct(svcs))
		adm.POST("/shops/:id/promotions", handleCreatePromotion(svcs))
	}

	return r
}

func handleGetShop(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		shop, err := svcs.Query.GetShop(c.Request.Context(), shopID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, shop, "public, max-age=60", true)
	}
}

func handleGetQueue(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		entries, err := svcs.Query.ActiveQueue(c.Request.Context(), shopID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// Queue moves constantly; keep client caching short.
		writeJSONWithCache(c, http.StatusOK, entries, "public, max-age=5", true)
	}
}

func handleListBarbers(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		barbers, err := svcs.Query.ListBarbers(c.Request.Context(), shopID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, barbers, "public, max-age=60", true)
	}
}

func handleListServices(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		services, err := svcs.Query.ListServices(c.Request.Context(), shopID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, services, "public, max-age=60", true)
	}
}

func handleListProducts(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		products, err := svcs.Query.ListProducts(c.Request.Context(), shopID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, products, "public, max-age=60", true)
	}
}

func handleListPromotions(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		promos, err := svcs.Query.ListPromotions(c.Request.Context(), shopID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, promos, "public, max-age=60", true)
	}
}

func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(shopID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		bookingReq, err := toBookingRequest(shopID, req)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			badRequest(c, err.Error())
			return
		}

		rlKey := "ip:" + c.ClientIP()

		res, err := svcs.Booking.Book(c.Request.Context(), bookingReq, rlKey)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if isRateLimitedErr(err) {
				c.Header("Retry-After", "60")
				c.JSON(
					http.StatusTooManyRequests,
					ErrorResponse{Error: err.Error()},
				)
				return
			}
			respondErr(c, err)
			return
		}

		resp := CreateBookingResponse{
			ConfirmationID: res.ConfirmationID.String(),
			Mode:           string(res.Mode),
			TimeRemaining:  res.TimeRemaining,
		}
		if res.BarberID != uuid.Nil {
			resp.BarberID = res.BarberID.String()
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func toBookingRequest(shopID uuid.UUID, req CreateBookingRequest) (booking.Request, error) {
	out := booking.Request{
		ShopID:      shopID,
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		Mode:        domain.BookingMode(req.Mode),
	}

	for _, s := range req.ServiceIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return booking.Request{}, errors.New("invalid service id")
		}
		out.ServiceIDs = append(out.ServiceIDs, id)
	}

	if req.BarberID != "" {
		id, err := uuid.Parse(req.BarberID)
		if err != nil {
			return booking.Request{}, errors.New("invalid barber_id")
		}
		out.BarberID = &id
	}

	if out.Mode == domain.BookingFixed {
		if req.StartTime == "" {
			return booking.Request{}, errors.New("start_time required for fixed bookings")
		}
		start, err := parseRFC3339(req.StartTime)
		if err != nil {
			return booking.Request{}, errors.New("invalid start_time (RFC3339)")
		}
		out.RequestedStart = start
	}

	return out, nil
}

func handleRegisterSubscription(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		var clientID *uuid.UUID
		if req.ClientID != "" {
			id, err := uuid.Parse(req.ClientID)
			if err != nil {
				badRequest(c, "invalid client_id")
				return
			}
			clientID = &id
		}

		sub, err := svcs.Subscriptions.Register(
			c.Request.Context(),
			req.Endpoint,
			req.Keys.P256dh,
			req.Keys.Auth,
			clientID,
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, RegisterSubscriptionResponse{
			SubscriptionID: sub.ID.String(),
		})
	}
}

func handleSetShopStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req SetShopStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Admin.SetShopStatus(
			c.Request.Context(),
			shopID,
			domain.ShopStatus(req.Status),
		); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": req.Status})
	}
}

func handleListAppointments(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		now := time.Now()
		from, to := now.Add(-24*time.Hour), now.Add(30*24*time.Hour)
		if s := c.Query("from"); s != "" {
			t, err := parseRFC3339(s)
			if err != nil {
				badRequest(c, "invalid from (RFC3339)")
				return
			}
			from = t
		}
		if s := c.Query("to"); s != "" {
			t, err := parseRFC3339(s)
			if err != nil {
				badRequest(c, "invalid to (RFC3339)")
				return
			}
			to = t
		}

		appts, err := svcs.Query.ListAppointments(c.Request.Context(), shopID, from, to)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, appts)
	}
}

func handleSetAppointmentStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		apptID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req SetAppointmentStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Admin.SetAppointmentStatus(
			c.Request.Context(),
			apptID,
			domain.AppointmentStatus(req.Status),
		); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": req.Status})
	}
}

func handleGetClient(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		client, err := svcs.Query.GetClient(c.Request.Context(), clientID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, client)
	}
}

func handleReorderQueue(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req ReorderQueueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ids := make([]uuid.UUID, 0, len(req.EntryIDs))
		for _, s := range req.EntryIDs {
			id, err := uuid.Parse(s)
			if err != nil {
				badRequest(c, "invalid entry id")
				return
			}
			ids = append(ids, id)
		}

		if err := svcs.Queue.Reorder(c.Request.Context(), shopID, ids); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleTransition(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		entryID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req TransitionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Queue.Transition(
			c.Request.Context(),
			entryID,
			domain.QueueStatus(req.Status),
		); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleRemoveEntry(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		entryID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Queue.Remove(c.Request.Context(), entryID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleCreateBarber(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CreateBarberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		b, err := svcs.Admin.CreateBarber(c.Request.Context(), shopID, req.Name)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, b)
	}
}

func handleCreateService(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CreateServiceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		svc, err := svcs.Admin.CreateService(
			c.Request.Context(),
			shopID,
			req.Name,
			req.PriceCents,
			req.DurationMin,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, svc)
	}
}

func handleCreateProduct(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CreateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := svcs.Admin.CreateProduct(
			c.Request.Context(),
			shopID,
			req.Name,
			req.PriceCents,
			req.Stock,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

func handleCreatePromotion(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CreatePromotionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		start, err := parseRFC3339(req.StartDate)
		if err != nil {
			badRequest(c, "invalid start_date (RFC3339)")
			return
		}
		end, err := parseRFC3339(req.EndDate)
		if err != nil {
			badRequest(c, "invalid end_date (RFC3339)")
			return
		}
		promo, err := svcs.Admin.CreatePromotion(c.Request.Context(), &domain.Promotion{
			ShopID:        shopID,
			Name:          req.Name,
			DiscountType:  req.DiscountType,
			DiscountValue: req.DiscountValue,
			StartDate:     start,
			EndDate:       end,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, promo)
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func isRateLimitedErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "rate limited")
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// booking service
	case errors.Is(err, booking.ErrNoServices),
		errors.Is(err, booking.ErrUnknownService),
		errors.Is(err, booking.ErrInvalidPhone),
		errors.Is(err, booking.ErrInvalidName),
		errors.Is(err, booking.ErrStartInPast):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, booking.ErrShopNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "shop not found"})
		return
	case errors.Is(err, booking.ErrShopClosed):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "shop is not accepting bookings"})
		return
	case errors.Is(err, booking.ErrSlotUnavailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "slot unavailable"})
		return
	case errors.Is(err, booking.ErrNoBarberAvailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "no barber available"})
		return
	// queue service
	case errors.Is(err, queue.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "queue entry not found"})
		return
	case errors.Is(err, queue.ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "illegal status transition"})
		return
	case errors.Is(err, queue.ErrBarberBusy):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "barber already has a client in progress"})
		return
	case errors.Is(err, queue.ErrStaleOrder):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "queue order changed, re-fetch and retry"})
		return
	case errors.Is(err, queue.ErrIncompleteOrdering):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "reorder must list every active entry exactly once"})
		return
	// query service
	case errors.Is(err, query.ErrShopNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "shop not found"})
		return
	case errors.Is(err, query.ErrClientNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "client not found"})
		return
	// admin service
	case errors.Is(err, admin.ErrShopNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "shop not found"})
		return
	case errors.Is(err, admin.ErrAppointmentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "appointment not found"})
		return
	case errors.Is(err, admin.ErrInvalidStatus), errors.Is(err, admin.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	// subscriptions
	case errors.Is(err, subscription.ErrInvalidSubscription):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
