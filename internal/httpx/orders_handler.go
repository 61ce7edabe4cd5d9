package httpx

import (
	"context"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"github.com/ariefcatur/go-batch-reservations/internal/redisx"
	"github.com/go-chi/chi/v5"
	"net/http"
	"time"
)

type OrdersHandler struct {
	Engine    *orders.Engine
	Lifecycle *orders.Lifecycle
	Queries   *orders.Queries
	// Cache is optional; without it status reads go to the store.
	Cache *redisx.StatusCache
}

type CreateOrderReq struct {
	Items    []orders.CartItem   `json:"items" validate:"required,min=1,dive"`
	Shipping orders.ShippingInfo `json:"shipping"`
}

type CancelOrderReq struct {
	Reason  string `json:"reason" validate:"max=500"`
	ActorID *int64 `json:"actor_id,omitempty" validate:"omitempty,gt=0"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/expiring", h.expiringOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Get("/orders/{id}/reservations", h.listReservations)
	r.Get("/orders/{id}/inventory-logs", h.listLogs)
	r.Post("/orders/{id}/confirm-payment", h.confirmPayment)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/complete", h.completeOrder)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req CreateOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Engine.CreateOrderWithReservation(ctx, uid, req.Items, req.Shipping)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	d, err := h.Queries.Order(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// getStatus serves from the Redis cache and falls back to the store, warming
// the cache on a miss.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		s, err := h.Cache.Get(ctx, id)
		if err != nil {
			logger.Warn(ctx).Err(err).Int64("order_id", id).Msg("order status cache read failed")
		}
		if s != nil {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	d, err := h.Queries.Order(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s := redisx.OrderStatus{
		OrderID:     d.Order.ID,
		OrderNumber: d.Order.OrderNumber,
		Status:      string(d.Order.Status),
		UpdatedAt:   d.Order.UpdatedAt,
	}
	if h.Cache != nil {
		if err := h.Cache.Set(ctx, s); err != nil {
			logger.Warn(ctx).Err(err).Int64("order_id", id).Msg("order status cache write failed")
		}
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *OrdersHandler) listReservations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rs, err := h.Queries.Reservations(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rs == nil {
		rs = []orders.Reservation{}
	}
	writeJSON(w, http.StatusOK, rs)
}

func (h *OrdersHandler) listLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	logs, err := h.Queries.InventoryLogs(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []orders.InventoryLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *OrdersHandler) expiringOrders(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var within time.Duration
	if s := r.URL.Query().Get("within"); s != "" {
		if within, err = time.ParseDuration(s); err != nil || within <= 0 {
			writeError(w, r, badRequest("invalid within duration"))
			return
		}
	}
	list, err := h.Queries.ExpiringOrders(r.Context(), uid, within)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req orders.PaymentInfo
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	o, err := h.Lifecycle.ConfirmPayment(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req CancelOrderReq
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	o, err := h.Lifecycle.CancelOrder(r.Context(), id, req.Reason, req.ActorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) completeOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Lifecycle.CompleteOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
