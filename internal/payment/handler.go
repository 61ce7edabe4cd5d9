// Package payment applies payment-authorized events to orders.
package payment

import (
	"context"
	"errors"
	"fmt"
	kafkax "github.com/ariefcatur/go-batch-reservations/internal/kafka"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"github.com/ariefcatur/go-batch-reservations/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

type Confirmer interface {
	ConfirmPayment(ctx context.Context, orderID int64, pay orders.PaymentInfo) (*orders.Order, error)
}

type Handler struct {
	Orders  Confirmer
	Redis   redis.Cmdable
	Service string
}

// Handle confirms the order named by a PaymentAuthorized envelope. Each
// event id is applied once; events for orders that can no longer be paid
// are logged and acknowledged.
func (h *Handler) Handle(ctx context.Context, m kafka.Message) error {
	var ev orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &ev); err != nil {
		logger.Error(ctx).Err(err).Int64("offset", m.Offset).Msg("skipping malformed payment event")
		return nil
	}
	if ev.EventType != orders.EventPaymentAuthorized {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.PaymentAuthorizedPayload](ev.Payload)
	if err != nil {
		logger.Error(ctx).Err(err).Str("event_id", ev.EventID).Msg("skipping malformed payment event")
		return nil
	}

	if ev.EventID != "" {
		first, err := redisx.MarkProcessed(ctx, h.Redis, h.Service, ev.EventID)
		if err != nil {
			return fmt.Errorf("dedup %s: %w", ev.EventID, err)
		}
		if !first {
			logger.Debug(ctx).Str("event_id", ev.EventID).Msg("payment event already applied")
			return nil
		}
	}

	log := logger.WithContext(ctx).With().
		Str("event_id", ev.EventID).
		Int64("order_id", p.OrderID).
		Str("payment_ref", p.PaymentRef).
		Logger()

	_, err = h.Orders.ConfirmPayment(ctx, p.OrderID, orders.PaymentInfo{Method: p.Method})
	switch {
	case err == nil:
		log.Info().Msg("payment applied")
		return nil
	case errors.Is(err, orders.ErrDeadlineExpired),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrNotFound):
		log.Warn().Err(err).Msg("payment rejected")
		return nil
	default:
		if ev.EventID != "" {
			if ferr := redisx.ForgetProcessed(context.WithoutCancel(ctx), h.Redis, h.Service, ev.EventID); ferr != nil {
				log.Error().Err(ferr).Msg("dedup marker cleanup failed")
			}
		}
		return fmt.Errorf("confirm payment for order %d: %w", p.OrderID, err)
	}
}
