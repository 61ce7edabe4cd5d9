package payment

import (
	"context"
	"errors"
	"github.com/alicebob/miniredis/v2"
	kafkax "github.com/ariefcatur/go-batch-reservations/internal/kafka"
	"github.com/ariefcatur/go-batch-reservations/internal/orders"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

type stubConfirmer struct {
	calls  []int64
	method string
	err    error
}

func (s *stubConfirmer) ConfirmPayment(_ context.Context, id int64, pay orders.PaymentInfo) (*orders.Order, error) {
	s.calls = append(s.calls, id)
	s.method = pay.Method
	if s.err != nil {
		return nil, s.err
	}
	return &orders.Order{ID: id, Status: orders.StatusPaid}, nil
}

func message(eventID string, orderID int64) kafka.Message {
	ev := orders.Envelope{
		EventID:      eventID,
		EventType:    orders.EventPaymentAuthorized,
		EventVersion: 1,
		Payload:      kafkax.MustMarshal(orders.PaymentAuthorizedPayload{OrderID: orderID, PaymentRef: "pay-1", Method: "credit_card"}),
	}
	return kafka.Message{Value: kafkax.MustMarshal(ev)}
}

func newHandler(t *testing.T, c Confirmer) (*Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return &Handler{Orders: c, Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()}), Service: "inventory"}, mr
}

func TestHandleConfirmsOnce(t *testing.T) {
	c := &stubConfirmer{}
	h, mr := newHandler(t, c)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, message("ev-1", 42)))
	require.NoError(t, h.Handle(ctx, message("ev-1", 42)))

	assert.Equal(t, []int64{42}, c.calls)
	assert.Equal(t, "credit_card", c.method)
	assert.True(t, mr.Exists("dedup:inventory:ev-1"))
}

func TestHandleAcknowledgesUnpayableOrders(t *testing.T) {
	for _, err := range []error{orders.ErrDeadlineExpired, orders.ErrInvalidTransition, orders.ErrNotFound} {
		c := &stubConfirmer{err: err}
		h, mr := newHandler(t, c)

		assert.NoError(t, h.Handle(context.Background(), message("ev-2", 5)), err.Error())
		assert.True(t, mr.Exists("dedup:inventory:ev-2"))
	}
}

func TestHandleRetriesTransientFailures(t *testing.T) {
	c := &stubConfirmer{err: errors.New("db down")}
	h, mr := newHandler(t, c)
	ctx := context.Background()

	err := h.Handle(ctx, message("ev-3", 5))
	require.Error(t, err)
	assert.False(t, mr.Exists("dedup:inventory:ev-3"), "marker is dropped so the retry is applied")

	c.err = nil
	require.NoError(t, h.Handle(ctx, message("ev-3", 5)))
	assert.Len(t, c.calls, 2)
}

func TestHandleSkipsForeignAndMalformedEvents(t *testing.T) {
	c := &stubConfirmer{}
	h, _ := newHandler(t, c)
	ctx := context.Background()

	assert.NoError(t, h.Handle(ctx, kafka.Message{Value: []byte("not json")}))
	other := orders.Envelope{EventID: "ev-4", EventType: orders.EventOrderCreated}
	assert.NoError(t, h.Handle(ctx, kafka.Message{Value: kafkax.MustMarshal(other)}))
	assert.Empty(t, c.calls)
}

func TestHandleFailsWhenDedupStoreDown(t *testing.T) {
	c := &stubConfirmer{}
	h, mr := newHandler(t, c)
	mr.Close()

	assert.Error(t, h.Handle(context.Background(), message("ev-5", 5)))
	assert.Empty(t, c.calls)
}
