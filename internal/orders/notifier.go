package orders

import "context"

// Notifier is told about committed changes. It must not fail the caller;
// delivery problems are its own to log.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order, items []OrderItem)
	StatusChanged(ctx context.Context, o *Order, from Status)
}

type NopNotifier struct{}

func (NopNotifier) OrderCreated(context.Context, *Order, []OrderItem) {}
func (NopNotifier) StatusChanged(context.Context, *Order, Status)     {}
