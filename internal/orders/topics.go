package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicPaymentAuthorized  = "order.payment.authorized"
)

// Partition key = order number, so every event of one order keeps its order.
func PartitionKey(orderNumber string) []byte { return []byte(orderNumber) }
