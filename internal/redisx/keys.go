package redisx

import "time"

const (
	// Batch lease: batch_lock:{batch_id} -> holder token
	KeyBatchLock = "batch_lock:%d"

	// Checkout double-submit guard: order_duplication_lock:{user_id}:{cart_fingerprint}
	KeyDuplicationLock = "order_duplication_lock:%d:%s"

	// Cache status order: order_status:{order_id} -> {"order_number": "...", "status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
