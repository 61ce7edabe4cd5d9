package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// MarkProcessed records that service handled eventID. It reports false when
// the event was already recorded.
func MarkProcessed(ctx context.Context, rdb redis.Cmdable, service, eventID string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, eventID), time.Now().UTC().Format(time.RFC3339), TTLDedup).Result()
}

// ForgetProcessed drops a dedup marker so a failed event can be retried.
func ForgetProcessed(ctx context.Context, rdb redis.Cmdable, service, eventID string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, eventID)).Err()
}

type OrderStatus struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusCache is a short-lived read cache in front of the orders table. The
// database stays the source of truth.
type StatusCache struct {
	RDB redis.Cmdable
}

func (c *StatusCache) Set(ctx context.Context, s OrderStatus) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, s.OrderID), b, TTLStatusCache).Err()
}

// Get returns nil without error on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID int64) (*OrderStatus, error) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s OrderStatus
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *StatusCache) Delete(ctx context.Context, orderID int64) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}
