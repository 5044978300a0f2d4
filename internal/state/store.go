package state

import "context"

// Store is a small durable kv surface: client-order-id idempotency keys
// and the engine snapshot live here.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
