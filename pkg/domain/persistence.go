package domain

import "context"

// KeyValueStore is the injected get/set capability behind the record store.
// Values are opaque JSON documents keyed by collection name. Get reports
// ok=false for an absent key; a missing key is not an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
