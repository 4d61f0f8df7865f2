// Package securestore provides the key-value engine credentials are persisted in.
// Values are opaque strings; Encrypted adds at-rest encryption on top of any Store.
package securestore

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("key not found")
	ErrInvalidKey = errors.New("invalid key")
)

// Store is a get/set/delete engine for opaque string values.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
