package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no asset exists under the requested key.
var ErrNotFound = errors.New("storage: asset not found")

// AssetStore caches generated assets so delivery and share can re-fetch
// them without another inference call. The default memory store matches the
// session-scoped lifecycle of a generated video; file and object stores let
// assets outlive the process.
type AssetStore interface {
	Put(ctx context.Context, key string, data []byte, mime string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	URL(ctx context.Context, key string) (string, error)
}
