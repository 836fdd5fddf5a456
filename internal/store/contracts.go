package store

import (
	"context"
	"errors"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

// ErrNotFound covers both never-written keys and TTL-evicted keys; callers
// cannot and must not distinguish the two.
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore is a durable blob cache keyed by canonical cache keys. Get and
// Put are idempotent; artifacts are never mutated in place and only leave the
// store through TTL eviction.
type ArtifactStore interface {
	Get(ctx context.Context, key string) (domain.Artifact, error)
	Put(ctx context.Context, key string, artifact domain.Artifact) error
}
