package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

const artifactKeyPrefix = "artifact:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisArtifactStore persists artifacts as Redis hashes with a per-key TTL.
// Writes are last-writer-wins, which is safe because generation is
// deterministic per key.
type RedisArtifactStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisArtifactStore(ctx context.Context, cfg RedisConfig) (*RedisArtifactStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisArtifactStore{client: client, ttl: cfg.TTL}, nil
}

func (s *RedisArtifactStore) Close() error {
	return s.client.Close()
}

func (s *RedisArtifactStore) Get(ctx context.Context, key string) (domain.Artifact, error) {
	values, err := s.client.HGetAll(ctx, artifactKeyPrefix+key).Result()
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("read artifact: %w", err)
	}
	if len(values) == 0 {
		return domain.Artifact{}, ErrNotFound
	}

	artifact := domain.Artifact{
		Body:        []byte(values["body"]),
		ContentType: values["content_type"],
	}
	if raw, ok := values["generated_at"]; ok && raw != "" {
		if parsed, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			artifact.GeneratedAt = parsed
		}
	}
	if len(artifact.Body) == 0 {
		return domain.Artifact{}, ErrNotFound
	}
	return artifact, nil
}

func (s *RedisArtifactStore) Put(ctx context.Context, key string, artifact domain.Artifact) error {
	namespaced := artifactKeyPrefix + key

	pipeline := s.client.TxPipeline()
	pipeline.HSet(ctx, namespaced, map[string]any{
		"body":         artifact.Body,
		"content_type": artifact.ContentType,
		"generated_at": artifact.GeneratedAt.UTC().Format(time.RFC3339Nano),
	})
	pipeline.Expire(ctx, namespaced, s.ttl)
	if _, err := pipeline.Exec(ctx); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
