package domain

import (
	"context"
	"time"
)

// ReportCache keeps impact reports keyed by rule shape and noise seed, so an
// unchanged rule is not re-estimated on every read.
type ReportCache interface {
	// GetReport returns nil, nil on a miss. Each hit is a private copy.
	GetReport(ctx context.Context, key string) (*ImpactReport, error)

	SetReport(ctx context.Context, key string, report *ImpactReport, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects the report cache backend.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string

	// LocalMaxSize bounds the in-process LRU, standalone or in front of Redis.
	LocalMaxSize int

	// LocalTTL caps how long the in-process tier keeps a Redis entry.
	LocalTTL time.Duration

	// RedisAddr is host:port or a redis:// URL. A URL wins over the
	// password and DB fields.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase puts the LRU in front of Redis.
	EnableTwoPhase bool
}
