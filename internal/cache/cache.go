// Package cache holds impact reports between estimates of an unchanged rule.
//
// Backends are byte stores (an in-process LRU, Redis, or the LRU in front of
// Redis); Reports adds the JSON codec and key namespace on top.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opencustomruler/ruler/internal/domain"
)

// Store is a byte key/value store with per-entry expiry.
type Store interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// New builds the report cache described by cfg.
func New(cfg domain.CacheConfig) (*Reports, error) {
	switch cfg.Type {
	case "memory":
		return NewReports(NewLRUCache(cfg.LocalMaxSize)), nil

	case "redis":
		remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTwoPhase {
			return NewReports(remote), nil
		}
		return NewReports(NewTiered(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL)), nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// NewMemory is an LRU-backed report cache holding at most size entries.
func NewMemory(size int) *Reports {
	return NewReports(NewLRUCache(size))
}

const reportPrefix = "report:"

// Reports stores impact reports as JSON in a Store.
type Reports struct {
	store Store
}

var _ domain.ReportCache = (*Reports)(nil)

// NewReports wraps store.
func NewReports(store Store) *Reports {
	return &Reports{store: store}
}

// Store exposes the backend, mostly for stats and tests.
func (r *Reports) Store() Store {
	return r.store
}

// GetReport decodes the entry under key. Every call returns a fresh value.
func (r *Reports) GetReport(ctx context.Context, key string) (*domain.ImpactReport, error) {
	data, err := r.store.Get(ctx, reportPrefix+key)
	if err != nil || data == nil {
		return nil, err
	}
	var report domain.ImpactReport
	if err := json.Unmarshal(data, &report); err != nil {
		_ = r.forget(ctx, key)
		return nil, fmt.Errorf("decode cached report %s: %w", key, err)
	}
	return &report, nil
}

// SetReport encodes report under key for ttl.
func (r *Reports) SetReport(ctx context.Context, key string, report *domain.ImpactReport, ttl time.Duration) error {
	if report == nil {
		return fmt.Errorf("report is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", key, err)
	}
	return r.store.Set(ctx, reportPrefix+key, data, ttl)
}

// forget drops the report under key.
func (r *Reports) forget(ctx context.Context, key string) error {
	return r.store.Delete(ctx, reportPrefix+key)
}

func (r *Reports) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func (r *Reports) Close() error {
	return r.store.Close()
}
