package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Tiered reads through an in-process LRU to a shared store. Writes go to
// both; the near tier never keeps an entry longer than nearTTL or than the
// far tier would.
type Tiered struct {
	near    *LRUCache
	far     Store
	nearTTL time.Duration
}

// NewTiered layers near in front of far. nearTTL <= 0 means five minutes.
func NewTiered(near *LRUCache, far Store, nearTTL time.Duration) *Tiered {
	if nearTTL <= 0 {
		nearTTL = 5 * time.Minute
	}
	return &Tiered{near: near, far: far, nearTTL: nearTTL}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if val, err := t.near.Get(ctx, key); err != nil || val != nil {
		return val, err
	}

	val, err := t.far.Get(ctx, key)
	if err != nil || val == nil {
		return nil, err
	}
	_ = t.near.Set(ctx, key, val, t.nearTTL)
	return val, nil
}

// Set writes the far tier first so a failed shared write leaves no local-only
// entry behind.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.far.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return t.near.Set(ctx, key, value, min(ttl, t.nearTTL))
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	_ = t.near.Delete(ctx, key)
	return t.far.Delete(ctx, key)
}

// Ping only checks the far tier; the near tier cannot fail.
func (t *Tiered) Ping(ctx context.Context) error {
	if err := t.far.Ping(ctx); err != nil {
		return fmt.Errorf("shared cache: %w", err)
	}
	return nil
}

func (t *Tiered) Close() error {
	size, _ := t.near.Stats()
	slog.Debug("closing tiered cache", "local_entries", size)
	return errors.Join(t.near.Close(), t.far.Close())
}

// Stats reports the near tier's size and capacity.
func (t *Tiered) Stats() (size int, capacity int) {
	return t.near.Stats()
}
