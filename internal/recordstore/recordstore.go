// Package recordstore loads and saves typed record collections over a
// domain.KeyValueStore. Reads never fail the caller: absent, unreadable, or
// malformed content falls back to an empty collection and is logged.
package recordstore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"immobilog/pkg/domain"
)

// Store is a thin typed facade over a KeyValueStore.
type Store struct {
	kv     domain.KeyValueStore
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for recovered read failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps kv.
func New(kv domain.KeyValueStore, opts ...Option) *Store {
	s := &Store{kv: kv, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// KV returns the underlying key-value store.
func (s *Store) KV() domain.KeyValueStore { return s.kv }

// Close closes the underlying key-value store.
func (s *Store) Close() error { return s.kv.Close() }

// Load returns the ordered records stored under name. It never returns nil.
func Load[T any](ctx context.Context, s *Store, name domain.Collection) []T {
	records := make([]T, 0)
	raw, ok := s.read(ctx, name)
	if !ok {
		return records
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		s.logger.Warn("discarding malformed collection",
			zap.String("collection", string(name)),
			zap.Int("bytes", len(raw)),
			zap.Error(err))
		return make([]T, 0)
	}
	if records == nil {
		records = make([]T, 0)
	}
	return records
}

// Save replaces the collection stored under name.
func Save[T any](ctx context.Context, s *Store, name domain.Collection, records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.kv.Set(ctx, string(name), data); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// LoadValue decodes a single value slot. ok is false when the slot is empty
// or its content could not be decoded; in that case fallback is returned.
func LoadValue[T any](ctx context.Context, s *Store, name domain.Collection, fallback T) (T, bool) {
	raw, ok := s.read(ctx, name)
	if !ok {
		return fallback, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Warn("discarding malformed value",
			zap.String("collection", string(name)),
			zap.Error(err))
		return fallback, false
	}
	return v, true
}

// SaveValue stores a single value slot.
func SaveValue[T any](ctx context.Context, s *Store, name domain.Collection, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.kv.Set(ctx, string(name), data); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// Clear removes a value slot or collection.
func (s *Store) Clear(ctx context.Context, name domain.Collection) error {
	if err := s.kv.Delete(ctx, string(name)); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, name domain.Collection) ([]byte, bool) {
	raw, ok, err := s.kv.Get(ctx, string(name))
	if err != nil {
		s.logger.Warn("collection read failed, using empty",
			zap.String("collection", string(name)),
			zap.Error(err))
		return nil, false
	}
	if !ok || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}
