// Package cache persists drafts and analyses as namespaced, timestamped
// envelopes with lazy TTL expiry over a pluggable key/value store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	NamespaceDraft    = "draft"
	NamespaceAnalysis = "analysis"

	savedAtField = "savedAt"

	DefaultDraftTTL    = time.Hour
	DefaultAnalysisTTL = 24 * time.Hour
)

// Namespace pairs a key prefix with the TTL applied to its entries.
type Namespace struct {
	Name string
	TTL  time.Duration
}

// Namespaces returns the draft and analysis namespaces with the given TTLs.
// Non-positive values fall back to the defaults.
func Namespaces(draftTTL, analysisTTL time.Duration) []Namespace {
	if draftTTL <= 0 {
		draftTTL = DefaultDraftTTL
	}
	if analysisTTL <= 0 {
		analysisTTL = DefaultAnalysisTTL
	}
	return []Namespace{
		{Name: NamespaceDraft, TTL: draftTTL},
		{Name: NamespaceAnalysis, TTL: analysisTTL},
	}
}

// Store is the raw persistence behind a Cache. Stores never evict on their
// own: expiry is decided by the envelope timestamp on read and a stale
// entry stays until the next write to its key.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, payload []byte) error
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache is a best-effort durable cache. Write and read failures are logged
// and reported as a no-op or a miss, never returned to the caller.
type Cache struct {
	store  Store
	ttls   map[string]time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func New(store Store, logger zerolog.Logger, namespaces []Namespace, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttls:   make(map[string]time.Duration, len(namespaces)),
		now:    time.Now,
		logger: logger.With().Str("component", "cache").Logger(),
	}
	for _, ns := range namespaces {
		c.ttls[ns.Name] = ns.TTL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds the storage key for an entry.
func Key(namespace, key string) string {
	return namespace + ":" + key
}

// TTL returns the configured TTL of a namespace.
func (c *Cache) TTL(namespace string) (time.Duration, bool) {
	ttl, ok := c.ttls[namespace]
	return ttl, ok
}

// Put stores value under namespace:key wrapped in an envelope stamped with
// the current time.
func (c *Cache) Put(ctx context.Context, namespace, key string, value interface{}) {
	log := c.logger.With().Str("namespace", namespace).Str("key", key).Logger()

	if _, ok := c.ttls[namespace]; !ok {
		log.Warn().Msg("cache write to unknown namespace ignored")
		return
	}
	if key == "" {
		log.Warn().Msg("cache write with empty key ignored")
		return
	}

	payload, err := c.encode(namespace, value)
	if err != nil {
		log.Error().Err(err).Msg("cache encode failed")
		return
	}
	if err := c.store.Write(ctx, Key(namespace, key), payload); err != nil {
		log.Error().Err(err).Msg("cache write failed")
	}
}

// Get decodes the entry under namespace:key into out. It reports false when
// the entry is missing, older than the namespace TTL, or unreadable. Stale
// entries are left in place.
func (c *Cache) Get(ctx context.Context, namespace, key string, out interface{}) bool {
	log := c.logger.With().Str("namespace", namespace).Str("key", key).Logger()

	ttl, ok := c.ttls[namespace]
	if !ok || key == "" {
		return false
	}

	payload, found, err := c.store.Read(ctx, Key(namespace, key))
	if err != nil {
		log.Error().Err(err).Msg("cache read failed")
		return false
	}
	if !found {
		return false
	}

	value, savedAt, err := decode(namespace, payload)
	if err != nil {
		log.Warn().Err(err).Msg("cache entry unreadable")
		return false
	}
	if c.now().Sub(savedAt) >= ttl {
		return false
	}
	if err := json.Unmarshal(value, out); err != nil {
		log.Warn().Err(err).Msg("cache entry does not match the requested type")
		return false
	}
	return true
}

func (c *Cache) encode(namespace string, value interface{}) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	savedAt, err := json.Marshal(c.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("marshal timestamp: %w", err)
	}
	return json.Marshal(map[string]json.RawMessage{
		namespace:    raw,
		savedAtField: savedAt,
	})
}

func decode(namespace string, payload []byte) (json.RawMessage, time.Time, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode envelope: %w", err)
	}
	value, ok := env[namespace]
	if !ok {
		return nil, time.Time{}, errors.New("envelope missing value")
	}
	var savedAt time.Time
	if err := json.Unmarshal(env[savedAtField], &savedAt); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode savedAt: %w", err)
	}
	return value, savedAt, nil
}
