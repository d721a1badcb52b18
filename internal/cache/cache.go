// Package cache keeps the registered-domain listing in a local TTL cache so
// the HTTP API does not hit the node on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/observability/metrics"
)

const domainsKey = "registered-domains"

// ErrMiss is returned by a Store for an absent or expired key.
var ErrMiss = errors.New("cache miss")

// Store is a byte-oriented key/value cache.
type Store interface {
	Set(key string, entry []byte) error
	Get(key string) ([]byte, error)
	Close() error
}

// BigCache is a Store backed by allegro/bigcache.
type BigCache struct {
	cache *bigcache.BigCache
}

// NewBigCache creates an in-process cache whose entries expire after ttl.
func NewBigCache(ttl time.Duration, maxSizeMB int) (*BigCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.HardMaxCacheSize = maxSizeMB
	cfg.Verbose = false
	c, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &BigCache{cache: c}, nil
}

func (b *BigCache) Set(key string, entry []byte) error {
	return b.cache.Set(key, entry)
}

func (b *BigCache) Get(key string) ([]byte, error) {
	v, err := b.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, ErrMiss
	}
	return v, err
}

func (b *BigCache) Close() error {
	return b.cache.Close()
}

// Lister fetches the registered-domain listing from the registrar.
type Lister interface {
	RegisteredDomains(ctx context.Context) ([]domain.RegisteredDomain, error)
}

// Domains serves the registered-domain listing from a Store, falling back
// to the Lister on a miss.
type Domains struct {
	store  Store
	src    Lister
	now    func() time.Time
	logger *slog.Logger
}

// NewDomains creates a listing cache.
func NewDomains(store Store, src Lister, logger *slog.Logger) *Domains {
	if logger == nil {
		logger = slog.Default()
	}
	return &Domains{store: store, src: src, now: time.Now, logger: logger}
}

// RegisteredDomains returns the cached listing, refreshing it on a miss.
// The Expired flag is recomputed against the current time on every read.
func (d *Domains) RegisteredDomains(ctx context.Context) ([]domain.RegisteredDomain, error) {
	raw, err := d.store.Get(domainsKey)
	if err == nil {
		var list []domain.RegisteredDomain
		if err := json.Unmarshal(raw, &list); err == nil {
			metrics.CacheLookup(true)
			return d.stamp(list), nil
		}
		d.logger.Warn("discarding corrupt cache entry", "key", domainsKey)
	} else if !errors.Is(err, ErrMiss) {
		d.logger.Warn("cache read failed", "key", domainsKey, "error", err)
	}

	metrics.CacheLookup(false)
	return d.refresh(ctx)
}

// Refresh replaces the cached listing with a fresh read.
func (d *Domains) Refresh(ctx context.Context) error {
	_, err := d.refresh(ctx)
	return err
}

func (d *Domains) refresh(ctx context.Context) ([]domain.RegisteredDomain, error) {
	list, err := d.src.RegisteredDomains(ctx)
	metrics.CacheRefresh(err)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encoding domain listing: %w", err)
	}
	if err := d.store.Set(domainsKey, raw); err != nil {
		d.logger.Warn("cache write failed", "key", domainsKey, "error", err)
	}
	d.logger.Debug("domain listing refreshed", "count", len(list))
	return d.stamp(list), nil
}

func (d *Domains) stamp(list []domain.RegisteredDomain) []domain.RegisteredDomain {
	now := d.now().Unix()
	for i := range list {
		list[i].Expired = list[i].Expiry != 0 && now > list[i].Expiry
	}
	return list
}
