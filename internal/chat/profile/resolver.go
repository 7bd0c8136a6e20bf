package profile

import (
	"context"
	"sync"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/pkg/workerpool"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 10 * time.Minute
	resolveWorkers   = 8
)

// Resolver turns sender addresses into display names. Lookups that fail fall
// back to the shortened address and are retried on the next call; successful
// lookups, including "no username", are cached.
type Resolver struct {
	source  UsernameSource
	logger  *zap.Logger
	cache   *expirable.LRU[string, string]
	workers int
}

// NewResolver builds a Resolver with a bounded, expiring cache.
func NewResolver(source UsernameSource, size int, ttl time.Duration, logger *zap.Logger) *Resolver {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Resolver{
		source:  source,
		logger:  logger,
		cache:   expirable.NewLRU[string, string](size, nil, ttl),
		workers: resolveWorkers,
	}
}

// DisplayName returns the username of address or its short form.
func (r *Resolver) DisplayName(ctx context.Context, address string) string {
	key := model.NormalizeAddress(address)
	if name, ok := r.cache.Get(key); ok {
		return display(name, address)
	}

	name, err := r.source.Username(ctx, key)
	if err != nil {
		r.logger.Debug("username lookup failed", zap.String("address", key), zap.Error(err))
		return model.ShortAddress(address)
	}
	r.cache.Add(key, name)
	return display(name, address)
}

// ResolveAll resolves every distinct sender concurrently. The result is keyed
// by normalized address and always has an entry per sender.
func (r *Resolver) ResolveAll(ctx context.Context, addresses []string) map[string]string {
	unique := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		key := model.NormalizeAddress(a)
		if _, ok := seen[key]; ok || key == "" {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}

	var mu sync.Mutex
	names := make(map[string]string, len(unique))
	// DisplayName never fails, so only a canceled ctx ends this early
	_ = workerpool.Each(ctx, r.workers, unique, func(ctx context.Context, key string) error {
		name := r.DisplayName(ctx, key)
		mu.Lock()
		names[key] = name
		mu.Unlock()
		return nil
	})
	for _, key := range unique {
		if _, ok := names[key]; !ok {
			names[key] = model.ShortAddress(key)
		}
	}
	return names
}

// Forget drops the cached name of address, e.g. after a username update.
func (r *Resolver) Forget(address string) {
	r.cache.Remove(model.NormalizeAddress(address))
}

func display(name, address string) string {
	if name == "" {
		return model.ShortAddress(address)
	}
	return name
}
