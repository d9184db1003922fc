// Package profile resolves author display data in batches.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/cache"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/pkg/logging"
)

// Author is the display data attached to posts and comments
type Author struct {
	ID          int64              `json:"id"`
	Kind        models.ProfileKind `json:"type"`
	DisplayName string             `json:"display_name"`
	AvatarURL   string             `json:"avatar_url"`
	Visibility  models.Visibility  `json:"visibility"`
}

// FromModel converts a stored profile
func FromModel(p *models.Profile) Author {
	return Author{
		ID:          p.ID,
		Kind:        p.Kind,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Visibility:  p.Visibility,
	}
}

// Store loads profiles by id
type Store interface {
	ProfilesByIDs(ctx context.Context, ids []int64) ([]models.Profile, error)
}

// Resolver is a read-through cache over Store. A nil cache disables caching.
type Resolver struct {
	store  Store
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewResolver creates a profile resolver
func NewResolver(store Store, c *cache.Cache, ttl time.Duration) *Resolver {
	return &Resolver{
		store:  store,
		cache:  c,
		ttl:    ttl,
		logger: logging.WithComponent("profile"),
	}
}

func cacheKey(id int64) string {
	return "author:" + strconv.FormatInt(id, 10)
}

// Resolve returns authors for ids. Unknown ids are absent from the map.
func (r *Resolver) Resolve(ctx context.Context, ids []int64) (map[int64]Author, error) {
	out := make(map[int64]Author, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	err := r.cache.MGetJSON(ctx, keys, func(i int, raw []byte) error {
		var a Author
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil
		}
		out[ids[i]] = a
		return nil
	})
	if err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		r.logger.Warn("Author cache read failed", zap.Error(err))
	}

	var misses []int64
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	profiles, err := r.store.ProfilesByIDs(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	fill := make(map[string]interface{}, len(profiles))
	for i := range profiles {
		a := FromModel(&profiles[i])
		out[a.ID] = a
		fill[cacheKey(a.ID)] = a
	}
	if err := r.cache.SetManyJSON(ctx, fill, r.ttl); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		r.logger.Warn("Author cache write failed", zap.Error(err))
	}
	return out, nil
}

// Invalidate drops cached entries for ids
func (r *Resolver) Invalidate(ctx context.Context, ids ...int64) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	if err := r.cache.Delete(ctx, keys...); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		r.logger.Warn("Author cache invalidation failed", zap.Error(err))
	}
}
