// Package cache holds the Redis-backed helpers the API uses: a read cache for
// the caller's family and a fixed-window rate limiter.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Maxborland/EvaCalendar-sub000/internal/service"
)

const (
	familyKeyPrefix     = "cache:user-family:"
	generationKeyPrefix = "cache:user-family-gen:"

	// DefaultFamilyTTL bounds how stale a cached family can get if an
	// invalidation is lost.
	DefaultFamilyTTL = 5 * time.Minute

	// generationTTL only has to outlive one GetUserFamily call.
	generationTTL = 24 * time.Hour
)

var errGenerationMoved = errors.New("family cache generation moved")

// FamilyCache implements service.MembershipCache on top of Redis. Every Redis
// failure is logged and treated as a miss.
type FamilyCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFamilyCache returns a cache bound to client. A zero ttl selects
// DefaultFamilyTTL.
func NewFamilyCache(client *redis.Client, ttl time.Duration) *FamilyCache {
	if ttl <= 0 {
		ttl = DefaultFamilyTTL
	}
	return &FamilyCache{client: client, ttl: ttl}
}

var _ service.MembershipCache = (*FamilyCache)(nil)

func familyKey(userUUID string) string {
	return familyKeyPrefix + userUUID
}

func generationKey(userUUID string) string {
	return generationKeyPrefix + userUUID
}

// GetUserFamily reads the entry and the user's generation in one round trip.
func (c *FamilyCache) GetUserFamily(ctx context.Context, userUUID string) (*service.UserFamily, int64, bool) {
	vals, err := c.client.MGet(ctx, familyKey(userUUID), generationKey(userUUID)).Result()
	if err != nil {
		slog.WarnContext(ctx, "family cache read failed", "user_uuid", userUUID, "error", err)
		return nil, -1, false
	}

	gen, err := parseGeneration(vals[1])
	if err != nil {
		slog.WarnContext(ctx, "family cache generation corrupt", "user_uuid", userUUID, "error", err)
		return nil, -1, false
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}
	var family service.UserFamily
	if err := json.Unmarshal([]byte(raw), &family); err != nil {
		slog.WarnContext(ctx, "family cache entry corrupt", "user_uuid", userUUID, "error", err)
		return nil, gen, false
	}
	return &family, gen, true
}

// parseGeneration reads an MGET slot; a missing key is generation zero.
func parseGeneration(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// SetUserFamily stores family for userUUID if the generation is still gen.
// The check and the write run under WATCH, so an Invalidate landing in
// between aborts the write. A nil family is not cached so that joining a
// family never has to race a cached "no family" answer.
func (c *FamilyCache) SetUserFamily(ctx context.Context, userUUID string, family *service.UserFamily, gen int64) {
	if family == nil || gen < 0 {
		return
	}
	data, err := json.Marshal(family)
	if err != nil {
		slog.WarnContext(ctx, "family cache encode failed", "user_uuid", userUUID, "error", err)
		return
	}

	genKey := generationKey(userUUID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errGenerationMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, familyKey(userUUID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errGenerationMoved), errors.Is(err, redis.TxFailedErr):
		slog.DebugContext(ctx, "family cache write skipped, membership changed", "user_uuid", userUUID)
	default:
		slog.WarnContext(ctx, "family cache write failed", "user_uuid", userUUID, "error", err)
	}
}

// Invalidate drops the entries and advances each user's generation.
func (c *FamilyCache) Invalidate(ctx context.Context, userUUIDs ...string) {
	if len(userUUIDs) == 0 {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userUUIDs {
			pipe.Incr(ctx, generationKey(id))
			pipe.Expire(ctx, generationKey(id), generationTTL)
			pipe.Del(ctx, familyKey(id))
		}
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "family cache invalidation failed", "users", len(userUUIDs), "error", err)
	}
}
