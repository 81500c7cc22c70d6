// Package cache keeps a practice's active position list in Redis so chart
// reads skip the database between mutations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"organigramm/internal/domain"
)

const (
	keyPrefix        = "orgchart:positions:"
	generationPrefix = "orgchart:positions-gen:"

	// DefaultTTL bounds how stale a list can get if an invalidation is lost.
	DefaultTTL = 10 * time.Minute
)

var errStaleGeneration = errors.New("position list generation changed")

// Connect creates a client and verifies the connection with a ping.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Positions caches active position lists per practice. Errors are logged and
// treated as misses; the database stays the source of truth. Every practice
// has a generation counter that Invalidate bumps, so a list read from the
// database before a mutation committed is never stored after it.
type Positions struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewPositions(client *redis.Client, ttl time.Duration, log *zap.Logger) *Positions {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Positions{client: client, ttl: ttl, log: log}
}

func key(practiceID string) string { return keyPrefix + practiceID }

func generationKey(practiceID string) string { return generationPrefix + practiceID }

// Get returns the cached list of practiceID. On a miss it returns the
// practice's current generation, which the caller hands back to Set after
// reading the database.
func (c *Positions) Get(ctx context.Context, practiceID string) ([]domain.Position, uint64, bool) {
	vals, err := c.client.MGet(ctx, key(practiceID), generationKey(practiceID)).Result()
	if err != nil {
		c.log.Warn("position cache get", zap.String("practice_id", practiceID), zap.Error(err))
		return nil, 0, false
	}
	gen, err := parseGeneration(vals[1])
	if err != nil {
		c.log.Warn("position cache generation", zap.String("practice_id", practiceID), zap.Error(err))
		return nil, 0, false
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}
	var positions []domain.Position
	if err := json.Unmarshal([]byte(raw), &positions); err != nil {
		c.log.Warn("position cache decode", zap.String("practice_id", practiceID), zap.Error(err))
		return nil, gen, false
	}
	return positions, gen, true
}

// Set stores the list of practiceID with the configured TTL, unless the
// practice was invalidated after generation gen was read.
func (c *Positions) Set(ctx context.Context, practiceID string, gen uint64, positions []domain.Position) {
	if positions == nil {
		positions = []domain.Position{}
	}
	raw, err := json.Marshal(positions)
	if err != nil {
		c.log.Warn("position cache encode", zap.String("practice_id", practiceID), zap.Error(err))
		return
	}
	genKey := generationKey(practiceID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(practiceID), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		c.log.Debug("position cache set skipped", zap.String("practice_id", practiceID), zap.Uint64("generation", gen))
	default:
		c.log.Warn("position cache set", zap.String("practice_id", practiceID), zap.Error(err))
	}
}

// Invalidate bumps the generation of practiceID and drops its list.
func (c *Positions) Invalidate(ctx context.Context, practiceID string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(practiceID))
		pipe.Del(ctx, key(practiceID))
		return nil
	})
	if err != nil {
		c.log.Warn("position cache invalidate", zap.String("practice_id", practiceID), zap.Error(err))
	}
}

func parseGeneration(v any) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected generation %T", v)
	}
	return strconv.ParseUint(s, 10, 64)
}
