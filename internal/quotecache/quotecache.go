// Package quotecache remembers the quotes each user was shown recently so
// the quote of the day does not repeat.
package quotecache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	HistorySize = 5
	HistoryTTL  = 7 * 24 * time.Hour
)

func key(userID string) string {
	return "quotes:seen:" + userID
}

type Redis struct {
	client *redis.Client
}

func NewRedis(redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

func (r *Redis) Recent(ctx context.Context, userID string) ([]int64, error) {
	vals, err := r.client.LRange(ctx, key(userID), 0, HistorySize-1).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *Redis) Remember(ctx context.Context, userID string, quoteID int64) error {
	k := key(userID)

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, k, quoteID)
	pipe.LTrim(ctx, k, 0, HistorySize-1)
	pipe.Expire(ctx, k, HistoryTTL)

	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Close() error {
	return r.client.Close()
}

type entry struct {
	ids     []int64
	expires time.Time
}

// Memory is the single-process fallback used when REDIS_URL is not set.
type Memory struct {
	mu      sync.Mutex
	history map[string]*entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		history: make(map[string]*entry),
		now:     time.Now,
	}
}

func (m *Memory) Recent(_ context.Context, userID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.history[userID]
	if !ok {
		return nil, nil
	}
	if m.now().After(e.expires) {
		delete(m.history, userID)
		return nil, nil
	}
	return append([]int64{}, e.ids...), nil
}

func (m *Memory) Remember(_ context.Context, userID string, quoteID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.history[userID]
	if !ok {
		e = &entry{}
		m.history[userID] = e
	}
	e.ids = append([]int64{quoteID}, e.ids...)
	if len(e.ids) > HistorySize {
		e.ids = e.ids[:HistorySize]
	}
	e.expires = m.now().Add(HistoryTTL)
	return nil
}
