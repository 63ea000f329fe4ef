package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "homeworkbot/pkg/logx"
)

const defaultRedisKey = "homeworkbot:deliveries"

// redisStore keeps the journal in a list, newest at the head.
type redisStore struct {
	client *redis.Client
	key    string
	max    int
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = defaultRedisKey
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// A failed ping is not fatal: the client reconnects on the next command.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis ping failed", logx.String("addr", addr), logx.Err(err))
	}
	return &redisStore{client: rdb, key: key, max: cfg.MaxEntries, log: log}, nil
}

func (s *redisStore) Close() error { return s.client.Close() }

func (s *redisStore) AppendDelivery(ctx context.Context, d Delivery) error {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, b)
	if s.max > 0 {
		pipe.LTrim(ctx, s.key, 0, int64(s.max-1))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) Recent(ctx context.Context, n int) ([]Delivery, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	items, err := s.client.LRange(ctx, s.key, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Delivery, 0, len(items))
	for _, raw := range items {
		var d Delivery
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			s.log.Debug("skipping malformed journal entry", logx.Err(err))
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
