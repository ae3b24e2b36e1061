package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"

	"github.com/ethereum-optimism/infra/op-session/types"
)

// DefaultRedisKey is the list summaries are pushed to
const DefaultRedisKey = "op-session:summaries"

// RedisSink pushes each summary onto a capped list, newest first
type RedisSink struct {
	client  redis.UniversalClient
	key     string
	maxKept int64
}

// NewRedisClient parses url and verifies the connection
func NewRedisClient(ctx context.Context, url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := CheckRedisConnection(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	log.Info("Connected to redis summary store", "addr", opts.Addr)
	return client, nil
}

func CheckRedisConnection(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("error connecting to redis: %w", err)
	}
	return nil
}

func NewRedisSink(client redis.UniversalClient, key string) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSink{client: client, key: key, maxKept: 100}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Emit(ctx context.Context, summary *types.ExecutionSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, s.key, payload)
	pipe.LTrim(ctx, s.key, 0, s.maxKept-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store summary in redis: %w", err)
	}
	return nil
}
