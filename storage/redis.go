package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nytdevansh/V-Face-sub001/interfaces"
)

const consentKeyPrefix = "consent:v1:"

// NewRedisClient configures a Redis client from a URL and verifies
// connectivity before handing it out.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisConsentStore keeps pending consent requests in Redis with a real
// key TTL, so pending requests expire server-side even across restarts.
// Consume uses GETDEL, making single-use approval atomic.
type RedisConsentStore struct {
	client *redis.Client
}

// NewRedisConsentStore wraps an existing Redis client.
func NewRedisConsentStore(client *redis.Client) *RedisConsentStore {
	return &RedisConsentStore{client: client}
}

// Put stores a request under its id for the given TTL.
func (s *RedisConsentStore) Put(ctx context.Context, req interfaces.ConsentRequest, ttl time.Duration) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("serialize consent request: %w", err)
	}
	if err := s.client.Set(ctx, consentKeyPrefix+req.RequestID, data, ttl).Err(); err != nil {
		return fmt.Errorf("store consent request: %w", err)
	}
	return nil
}

// Get retrieves a live request.
func (s *RedisConsentStore) Get(ctx context.Context, id string) (interfaces.ConsentRequest, bool, error) {
	data, err := s.client.Get(ctx, consentKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return interfaces.ConsentRequest{}, false, nil
	}
	if err != nil {
		return interfaces.ConsentRequest{}, false, fmt.Errorf("load consent request: %w", err)
	}

	var req interfaces.ConsentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return interfaces.ConsentRequest{}, false, fmt.Errorf("parse consent request: %w", err)
	}
	return req, true, nil
}

// Consume atomically retrieves and deletes a live request.
func (s *RedisConsentStore) Consume(ctx context.Context, id string) (interfaces.ConsentRequest, bool, error) {
	data, err := s.client.GetDel(ctx, consentKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return interfaces.ConsentRequest{}, false, nil
	}
	if err != nil {
		return interfaces.ConsentRequest{}, false, fmt.Errorf("consume consent request: %w", err)
	}

	var req interfaces.ConsentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return interfaces.ConsentRequest{}, false, fmt.Errorf("parse consent request: %w", err)
	}
	return req, true, nil
}
