package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"mycareerbox/internal/model"
)

// SessionCache stores each browser session, including its cached record
// list, as one JSON value.
type SessionCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewSessionCache(client *redisv9.Client, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the stored session, or false when it expired or never existed.
func (c *SessionCache) Get(ctx context.Context, sessionID string) (*model.Session, bool, error) {
	raw, err := c.client.Get(ctx, c.sessionKey(sessionID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get session failed: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached session failed: %w", err)
	}
	return &sess, true, nil
}

// Save writes the session and refreshes its TTL.
func (c *SessionCache) Save(ctx context.Context, sess *model.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	if err := c.client.Set(ctx, c.sessionKey(sess.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session failed: %w", err)
	}
	return nil
}

func (c *SessionCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func (c *SessionCache) sessionKey(sessionID string) string {
	return fmt.Sprintf("tracker:session:%s", sessionID)
}
