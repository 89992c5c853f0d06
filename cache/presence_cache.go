package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	projectOnlineKey   = "project:%s:online"      // Set: user ids with a live session
	projectPresenceKey = "project:%s:presence:%s" // String: heartbeat key per (project, user)
	presenceTTL        = 60 * time.Second
)

// PresenceCache mirrors which users hold a live session on each project
// channel. Heartbeats keep entries fresh; a silent client ages out after
// presenceTTL.
type PresenceCache struct {
	client *redis.Client
}

// NewPresenceCache creates a presence cache on the shared client.
func NewPresenceCache() *PresenceCache {
	return &PresenceCache{client: RedisClient}
}

// SetOnline marks the user online on the project channel.
func (c *PresenceCache) SetOnline(ctx context.Context, projectID, userID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	pipe := c.client.Pipeline()
	pipe.SAdd(ctx, fmt.Sprintf(projectOnlineKey, projectID), userID)
	pipe.Set(ctx, fmt.Sprintf(projectPresenceKey, projectID, userID), time.Now().Unix(), presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SetOffline removes the user from the project channel's online set.
func (c *PresenceCache) SetOffline(ctx context.Context, projectID, userID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	pipe := c.client.Pipeline()
	pipe.SRem(ctx, fmt.Sprintf(projectOnlineKey, projectID), userID)
	pipe.Del(ctx, fmt.Sprintf(projectPresenceKey, projectID, userID))
	_, err := pipe.Exec(ctx)
	return err
}

// Heartbeat refreshes the user's presence TTL.
func (c *PresenceCache) Heartbeat(ctx context.Context, projectID, userID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	return c.client.Set(ctx,
		fmt.Sprintf(projectPresenceKey, projectID, userID),
		time.Now().Unix(), presenceTTL).Err()
}

// OnlineUsers lists the user ids whose heartbeat is still fresh, pruning
// stale entries from the online set as it goes.
func (c *PresenceCache) OnlineUsers(ctx context.Context, projectID string) ([]string, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	members, err := c.client.SMembers(ctx, fmt.Sprintf(projectOnlineKey, projectID)).Result()
	if err != nil {
		return nil, err
	}

	online := make([]string, 0, len(members))
	for _, userID := range members {
		exists, err := c.client.Exists(ctx, fmt.Sprintf(projectPresenceKey, projectID, userID)).Result()
		if err != nil {
			return nil, err
		}
		if exists > 0 {
			online = append(online, userID)
		} else {
			c.client.SRem(ctx, fmt.Sprintf(projectOnlineKey, projectID), userID)
		}
	}
	return online, nil
}

// OnlineCount returns how many users are online on the project channel.
func (c *PresenceCache) OnlineCount(ctx context.Context, projectID string) (int64, error) {
	users, err := c.OnlineUsers(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return int64(len(users)), nil
}
