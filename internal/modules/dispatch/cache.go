// README: Redis snapshot cache for observe reads; writes only ever move a ride forward.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

const snapshotKeyPrefix = "dispatch:ride:%s"

// putIfNewer stores the snapshot only when its version is above the cached one.
var putIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'body', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{redis: client, ttl: ttl}
}

func (c *RedisCache) Put(ctx context.Context, r ride.Ride) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return putIfNewer.Run(ctx, c.redis, []string{snapshotKey(r.ID)}, r.Version, body, c.ttl.Milliseconds()).Err()
}

func (c *RedisCache) Get(ctx context.Context, id types.ID) (ride.Ride, bool, error) {
	body, err := c.redis.HGet(ctx, snapshotKey(id), "body").Bytes()
	if err == redis.Nil {
		return ride.Ride{}, false, nil
	}
	if err != nil {
		return ride.Ride{}, false, err
	}
	var r ride.Ride
	if err := json.Unmarshal(body, &r); err != nil {
		return ride.Ride{}, false, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return r, true, nil
}

func snapshotKey(id types.ID) string {
	return fmt.Sprintf(snapshotKeyPrefix, string(id))
}
