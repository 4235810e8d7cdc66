package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"seckill/internal/pkg/redis"
)

// RedisDeduper 是 domain.Deduper 的 Redis 实现：
// 每天一个集合 stat:seen:{yyyyMMdd}，SADD 的返回值天然区分首见/重复。
// 集合带过期时间，重投窗口过了之后整体回收，满足"有界"的要求。
// 多副本部署时用它替代进程内去重，保证集群级幂等。
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, day, eventID string) (bool, error) {
	key := fmt.Sprintf("stat:seen:{%s}", day)

	pipe := d.client.GetClient().Pipeline()
	addCmd := pipe.SAdd(ctx, key, eventID)
	pipe.Expire(ctx, key, d.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "dedup sadd failed")
	}
	return addCmd.Val() == 1, nil
}
