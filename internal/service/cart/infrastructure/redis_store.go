package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"seckill/internal/pkg/redis"
	"seckill/internal/service/cart/domain"
)

const casScriptName = "cart_cas"

// RedisCartStore 是 domain.Repository 的 Redis 实现。
// 购物车文档整体存为 JSON，版本号单独存一个 key，
// 两个 key 通过 hash tag 落在同一个 slot，保证 Lua 脚本在
// Cluster 模式下也能原子执行比较-写入。
type RedisCartStore struct {
	client *redis.Client
}

// NewRedisCartStore 创建存储实例，并在此时加载 CAS 脚本。
func NewRedisCartStore(client *redis.Client) (*RedisCartStore, error) {
	if err := client.LoadScriptFromContent(casScriptName, casScript); err != nil {
		return nil, fmt.Errorf("failed to load cart cas script: %w", err)
	}
	return &RedisCartStore{client: client}, nil
}

func dataKey(userID string) string    { return fmt.Sprintf("cart:data:{%s}", userID) }
func versionKey(userID string) string { return fmt.Sprintf("cart:ver:{%s}", userID) }

// Load 读取购物车。key 不存在时返回 Version 0 的空购物车。
func (s *RedisCartStore) Load(ctx context.Context, userID string) (*domain.Cart, error) {
	pipe := s.client.GetClient().Pipeline()
	dataCmd := pipe.Get(ctx, dataKey(userID))
	verCmd := pipe.Get(ctx, versionKey(userID))
	_, err := pipe.Exec(ctx)
	if err != nil && err != goredis.Nil {
		return nil, errors.Wrap(domain.ErrUnavailable, err.Error())
	}

	data, err := dataCmd.Bytes()
	if err == goredis.Nil {
		return domain.NewEmptyCart(userID), nil
	}
	if err != nil {
		return nil, errors.Wrap(domain.ErrUnavailable, err.Error())
	}

	cart := domain.NewEmptyCart(userID)
	if err := json.Unmarshal(data, cart); err != nil {
		return nil, errors.Wrapf(err, "corrupt cart document for user %s", userID)
	}
	if ver, err := verCmd.Int64(); err == nil {
		cart.Version = ver
	}
	return cart, nil
}

// CompareAndSwap 带版本守卫写回文档。版本不匹配返回 domain.ErrVersionMismatch。
func (s *RedisCartStore) CompareAndSwap(ctx context.Context, cart *domain.Cart, expectedVersion int64) error {
	next := expectedVersion + 1
	cart.Version = next

	payload, err := json.Marshal(cart)
	if err != nil {
		return errors.Wrap(err, "failed to marshal cart document")
	}

	keys := []string{dataKey(cart.UserID), versionKey(cart.UserID)}
	result, err := s.client.RunScript(ctx, casScriptName, keys, expectedVersion, payload)
	if err != nil {
		cart.Version = expectedVersion
		return errors.Wrap(domain.ErrUnavailable, err.Error())
	}

	code, ok := result.(int64)
	if !ok {
		cart.Version = expectedVersion
		return errors.Errorf("unexpected result type from cas script: %T", result)
	}
	if code == 0 {
		cart.Version = expectedVersion
		return domain.ErrVersionMismatch
	}
	return nil
}

var casScript = `
-- KEYS[1]: 购物车文档, 例如: cart:data:{user-42}
-- KEYS[2]: 版本号,     例如: cart:ver:{user-42}
-- ARGV[1]: 期望的当前版本
-- ARGV[2]: 新的文档 JSON

local ver = tonumber(redis.call('get', KEYS[2]) or '0')
if ver ~= tonumber(ARGV[1]) then
    return 0 -- 版本不匹配，有并发写抢先提交
end

redis.call('set', KEYS[1], ARGV[2])
redis.call('set', KEYS[2], ver + 1)
return 1
`
