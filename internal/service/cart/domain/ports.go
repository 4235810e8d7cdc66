package domain

import "context"

// Repository 是购物车文档的持久化端口。
// 实现必须保证 CompareAndSwap 的原子性：只有当存储中的版本等于
// expectedVersion 时写入才生效，并把版本推进到 expectedVersion+1；
// 否则返回 ErrVersionMismatch 且不产生任何副作用。
type Repository interface {
	// Load 读取购物车。不存在时返回 Version 0 的空购物车，而不是错误。
	Load(ctx context.Context, userID string) (*Cart, error)

	// CompareAndSwap 带版本守卫地写回整个文档。
	// cart.Version 由实现负责推进，调用方不应预先修改。
	CompareAndSwap(ctx context.Context, cart *Cart, expectedVersion int64) error
}

// PriceResolver 在加购时解析价格快照（分）。
// 商品目录不在本系统范围内，这里只约定取价操作。
type PriceResolver interface {
	PriceCents(ctx context.Context, productID string) (int64, error)
}

// RuleEngine 评估限购规则。fact 的键与配置的规则表达式中的变量一致。
type RuleEngine interface {
	Allow(fact map[string]interface{}) (bool, error)
}

// SnapshotStore 是购物车文档的异步落库端口（write-behind）。
// 同步失败只记日志，从不阻塞或回滚购物车主流程。
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, cart *Cart) error
	DeleteSnapshot(ctx context.Context, userID string) error
}
