package domain

import "context"

// Deduper 是事件幂等检查的端口。
// FirstSeen 对第一次出现的 id 返回 true 并记住它；重复 id 返回 false。
// 实现必须有界（容量内淘汰或按日过期），不能无限增长。
type Deduper interface {
	FirstSeen(ctx context.Context, day, eventID string) (bool, error)
}

// RollupRepository 是日销数据的持久化端口（write-behind 镜像）。
type RollupRepository interface {
	// AddSale 把一条首次出现的事件增量记入 (day, productId) 行。
	AddSale(ctx context.Context, day, productID string, quantity, revenueCents int64) error

	// SealDay 封存一个日期：用内存桶的最终值整行覆盖，
	// 抹平增量 upsert 期间可能产生的偏差。幂等。
	SealDay(ctx context.Context, bucket *DailyBucket) error

	// LoadDay 读取某天的桶，没有记录时返回 nil（不是错误）。
	// 聚合引擎重启后用它回放当天的状态。
	LoadDay(ctx context.Context, day string) (*DailyBucket, error)
}
