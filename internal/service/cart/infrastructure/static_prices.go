package infrastructure

import (
	"context"

	"seckill/internal/service/cart/domain"
)

// StaticPriceResolver 从配置的价格表解析价格快照。
// 商品目录服务不在本系统范围内；接入真实目录时替换这个实现即可。
type StaticPriceResolver struct {
	table        map[string]int64
	defaultCents int64
}

func NewStaticPriceResolver(table map[string]int64, defaultCents int64) *StaticPriceResolver {
	return &StaticPriceResolver{table: table, defaultCents: defaultCents}
}

func (r *StaticPriceResolver) PriceCents(_ context.Context, productID string) (int64, error) {
	if cents, ok := r.table[productID]; ok {
		return cents, nil
	}
	if r.defaultCents > 0 {
		return r.defaultCents, nil
	}
	return 0, domain.ErrInvalidProduct
}
