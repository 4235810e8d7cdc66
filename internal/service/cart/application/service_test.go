package application

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"seckill/internal/service/cart/domain"
	"seckill/internal/service/cart/infrastructure"
)

type fixedPrices struct {
	cents int64
}

func (p fixedPrices) PriceCents(context.Context, string) (int64, error) {
	return p.cents, nil
}

// quantityCap 模拟限购规则：单条目数量不得超过 cap
type quantityCap struct {
	cap int64
}

func (r quantityCap) Allow(fact map[string]interface{}) (bool, error) {
	return fact["lineQuantity"].(int64) <= r.cap, nil
}

// contendingRepo 在前 n 次写入时返回版本冲突，用来验证重试路径
type contendingRepo struct {
	domain.Repository
	mu        sync.Mutex
	conflicts int
}

func (r *contendingRepo) CompareAndSwap(ctx context.Context, cart *domain.Cart, expectedVersion int64) error {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return domain.ErrVersionMismatch
	}
	r.mu.Unlock()
	return r.Repository.CompareAndSwap(ctx, cart, expectedVersion)
}

func newService(repo domain.Repository, rules domain.RuleEngine) *CartService {
	tracer := noop.NewTracerProvider().Tracer("test")
	return NewCartService(repo, fixedPrices{cents: 1000}, rules, nil, tracer, 3)
}

func TestGetCartReturnsEmptyCartForUnknownUser(t *testing.T) {
	svc := newService(infrastructure.NewMemoryCartStore(), nil)

	cart, err := svc.GetCart(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
	assert.Equal(t, int64(0), cart.Version)
}

func TestAddItemMergesSameProduct(t *testing.T) {
	svc := newService(infrastructure.NewMemoryCartStore(), nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, "u1", "p1", 3)
	require.NoError(t, err)

	assert.Equal(t, int64(5), cart.Lines["p1"].Quantity)
	assert.Equal(t, int64(2), cart.Version, "two mutations, two version bumps")
}

func TestAddItemValidation(t *testing.T) {
	svc := newService(infrastructure.NewMemoryCartStore(), nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	_, err = svc.AddItem(ctx, "u1", "", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)
	_, err = svc.AddItem(ctx, "", "p1", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestPurchaseLimit(t *testing.T) {
	svc := newService(infrastructure.NewMemoryCartStore(), quantityCap{cap: 3})
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 2)
	require.NoError(t, err)

	// 2 + 2 超过限购上限 3
	_, err = svc.AddItem(ctx, "u1", "p1", 2)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)

	// 被拒的操作不得有副作用
	cart, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cart.Lines["p1"].Quantity)
}

func TestUpdateItem(t *testing.T) {
	svc := newService(infrastructure.NewMemoryCartStore(), nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 5)
	require.NoError(t, err)

	cart, err := svc.UpdateItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cart.Lines["p1"].Quantity)

	// 数量 0 等价于删除
	cart, err = svc.UpdateItem(ctx, "u1", "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	// 更新不存在的条目
	_, err = svc.UpdateItem(ctx, "u1", "p1", 2)
	assert.ErrorIs(t, err, domain.ErrLineNotFound)
}

func TestRemoveItemIsIdempotent(t *testing.T) {
	svc := newService(infrastructure.NewMemoryCartStore(), nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 2)
	require.NoError(t, err)

	first, err := svc.RemoveItem(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Empty(t, first.Lines)

	// 再删不是错误，购物车状态与删一次相同
	second, err := svc.RemoveItem(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Empty(t, second.Lines)
	assert.Equal(t, first.Version, second.Version, "no-op must not bump the version")
}

func TestClearCartIsIdempotent(t *testing.T) {
	svc := newService(infrastructure.NewMemoryCartStore(), nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", "p2", 1)
	require.NoError(t, err)

	first, err := svc.ClearCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, first.Lines)

	second, err := svc.ClearCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, second.Lines)
	assert.Equal(t, first.Version, second.Version)
}

func TestMutationRetriesThenSucceeds(t *testing.T) {
	repo := &contendingRepo{Repository: infrastructure.NewMemoryCartStore(), conflicts: 2}
	svc := newService(repo, nil)

	cart, err := svc.AddItem(context.Background(), "u1", "p1", 1)
	require.NoError(t, err, "two conflicts fit inside the retry budget of 3")
	assert.Equal(t, int64(1), cart.Lines["p1"].Quantity)
}

func TestMutationSurfacesConflictWhenRetriesExhausted(t *testing.T) {
	repo := &contendingRepo{Repository: infrastructure.NewMemoryCartStore(), conflicts: 100}
	svc := newService(repo, nil)

	_, err := svc.AddItem(context.Background(), "u1", "p1", 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// 同一用户并发加购不同商品，两边都必须落到最终购物车里（不丢更新）。
func TestConcurrentAddsAreNotLost(t *testing.T) {
	svc := newService(infrastructure.NewMemoryCartStore(), nil)
	ctx := context.Background()

	const workers = 8
	const addsPerWorker = 20

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			product := fmt.Sprintf("p%d", w)
			for i := 0; i < addsPerWorker; i++ {
				// 竞争下单次调用可能冲突耗尽，重试到成功为止
				for {
					if _, err := svc.AddItem(ctx, "u1", product, 1); err == nil {
						break
					} else if err != domain.ErrConflict {
						t.Errorf("unexpected error: %v", err)
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()

	cart, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, workers)
	for w := 0; w < workers; w++ {
		assert.Equal(t, int64(addsPerWorker), cart.Lines[fmt.Sprintf("p%d", w)].Quantity)
	}
}

// 规格里的端到端样例：加 2 再加 3 得 5，改成 1，删掉后购物车为空。
func TestEndToEndScenario(t *testing.T) {
	svc := newService(infrastructure.NewMemoryCartStore(), nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "P1", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", "P1", 3)
	require.NoError(t, err)

	cart, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), cart.Lines["P1"].Quantity)

	_, err = svc.UpdateItem(ctx, "u1", "P1", 1)
	require.NoError(t, err)
	cart, err = svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cart.Lines["P1"].Quantity)

	_, err = svc.RemoveItem(ctx, "u1", "P1")
	require.NoError(t, err)
	cart, err = svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
}
