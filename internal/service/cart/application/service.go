package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"seckill/internal/pkg/logger"
	"seckill/internal/pkg/metrics"
	"seckill/internal/service/cart/domain"
)

const defaultMaxRetries = 3

// CartService 是购物车一致性引擎的应用服务。
//
// 并发模型：不同用户的写完全并行；同一用户的写通过
// 底层存储的版本比对（CAS）+ 有界重试串行化。重试耗尽返回
// domain.ErrConflict，由调用方重新读取后重提，避免长持锁。
type CartService struct {
	repo      domain.Repository
	prices    domain.PriceResolver
	rules     domain.RuleEngine     // 可选，nil 时不启用限购
	snapshots domain.SnapshotStore  // 可选，nil 时关闭异步落库
	tracer    trace.Tracer

	maxRetries int
	sfg        singleflight.Group // 读路径防缓存击穿
	now        func() time.Time
}

// NewCartService 组装一个购物车服务。
func NewCartService(repo domain.Repository, prices domain.PriceResolver, rules domain.RuleEngine, snapshots domain.SnapshotStore, tracer trace.Tracer, maxRetries int) *CartService {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &CartService{
		repo:       repo,
		prices:     prices,
		rules:      rules,
		snapshots:  snapshots,
		tracer:     tracer,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// GetCart 读取购物车。购物车不存在等价于空购物车，从不报"未找到"。
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	ctx, span := s.tracer.Start(ctx, "cart.GetCart")
	defer span.End()

	// 同一用户的并发读合并为一次存储访问
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		return s.repo.Load(ctx, userID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// AddItem 加购。同一商品重复加购做数量合并而非覆盖；
// 新条目在加购时刻拍下价格快照。
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int64) (*domain.Cart, error) {
	if err := validateIDs(userID, productID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	ctx, span := s.tracer.Start(ctx, "cart.AddItem")
	defer span.End()
	span.SetAttributes(
		attribute.String("cart.user.id", userID),
		attribute.String("cart.product.id", productID),
		attribute.Int64("cart.quantity", quantity),
	)

	return s.mutate(ctx, span, "add", userID, func(ctx context.Context, cart *domain.Cart) error {
		if err := s.checkLimit(productID, quantity, cart.LineQuantity(productID)+quantity); err != nil {
			return err
		}
		var unitPrice int64
		if cart.LineQuantity(productID) == 0 {
			// 新条目在此刻拍价格快照；已有条目保留原快照
			p, err := s.prices.PriceCents(ctx, productID)
			if err != nil {
				if errors.Is(err, domain.ErrInvalidProduct) {
					return err
				}
				return errors.Wrap(domain.ErrUnavailable, err.Error())
			}
			unitPrice = p
		}
		cart.AddLine(productID, quantity, unitPrice, s.now())
		return nil
	})
}

// UpdateItem 覆盖语义的改量；数量 0 等价于删除。
// 条目不存在时返回 domain.ErrLineNotFound。
func (s *CartService) UpdateItem(ctx context.Context, userID, productID string, quantity int64) (*domain.Cart, error) {
	if err := validateIDs(userID, productID); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	ctx, span := s.tracer.Start(ctx, "cart.UpdateItem")
	defer span.End()
	span.SetAttributes(
		attribute.String("cart.user.id", userID),
		attribute.String("cart.product.id", productID),
		attribute.Int64("cart.quantity", quantity),
	)

	return s.mutate(ctx, span, "update", userID, func(ctx context.Context, cart *domain.Cart) error {
		if quantity > 0 {
			if err := s.checkLimit(productID, quantity, quantity); err != nil {
				return err
			}
		}
		return cart.SetLineQuantity(productID, quantity, s.now())
	})
}

// RemoveItem 删除条目。幂等：删除不存在的条目返回未变的购物车。
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	if err := validateIDs(userID, productID); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "cart.RemoveItem")
	defer span.End()

	return s.mutate(ctx, span, "remove", userID, func(ctx context.Context, cart *domain.Cart) error {
		if _, ok := cart.Lines[productID]; !ok {
			return errNoChange
		}
		cart.RemoveLine(productID, s.now())
		return nil
	})
}

// ClearCart 清空购物车。幂等。
func (s *CartService) ClearCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	ctx, span := s.tracer.Start(ctx, "cart.ClearCart")
	defer span.End()

	cart, err := s.mutate(ctx, span, "clear", userID, func(ctx context.Context, cart *domain.Cart) error {
		if len(cart.Lines) == 0 {
			return errNoChange
		}
		cart.Clear(s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.snapshots != nil {
		go s.deleteSnapshot(userID)
	}
	return cart, nil
}

// errNoChange 标记"本次操作是空操作"，跳过写回直接返回当前状态。
var errNoChange = errors.New("cart: no change")

// mutate 执行一次购物车写操作：读取-计算-带版本写回，
// 冲突时整体重试，最多 maxRetries 次。
func (s *CartService) mutate(ctx context.Context, span trace.Span, op, userID string, apply func(context.Context, *domain.Cart) error) (*domain.Cart, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		current, err := s.repo.Load(ctx, userID)
		if err != nil {
			metrics.CartMutations.WithLabelValues(op, "unavailable").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "load failed")
			return nil, err
		}

		next := current.Clone()
		if err := apply(ctx, next); err != nil {
			if errors.Is(err, errNoChange) {
				metrics.CartMutations.WithLabelValues(op, "noop").Inc()
				return current, nil
			}
			metrics.CartMutations.WithLabelValues(op, "rejected").Inc()
			span.RecordError(err)
			return nil, err
		}

		err = s.repo.CompareAndSwap(ctx, next, current.Version)
		if err == nil {
			metrics.CartMutations.WithLabelValues(op, "ok").Inc()
			if s.snapshots != nil {
				go s.syncSnapshot(next.Clone())
			}
			return next, nil
		}
		if errors.Is(err, domain.ErrVersionMismatch) {
			// 并发写抢先提交，重读后整体重试
			metrics.CartCASConflicts.Inc()
			span.AddEvent("cas conflict, retrying")
			continue
		}
		metrics.CartMutations.WithLabelValues(op, "unavailable").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "cas failed")
		return nil, err
	}

	metrics.CartMutations.WithLabelValues(op, "conflict").Inc()
	span.SetStatus(codes.Error, "retries exhausted")
	return nil, domain.ErrConflict
}

func (s *CartService) checkLimit(productID string, quantity, lineQuantity int64) error {
	if s.rules == nil {
		return nil
	}
	ok, err := s.rules.Allow(map[string]interface{}{
		"productId":    productID,
		"quantity":     quantity,
		"lineQuantity": lineQuantity,
	})
	if err != nil {
		return errors.Wrap(err, "purchase limit rule evaluation failed")
	}
	if !ok {
		return domain.ErrLimitExceeded
	}
	return nil
}

// syncSnapshot 把购物车异步落库（write-behind）。失败只记日志。
func (s *CartService) syncSnapshot(cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.snapshots.SaveSnapshot(ctx, cart); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("user", cart.UserID).Msg("failed to sync cart snapshot")
	}
}

func (s *CartService) deleteSnapshot(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.snapshots.DeleteSnapshot(ctx, userID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("user", userID).Msg("failed to delete cart snapshot")
	}
}

func validateIDs(userID, productID string) error {
	if userID == "" {
		return domain.ErrInvalidUser
	}
	if productID == "" {
		return domain.ErrInvalidProduct
	}
	return nil
}
