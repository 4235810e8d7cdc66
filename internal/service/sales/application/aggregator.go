package application

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"seckill/internal/pkg/logger"
	"seckill/internal/pkg/metrics"
	"seckill/internal/service/sales/domain"
)

// Aggregator 是销售聚合引擎：消费交易流，维护今日实时计数、
// 当日热销榜和按日历史汇总。
//
// 并发模型：日桶集合由一把读写锁保护，写路径短（几次整型累加）；
// 热销榜有自己的窄临界区（见 TopRanking）。读查询只拿一致快照，
// 从不阻塞在写路径上。
type Aggregator struct {
	mu      sync.RWMutex
	buckets map[string]*domain.DailyBucket
	today   string // 迄今观察到的最大日期，只有它的桶参与实时榜

	ranking *TopRanking
	dedup   domain.Deduper
	repo    domain.RollupRepository // 可选，nil 时关闭落库
	tracer  trace.Tracer

	// onIngest 在每次成功摄入后被调用（比如推送实时看板）。
	// 必须快速返回，重活由接收方自己排队。
	onIngest func(domain.Dashboard)

	// sealDay 在某个日期被封存时异步触发一次。
	sealDay func(bucket *domain.DailyBucket)
}

// NewAggregator 组装聚合引擎。
func NewAggregator(dedup domain.Deduper, repo domain.RollupRepository, tracer trace.Tracer) *Aggregator {
	return &Aggregator{
		buckets: make(map[string]*domain.DailyBucket),
		ranking: NewTopRanking(),
		dedup:   dedup,
		repo:    repo,
		tracer:  tracer,
	}
}

// OnIngest 注册摄入通知回调。
func (a *Aggregator) OnIngest(fn func(domain.Dashboard)) { a.onIngest = fn }

// OnSealDay 注册日封存回调。
func (a *Aggregator) OnSealDay(fn func(bucket *domain.DailyBucket)) { a.sealDay = fn }

// WarmStart 从落库镜像回放今天的桶，重启后热销榜和看板不归零。
func (a *Aggregator) WarmStart(ctx context.Context) error {
	if a.repo == nil {
		return nil
	}
	day := time.Now().UTC().Format(domain.DayLayout)
	bucket, err := a.repo.LoadDay(ctx, day)
	if err != nil {
		return errors.Wrap(err, "failed to warm start today's bucket")
	}
	if bucket == nil {
		return nil
	}

	a.mu.Lock()
	a.buckets[day] = bucket
	a.today = day
	a.mu.Unlock()

	a.ranking.Rebuild(bucket)
	logger.Ctx(ctx).Info().Str("day", day).Int64("units", bucket.TotalUnits).Msg("✅ warm-started today's aggregates")
	return nil
}

// Ingest 摄入一条销售事件。
// 幂等：同一 EventID 重复投递返回 domain.ErrDuplicateEvent 且
// 不改变任何累计值；调用方应把它当作成功吸收，而不是失败。
func (a *Aggregator) Ingest(ctx context.Context, event *domain.SaleEvent) error {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "sales.Ingest")
	defer span.End()

	if err := event.Validate(); err != nil {
		span.RecordError(err)
		return err
	}
	day := event.Day()
	span.SetAttributes(
		attribute.String("sale.event.id", event.EventID),
		attribute.String("sale.product.id", event.ProductID),
		attribute.String("sale.day", day),
	)

	first, err := a.dedup.FirstSeen(ctx, day, event.EventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dedup check failed")
		return errors.Wrap(domain.ErrUnavailable, err.Error())
	}
	if !first {
		metrics.DuplicateEvents.Inc()
		span.AddEvent("duplicate event absorbed")
		return domain.ErrDuplicateEvent
	}

	var sealed *domain.DailyBucket
	var dash domain.Dashboard

	a.mu.Lock()
	bucket, ok := a.buckets[day]
	if !ok {
		bucket = domain.NewDailyBucket(day)
		a.buckets[day] = bucket
	}
	bucket.Apply(event)

	switch {
	case a.today == "":
		a.today = day
		a.ranking.Rebuild(bucket)
	case day > a.today:
		// 观察到更晚的日期：旧的"今天"封存，榜单切到新的一天
		sealed = a.buckets[a.today].Snapshot()
		a.today = day
		a.ranking.Rebuild(bucket)
	case day == a.today:
		a.ranking.Update(event.ProductID, bucket.Products[event.ProductID].Quantity)
	default:
		// 迟到事件修正历史桶，不碰实时榜
		span.AddEvent("late event applied to sealed day")
	}
	if a.today == day {
		dash = dashboardOf(bucket)
	} else {
		dash = dashboardOf(a.buckets[a.today])
	}
	a.mu.Unlock()

	metrics.IngestedEvents.Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	if a.repo != nil {
		go a.persistSale(day, event)
	}
	if sealed != nil && a.sealDay != nil {
		go a.sealDay(sealed)
	}
	if a.onIngest != nil {
		a.onIngest(dash)
	}
	return nil
}

// GetTodayDashboard 今日实时看板。
// 对 Ingest 可线性化：读开始前完成的摄入一定可见。
func (a *Aggregator) GetTodayDashboard(ctx context.Context) (domain.Dashboard, error) {
	_, span := a.tracer.Start(ctx, "sales.GetTodayDashboard")
	defer span.End()

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.today == "" {
		return domain.Dashboard{Date: time.Now().UTC().Format(domain.DayLayout)}, nil
	}
	return dashboardOf(a.buckets[a.today]), nil
}

// GetHotProducts 当日热销 Top-limit，销量降序、同量按商品 ID 升序。
func (a *Aggregator) GetHotProducts(ctx context.Context, limit int) ([]domain.HotEntry, error) {
	_, span := a.tracer.Start(ctx, "sales.GetHotProducts")
	defer span.End()

	if limit < 1 {
		return nil, domain.ErrInvalidLimit
	}
	return a.ranking.Top(limit), nil
}

// GetDailyHistory 返回 [from, to]（含两端）每天一个桶快照，按日期升序；
// 没有销售的日子返回零值桶而不是缺席。
func (a *Aggregator) GetDailyHistory(ctx context.Context, from, to time.Time) ([]*domain.DailyBucket, error) {
	ctx, span := a.tracer.Start(ctx, "sales.GetDailyHistory")
	defer span.End()

	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	if to.Before(from) {
		return nil, domain.ErrInvalidRange
	}

	var result []*domain.DailyBucket
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		day := d.Format(domain.DayLayout)

		a.mu.RLock()
		bucket, ok := a.buckets[day]
		var snapshot *domain.DailyBucket
		if ok {
			snapshot = bucket.Snapshot()
		}
		a.mu.RUnlock()

		if snapshot == nil && a.repo != nil {
			// 内存里没有（比如重启前的历史日），查落库镜像
			loaded, err := a.repo.LoadDay(ctx, day)
			if err != nil {
				span.RecordError(err)
				return nil, errors.Wrap(domain.ErrUnavailable, err.Error())
			}
			snapshot = loaded
		}
		if snapshot == nil {
			snapshot = domain.NewDailyBucket(day)
		}
		result = append(result, snapshot)
	}
	return result, nil
}

func (a *Aggregator) persistSale(day string, event *domain.SaleEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.repo.AddSale(ctx, day, event.ProductID, event.Quantity, event.RevenueCents()); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("day", day).Str("product", event.ProductID).
			Msg("failed to persist daily sale rollup")
	}
}

func dashboardOf(b *domain.DailyBucket) domain.Dashboard {
	return domain.Dashboard{
		Date:                 b.Date,
		OrderCount:           b.OrderCount,
		TotalUnits:           b.TotalUnits,
		TotalRevenueCents:    b.TotalRevenueCents,
		DistinctProductsSold: len(b.Products),
	}
}
