package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"seckill/internal/service/sales/application"
	"seckill/internal/service/sales/domain"
)

// outageDeduper 前 failures 次调用报错，之后委托给内存实现。
type outageDeduper struct {
	inner    *application.MemoryDeduper
	failures int
}

func (d *outageDeduper) FirstSeen(ctx context.Context, day, eventID string) (bool, error) {
	if d.failures > 0 {
		d.failures--
		return false, fmt.Errorf("redis: connection refused")
	}
	return d.inner.FirstSeen(ctx, day, eventID)
}

func feedMessage(t *testing.T, event domain.SaleEvent) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(&event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(event.ProductID), Value: payload}
}

func TestProcessMessageAbsorbsSuccessAndDuplicate(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	agg := application.NewAggregator(application.NewMemoryDeduper(64), nil, tracer)
	adapter := NewFeedConsumerAdapter(nil, agg)
	ctx := context.Background()

	msg := feedMessage(t, domain.SaleEvent{
		EventID: "evt-1", ProductID: "p1", Quantity: 2, UnitPriceCents: 500,
		OccurredAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	})

	require.NoError(t, adapter.processMessage(ctx, msg))
	// 重投被幂等吸收，同样允许提交
	require.NoError(t, adapter.processMessage(ctx, msg))

	dash, err := agg.GetTodayDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), dash.TotalUnits)
}

// 瞬时失败必须上抛，offset 不能提交；重试成功后事件要被计入。
func TestProcessMessageSurfacesTransientFailure(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	dedup := &outageDeduper{inner: application.NewMemoryDeduper(64), failures: 1}
	agg := application.NewAggregator(dedup, nil, tracer)
	adapter := NewFeedConsumerAdapter(nil, agg)
	ctx := context.Background()

	msg := feedMessage(t, domain.SaleEvent{
		EventID: "evt-1", ProductID: "p1", Quantity: 3, UnitPriceCents: 100,
		OccurredAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	})

	require.Error(t, adapter.processMessage(ctx, msg))

	// 重试同一条消息：去重层已恢复，事件被正常计入
	require.NoError(t, adapter.processMessage(ctx, msg))

	dash, err := agg.GetTodayDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), dash.TotalUnits)
}

// 永久性失败（坏 JSON、非法事件）跳过并提交，不能卡住分区。
func TestProcessMessageSkipsPoisonMessages(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	agg := application.NewAggregator(application.NewMemoryDeduper(64), nil, tracer)
	adapter := NewFeedConsumerAdapter(nil, agg)
	ctx := context.Background()

	require.NoError(t, adapter.processMessage(ctx, kafka.Message{Value: []byte("{broken")}))

	invalid := feedMessage(t, domain.SaleEvent{
		EventID: "evt-bad", ProductID: "p1", Quantity: 0, UnitPriceCents: 100,
		OccurredAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, adapter.processMessage(ctx, invalid))

	dash, err := agg.GetTodayDashboard(ctx)
	require.NoError(t, err)
	assert.Zero(t, dash.TotalUnits)
}
