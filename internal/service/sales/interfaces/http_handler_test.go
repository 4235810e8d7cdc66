package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"seckill/internal/service/sales/application"
	"seckill/internal/service/sales/domain"
)

func newSalesMux(t *testing.T) (*http.ServeMux, *application.Aggregator) {
	t.Helper()
	tracer := noop.NewTracerProvider().Tracer("test")
	agg := application.NewAggregator(application.NewMemoryDeduper(1024), nil, tracer)
	mux := http.NewServeMux()
	NewSalesHandler(agg, nil, 100).RegisterRoutes(mux)
	return mux, agg
}

func ingest(t *testing.T, agg *application.Aggregator, product string, qty, priceCents int64, at time.Time) {
	t.Helper()
	require.NoError(t, agg.Ingest(context.Background(), &domain.SaleEvent{
		EventID:        uuid.NewString(),
		ProductID:      product,
		Quantity:       qty,
		UnitPriceCents: priceCents,
		OccurredAt:     at,
	}))
}

func get(mux *http.ServeMux, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDashboardEndpoint(t *testing.T) {
	mux, agg := newSalesMux(t)
	at := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	ingest(t, agg, "p1", 2, 500, at)
	ingest(t, agg, "p2", 3, 200, at)

	rec := get(mux, "/api/sales/dashboard/today")
	require.Equal(t, http.StatusOK, rec.Code)

	var dash domain.Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dash))
	assert.Equal(t, "20260829", dash.Date)
	assert.Equal(t, int64(2), dash.OrderCount)
	assert.Equal(t, int64(5), dash.TotalUnits)
	assert.Equal(t, int64(1600), dash.TotalRevenueCents)
	assert.Equal(t, 2, dash.DistinctProductsSold)
}

func TestHotProductsEndpoint(t *testing.T) {
	mux, agg := newSalesMux(t)
	at := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	ingest(t, agg, "A", 5, 100, at)
	ingest(t, agg, "B", 9, 100, at)
	ingest(t, agg, "C", 2, 100, at)

	rec := get(mux, "/api/sales/hot/daily?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var hot []domain.HotEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hot))
	require.Len(t, hot, 2)
	assert.Equal(t, "B", hot[0].ProductID)
	assert.Equal(t, "A", hot[1].ProductID)

	// 非法 limit
	assert.Equal(t, http.StatusBadRequest, get(mux, "/api/sales/hot/daily?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(mux, "/api/sales/hot/daily?limit=0").Code)
}

func TestHistoryEndpoint(t *testing.T) {
	mux, agg := newSalesMux(t)
	ingest(t, agg, "p1", 2, 100, time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	ingest(t, agg, "p2", 4, 100, time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC))

	rec := get(mux, "/api/sales/history/daily?startDate=2026-08-28&endDate=2026-08-30")
	require.Equal(t, http.StatusOK, rec.Code)

	var buckets []*domain.DailyBucket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &buckets))
	require.Len(t, buckets, 3)
	assert.Equal(t, int64(2), buckets[0].TotalUnits)
	assert.Zero(t, buckets[1].TotalUnits)
	assert.Equal(t, int64(4), buckets[2].TotalUnits)
}

func TestHistoryEndpointValidation(t *testing.T) {
	mux, _ := newSalesMux(t)

	// 缺参数 / 格式错误
	assert.Equal(t, http.StatusBadRequest, get(mux, "/api/sales/history/daily").Code)
	assert.Equal(t, http.StatusBadRequest, get(mux, "/api/sales/history/daily?startDate=20260828&endDate=2026-08-30").Code)

	// 起止倒置
	assert.Equal(t, http.StatusBadRequest, get(mux, "/api/sales/history/daily?startDate=2026-08-30&endDate=2026-08-28").Code)
}
