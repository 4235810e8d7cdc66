// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 购物车侧指标
var (
	// CartMutations 按操作和结果统计购物车写请求。
	CartMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seckill",
		Subsystem: "cart",
		Name:      "mutations_total",
		Help:      "Cart mutation operations by op and outcome.",
	}, []string{"op", "outcome"})

	// CartCASConflicts 统计乐观并发冲突导致的重试次数。
	// 秒杀高峰期该指标飙升说明同一用户的并发写过多。
	CartCASConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "seckill",
		Subsystem: "cart",
		Name:      "cas_conflicts_total",
		Help:      "Optimistic concurrency conflicts observed during cart mutations.",
	})
)

// 销售聚合侧指标
var (
	IngestedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "seckill",
		Subsystem: "sales",
		Name:      "ingested_events_total",
		Help:      "Sale events applied to the daily aggregates.",
	})

	DuplicateEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "seckill",
		Subsystem: "sales",
		Name:      "duplicate_events_total",
		Help:      "Sale events dropped by the idempotence check.",
	})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seckill",
		Subsystem: "sales",
		Name:      "ingest_duration_seconds",
		Help:      "Latency of a single sale event ingestion.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	DashboardClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "seckill",
		Subsystem: "sales",
		Name:      "dashboard_ws_clients",
		Help:      "Currently connected live-dashboard websocket clients.",
	})
)
