// cmd/sales-service/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"seckill/internal/pkg/bootstrap"
	"seckill/internal/pkg/logger"
	"seckill/internal/pkg/mq"
	"seckill/internal/pkg/redis"
	"seckill/internal/service/sales/application"
	"seckill/internal/service/sales/domain"
	"seckill/internal/service/sales/infrastructure"
	"seckill/internal/service/sales/interfaces"
	"seckill/internal/zookeeper"
)

const serviceName = "sales-service"

// main 函数是应用的"组装根" (Composition Root)
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	tracer := otel.Tracer(serviceName)

	// 集群级事件去重：Redis 按日集合
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs)
	if err != nil {
		log.Fatalf("failed to initialize redis client: %v", err)
	}
	// 本地有界集合挡在 Redis 前面，吸收短窗口重投
	deduper := application.NewLayeredDeduper(
		application.NewMemoryDeduper(cfg.App.DedupCapacity),
		infrastructure.NewRedisDeduper(redisClient, 72*time.Hour),
	)

	// 日销汇总的落库镜像：MySQL
	if _, err := mysqldrv.ParseDSN(cfg.Infra.Mysql.DSN); err != nil {
		log.Fatalf("invalid mysql dsn: %v", err)
	}
	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}
	if err := db.AutoMigrate(&infrastructure.DailySaleModel{}); err != nil {
		log.Fatalf("failed to migrate daily_sales: %v", err)
	}
	repo := infrastructure.NewGormRollupRepository(db)

	aggregator := application.NewAggregator(deduper, repo, tracer)
	if err := aggregator.WarmStart(context.Background()); err != nil {
		log.Printf("WARN: warm start failed, starting from empty aggregates: %v", err)
	}

	// 实时看板推送
	hub := interfaces.NewDashboardHub(500 * time.Millisecond)
	go hub.Run()
	aggregator.OnIngest(hub.Publish)

	// 日封存：多副本用 ZooKeeper 锁竞争，赢者负责整日落库
	if cfg.Infra.Zookeeper.Addrs != "" {
		zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Addrs)
		if err != nil {
			log.Fatalf("failed to connect to zookeeper: %v", err)
		}
		aggregator.OnSealDay(func(bucket *domain.DailyBucket) {
			sealDay(zkConn, repo, bucket)
		})
	}

	// 交易流消费
	reader := mq.NewKafkaReader(
		strings.Split(cfg.Infra.Kafka.Brokers, ","),
		cfg.Infra.Kafka.FeedTopic,
		cfg.Infra.Kafka.GroupID,
	)
	consumer := infrastructure.NewFeedConsumerAdapter(reader, aggregator)

	consumerCtx, stopConsumer := context.WithCancel(logger.WithContext(context.Background()))
	consumer.Start(consumerCtx)

	handler := interfaces.NewSalesHandler(aggregator, hub, cfg.App.HotRankingN)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8087,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			stopConsumer()
			consumer.Stop()
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		},
	})
}

// sealDay 在分布式锁保护下把封存日的最终值整日落库。
func sealDay(conn *zookeeper.Conn, repo domain.RollupRepository, bucket *domain.DailyBucket) {
	lock, err := zookeeper.NewDistributedLock(conn, "daily-rollup-"+bucket.Date)
	if err != nil {
		log.Printf("ERROR: failed to create rollup lock for %s: %v", bucket.Date, err)
		return
	}
	if err := lock.Lock(); err != nil {
		log.Printf("ERROR: failed to acquire rollup lock for %s: %v", bucket.Date, err)
		return
	}
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.SealDay(ctx, bucket); err != nil {
		log.Printf("ERROR: failed to seal daily rollup for %s: %v", bucket.Date, err)
		return
	}
	log.Printf("✅ Daily rollup for %s sealed (%d products, %d units).", bucket.Date, len(bucket.Products), bucket.TotalUnits)
}
