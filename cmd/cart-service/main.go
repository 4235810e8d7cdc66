// cmd/cart-service/main.go
package main

import (
	"context"
	"log"
	"net/http"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"seckill/internal/pkg/bootstrap"
	"seckill/internal/pkg/redis"
	"seckill/internal/service/cart/application"
	"seckill/internal/service/cart/infrastructure"
	"seckill/internal/service/cart/infrastructure/rule"
	"seckill/internal/service/cart/interfaces"
)

const serviceName = "cart-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	tracer := otel.Tracer(serviceName)

	// 实时购物车的权威存储：Redis（Lua CAS 保证单用户写的原子性）
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs)
	if err != nil {
		log.Fatalf("failed to initialize redis client: %v", err)
	}
	store, err := infrastructure.NewRedisCartStore(redisClient)
	if err != nil {
		log.Fatalf("failed to initialize cart store: %v", err)
	}

	// write-behind 快照镜像：MySQL
	if _, err := mysqldrv.ParseDSN(cfg.Infra.Mysql.DSN); err != nil {
		log.Fatalf("invalid mysql dsn: %v", err)
	}
	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}
	if err := db.AutoMigrate(&infrastructure.CartSnapshotModel{}); err != nil {
		log.Fatalf("failed to migrate cart_snapshots: %v", err)
	}
	snapshots := infrastructure.NewGormSnapshotStore(db)

	// 活动期间的限购规则，CEL 表达式来自配置
	rules, err := rule.NewCELRuleEngine(cfg.App.PurchaseLimitRule)
	if err != nil {
		log.Fatalf("failed to compile purchase limit rule: %v", err)
	}

	prices := infrastructure.NewStaticPriceResolver(cfg.App.PriceTable, cfg.App.DefaultPriceCents)

	service := application.NewCartService(store, prices, rules, snapshots, tracer, cfg.App.CartMaxRetries)
	handler := interfaces.NewCartHandler(service)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8086,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		},
	})
}
