// cmd/feed-producer/main.go
//
// feed-producer 向交易流 topic 写入合成的销售事件，
// 用于联调和压测销售聚合服务。
package main

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"seckill/internal/pkg/mq"
	"seckill/internal/service/sales/domain"
)

var (
	kafkaBrokers = getEnv("KAFKA_BROKERS", "localhost:9092")
	feedTopic    = getEnv("KAFKA_FEED_TOPIC", "transaction-feed")
	products     = getEnv("FEED_PRODUCTS", "SK-1001,SK-1002,SK-1003,SK-1004")
	eventCount   = getEnvInt("FEED_COUNT", 1000)
	ratePerSec   = getEnvInt("FEED_RATE", 100)
)

func main() {
	writer := mq.NewKafkaWriter(strings.Split(kafkaBrokers, ","), feedTopic)
	defer writer.Close()

	productIDs := strings.Split(products, ",")
	interval := time.Second / time.Duration(ratePerSec)
	ctx := context.Background()

	log.Printf("Producing %d sale events to '%s' at %d/s...", eventCount, feedTopic, ratePerSec)

	for i := 0; i < eventCount; i++ {
		event := domain.SaleEvent{
			EventID:        uuid.New().String(),
			ProductID:      productIDs[rand.Intn(len(productIDs))],
			Quantity:       int64(1 + rand.Intn(3)),
			UnitPriceCents: int64(990 + rand.Intn(10)*100),
			OccurredAt:     time.Now().UTC(),
		}
		payload, err := json.Marshal(&event)
		if err != nil {
			log.Fatalf("failed to marshal event: %v", err)
		}
		// 按商品分区，同一商品的事件保序
		if err := mq.ProduceMessage(ctx, writer, []byte(event.ProductID), payload); err != nil {
			log.Fatalf("failed to produce event %d: %v", i, err)
		}
		time.Sleep(interval)
	}

	log.Printf("✅ Done, %d events produced.", eventCount)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
