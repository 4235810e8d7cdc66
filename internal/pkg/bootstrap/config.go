// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"log"
	"os"
	"sync/atomic"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"gopkg.in/yaml.v3"

	"seckill/internal/pkg/nacos"
)

// Config 是所有服务共享的配置结构。
// 加载顺序：内置默认值 -> CONFIG_PATH 指向的 yaml 文件 -> Nacos 配置中心。
// 后者覆盖前者。
type Config struct {
	App struct {
		// HotRankingN 热销榜维护的名额上限
		HotRankingN int `yaml:"hotRankingN"`
		// DedupCapacity 事件去重集合的容量上限（内存实现）
		DedupCapacity int `yaml:"dedupCapacity"`
		// CartMaxRetries 购物车 CAS 写的重试上限
		CartMaxRetries int `yaml:"cartMaxRetries"`
		// PurchaseLimitRule 限购规则，CEL 表达式。
		// 可用变量: productId, quantity, lineQuantity
		PurchaseLimitRule string `yaml:"purchaseLimitRule"`
		// PriceTable 商品价格快照表（分），目录服务不在本系统范围内
		PriceTable map[string]int64 `yaml:"priceTable"`
		// DefaultPriceCents 价格表未命中时的兜底价（分），0 表示未知商品直接拒绝
		DefaultPriceCents int64 `yaml:"defaultPriceCents"`
	} `yaml:"app"`

	Infra struct {
		Redis struct {
			Addrs string `yaml:"addrs"`
		} `yaml:"redis"`
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Kafka struct {
			Brokers   string `yaml:"brokers"`
			FeedTopic string `yaml:"feedTopic"`
			GroupID   string `yaml:"groupId"`
		} `yaml:"kafka"`
		Zookeeper struct {
			Addrs string `yaml:"addrs"`
		} `yaml:"zookeeper"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
	} `yaml:"infra"`
}

var (
	currentConfig     atomic.Value // *Config
	nacosConfigClient config_client.IConfigClient
)

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.HotRankingN = 100
	cfg.App.DedupCapacity = 100000
	cfg.App.CartMaxRetries = 3
	cfg.App.PurchaseLimitRule = "quantity >= 1 && lineQuantity <= 100"
	cfg.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", "localhost:6379")
	cfg.Infra.Mysql.DSN = getEnv("MYSQL_DSN", "seckill:seckill@tcp(localhost:3306)/seckill?charset=utf8mb4&parseTime=True&loc=UTC")
	cfg.Infra.Kafka.Brokers = getEnv("KAFKA_BROKERS", "localhost:9092")
	cfg.Infra.Kafka.FeedTopic = getEnv("KAFKA_FEED_TOPIC", "transaction-feed")
	cfg.Infra.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", "sales-aggregation-group")
	cfg.Infra.Zookeeper.Addrs = getEnv("ZK_ADDRS", "localhost:2181")
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces")
	return cfg
}

// Init 加载配置。必须在 StartService 和任何 GetCurrentConfig 之前调用。
func Init() {
	cfg := defaultConfig()

	// 1. 本地 yaml 文件
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("FATAL: cannot read config file %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatalf("FATAL: cannot parse config file %s: %v", path, err)
		}
		log.Printf("Config loaded from %s", path)
	}

	// 2. Nacos 配置中心（dataId 未设置时跳过）
	if dataID := os.Getenv("NACOS_CONFIG_DATA_ID"); dataID != "" {
		addrs := getEnv("NACOS_SERVER_ADDRS", "localhost:8848")
		namespace := os.Getenv("NACOS_NAMESPACE")
		group := getEnv("NACOS_GROUP", "DEFAULT_GROUP")

		client, err := nacos.NewConfigClient(addrs, namespace)
		if err != nil {
			log.Fatalf("FATAL: failed to create nacos config client: %v", err)
		}
		nacosConfigClient = client

		content, err := client.GetConfig(vo.ConfigParam{DataId: dataID, Group: group})
		if err != nil {
			log.Fatalf("FATAL: failed to fetch config %s from nacos: %v", dataID, err)
		}
		if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
			log.Fatalf("FATAL: cannot parse nacos config %s: %v", dataID, err)
		}
		log.Printf("Config overlaid from nacos dataId=%s group=%s", dataID, group)
	}

	currentConfig.Store(cfg)
}

// GetCurrentConfig 返回当前生效的配置。
func GetCurrentConfig() *Config {
	cfg, ok := currentConfig.Load().(*Config)
	if !ok {
		log.Fatal("FATAL: bootstrap.Init() must be called before GetCurrentConfig()")
	}
	return cfg
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
