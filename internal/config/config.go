package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"hub-analyzer/common/config"
)

// 命令下发通道
const (
	SinkHTTP = "http"
	SinkMQTT = "mqtt"
)

// Config 场景分析服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 分析服务特定配置
	Analyzer struct {
		// Redis Streams 配置
		Streams struct {
			HubEvents  string // 集线器配置事件流，如 "telemetry:hubs:v1"
			Snapshots  string // 传感器快照流，如 "telemetry:snapshots:v1"
			DeadLetter string // 处理失败的消息转存流，为空时不转存
		}
		ConsumerGroup   string        // 消费者组名称
		ConsumerName    string        // 消费者名称（需在重启之间保持稳定，用于重读未确认消息）
		BatchSize       int64         // 单次拉取的最大消息数
		Block           time.Duration // XREADGROUP 阻塞时长
		MaxReadFailures int           // 连续读取失败多少次后视为订阅丢失

		ScenarioCacheTTL time.Duration // 场景缓存 TTL，0 表示不使用缓存
	}

	// 设备命令下发配置
	Dispatcher struct {
		Sink         string        // "http"（hub-router）或 "mqtt"
		HubRouterURL string        // hub-router 地址
		Timeout      time.Duration // 单次下发超时
		ActionTopic  string        // MQTT 主题模板，%s 替换为 hub_id
	}

	Metrics struct {
		Addr string // 为空时不启动 /metrics
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 默认值，再由环境变量覆盖
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "analyzer"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5
	cfg.Database.ConnMaxLifetime = 30 * time.Minute
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "hub-analyzer"
	cfg.MQTT.QoS = 1
	cfg.MQTT.ConnectTimeout = 10 * time.Second
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Analyzer.Streams.HubEvents = getEnv("STREAM_HUB_EVENTS", "telemetry:hubs:v1")
	cfg.Analyzer.Streams.Snapshots = getEnv("STREAM_SNAPSHOTS", "telemetry:snapshots:v1")
	cfg.Analyzer.Streams.DeadLetter = getEnv("STREAM_DEAD_LETTER", "")
	cfg.Analyzer.ConsumerGroup = getEnv("CONSUMER_GROUP", "hub-analyzer-group")
	cfg.Analyzer.ConsumerName = getEnv("CONSUMER_NAME", defaultConsumerName())
	cfg.Analyzer.BatchSize = int64(getEnvInt("STREAM_BATCH_SIZE", 10))
	cfg.Analyzer.Block = getEnvDuration("STREAM_BLOCK", time.Second)
	cfg.Analyzer.MaxReadFailures = getEnvInt("STREAM_MAX_FAILURES", 5)
	cfg.Analyzer.ScenarioCacheTTL = getEnvDuration("SCENARIO_CACHE_TTL", 30*time.Second)

	cfg.Dispatcher.Sink = getEnv("COMMAND_SINK", SinkHTTP)
	cfg.Dispatcher.HubRouterURL = getEnv("HUB_ROUTER_URL", "http://localhost:59090")
	cfg.Dispatcher.Timeout = getEnvDuration("HUB_ROUTER_TIMEOUT", 5*time.Second)
	cfg.Dispatcher.ActionTopic = getEnv("MQTT_ACTION_TOPIC", "hubs/%s/actions")

	cfg.Metrics.Addr = getEnv("METRICS_ADDR", ":9102")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Analyzer.Streams.HubEvents == "" || c.Analyzer.Streams.Snapshots == "" {
		return fmt.Errorf("both hub event and snapshot streams are required")
	}
	if c.Analyzer.Streams.HubEvents == c.Analyzer.Streams.Snapshots {
		return fmt.Errorf("hub event and snapshot streams must differ: %s", c.Analyzer.Streams.HubEvents)
	}
	if c.Analyzer.BatchSize <= 0 {
		return fmt.Errorf("STREAM_BATCH_SIZE must be positive, got %d", c.Analyzer.BatchSize)
	}
	if c.Analyzer.Block <= 0 {
		return fmt.Errorf("STREAM_BLOCK must be positive, got %s", c.Analyzer.Block)
	}
	if c.Analyzer.MaxReadFailures <= 0 {
		return fmt.Errorf("STREAM_MAX_FAILURES must be positive, got %d", c.Analyzer.MaxReadFailures)
	}

	switch c.Dispatcher.Sink {
	case SinkHTTP:
		if c.Dispatcher.HubRouterURL == "" {
			return fmt.Errorf("HUB_ROUTER_URL is required for the http command sink")
		}
	case SinkMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("MQTT_BROKER is required for the mqtt command sink")
		}
	default:
		return fmt.Errorf("unknown COMMAND_SINK: %q", c.Dispatcher.Sink)
	}
	return nil
}

func defaultConsumerName() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return "hub-analyzer-" + hostname
	}
	return "hub-analyzer-1"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return defaultValue
}
