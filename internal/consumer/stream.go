package consumer

import (
	"context"
	"fmt"
	"time"

	rediscommon "hub-analyzer/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Stream 消费者所需的订阅操作
type Stream interface {
	Name() string
	Subscribe(ctx context.Context) error
	Poll(ctx context.Context) ([]rediscommon.StreamMessage, error)
	Commit(ctx context.Context, ids []string) error
	DeadLetter(ctx context.Context, msg rediscommon.StreamMessage, cause error) error
	Close() error
}

// RedisStreamConfig Redis Streams 订阅参数
type RedisStreamConfig struct {
	Stream     string
	Group      string
	Consumer   string
	BatchSize  int64
	Block      time.Duration
	DeadLetter string // 为空时不转发失败消息
}

// RedisStream 基于消费者组的 Stream 实现
// 启动后先重读本消费者未确认的消息，读完后再读取新消息
type RedisStream struct {
	client      *redis.Client
	cfg         RedisStreamConfig
	logger      *zap.Logger
	pendingDone bool
}

// NewRedisStream 创建 Redis Streams 订阅
func NewRedisStream(client *redis.Client, cfg RedisStreamConfig, logger *zap.Logger) *RedisStream {
	return &RedisStream{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *RedisStream) Name() string {
	return s.cfg.Stream
}

// Subscribe 创建消费者组（已存在时忽略）
func (s *RedisStream) Subscribe(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, s.client, s.cfg.Stream, s.cfg.Group); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", s.cfg.Stream, err)
	}
	s.pendingDone = false
	return nil
}

// Poll 读取下一批消息
func (s *RedisStream) Poll(ctx context.Context) ([]rediscommon.StreamMessage, error) {
	if !s.pendingDone {
		messages, err := rediscommon.ReadFromStream(ctx, s.client, rediscommon.ReadOptions{
			Stream:   s.cfg.Stream,
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			Count:    s.cfg.BatchSize,
			Start:    "0",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read pending entries from %s: %w", s.cfg.Stream, err)
		}
		if len(messages) > 0 {
			s.logger.Info("Redelivering pending entries",
				zap.String("stream", s.cfg.Stream),
				zap.Int("count", len(messages)),
			)
			return messages, nil
		}
		s.pendingDone = true
	}

	messages, err := rediscommon.ReadFromStream(ctx, s.client, rediscommon.ReadOptions{
		Stream:   s.cfg.Stream,
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Count:    s.cfg.BatchSize,
		Block:    s.cfg.Block,
		Start:    ">",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read from stream %s: %w", s.cfg.Stream, err)
	}
	return messages, nil
}

// Commit 确认已处理的消息
func (s *RedisStream) Commit(ctx context.Context, ids []string) error {
	if err := rediscommon.AckMessages(ctx, s.client, s.cfg.Stream, s.cfg.Group, ids...); err != nil {
		return fmt.Errorf("failed to ack %d messages on %s: %w", len(ids), s.cfg.Stream, err)
	}
	return nil
}

// DeadLetter 将处理失败的消息转发到死信流
func (s *RedisStream) DeadLetter(ctx context.Context, msg rediscommon.StreamMessage, cause error) error {
	if s.cfg.DeadLetter == "" {
		return nil
	}

	values := map[string]interface{}{
		"source_stream": s.cfg.Stream,
		"source_id":     msg.ID,
		"failed_at":     time.Now().Unix(),
	}
	if cause != nil {
		values["error"] = cause.Error()
	}
	if data, ok := msg.Values["data"]; ok {
		values["data"] = data
	}

	if _, err := rediscommon.PublishToStream(ctx, s.client, s.cfg.DeadLetter, values); err != nil {
		return fmt.Errorf("failed to publish to dead-letter stream %s: %w", s.cfg.DeadLetter, err)
	}
	return nil
}

// Close 消费者组和未确认消息保留在 Redis 中，下次启动时继续
func (s *RedisStream) Close() error {
	s.logger.Info("Stream subscription released",
		zap.String("stream", s.cfg.Stream),
		zap.String("consumer", s.cfg.Consumer),
	)
	return nil
}
