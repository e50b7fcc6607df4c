package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	rediscommon "hub-analyzer/common/redis"
	"hub-analyzer/internal/metrics"

	"go.uber.org/zap"
)

// ErrStreamFailed 连续读取失败超过上限，订阅视为丢失
var ErrStreamFailed = errors.New("stream subscription lost")

// State 消费者状态
type State string

const (
	StateSubscribed State = "SUBSCRIBED"
	StatePolling    State = "POLLING"
	StateProcessing State = "PROCESSING"
	StateCommitting State = "COMMITTING"
	StateStopped    State = "STOPPED"
)

var allStates = []string{
	string(StateSubscribed),
	string(StatePolling),
	string(StateProcessing),
	string(StateCommitting),
	string(StateStopped),
}

// Handler 单条消息处理器
type Handler interface {
	Handle(ctx context.Context, msg rediscommon.StreamMessage) error
}

// HandlerFunc 函数形式的 Handler
type HandlerFunc func(ctx context.Context, msg rediscommon.StreamMessage) error

func (f HandlerFunc) Handle(ctx context.Context, msg rediscommon.StreamMessage) error {
	return f(ctx, msg)
}

// Options 消费循环参数
type Options struct {
	MaxFailures    int           // 连续读取失败上限
	InitialBackoff time.Duration // 读取失败后的初始退避
	MaxBackoff     time.Duration
	CommitTimeout  time.Duration // 退出时最后一次提交的超时
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		MaxFailures:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		CommitTimeout:  5 * time.Second,
	}
}

// StreamConsumer 批量消费循环
// 批内严格按顺序处理；单条失败只记录，不中断批次；整批处理完后同步提交
type StreamConsumer struct {
	stream  Stream
	handler Handler
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu          sync.RWMutex
	state       State
	uncommitted []string
}

// NewStreamConsumer 创建消费者
func NewStreamConsumer(stream Stream, handler Handler, opts Options, logger *zap.Logger, m *metrics.Metrics) *StreamConsumer {
	defaults := DefaultOptions()
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = defaults.MaxFailures
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaults.InitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaults.MaxBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = defaults.CommitTimeout
	}

	return &StreamConsumer{
		stream:  stream,
		handler: handler,
		opts:    opts,
		logger:  logger.With(zap.String("stream", stream.Name())),
		metrics: m,
		state:   StateStopped,
	}
}

// State 当前状态
func (c *StreamConsumer) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *StreamConsumer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.metrics.SetConsumerState(c.stream.Name(), string(s), allStates)
}

// Run 运行消费循环，直到 ctx 取消（返回 nil）或订阅丢失（返回错误）
func (c *StreamConsumer) Run(ctx context.Context) error {
	if err := c.stream.Subscribe(ctx); err != nil {
		c.setState(StateStopped)
		return fmt.Errorf("%w: %v", ErrStreamFailed, err)
	}
	c.setState(StateSubscribed)
	c.logger.Info("Stream consumer started")

	err := c.loop(ctx)

	c.finalCommit()
	if closeErr := c.stream.Close(); closeErr != nil {
		c.logger.Warn("Failed to release stream subscription", zap.Error(closeErr))
	}
	c.setState(StateStopped)

	if err != nil {
		c.logger.Error("Stream consumer stopped", zap.Error(err))
		return err
	}
	c.logger.Info("Stream consumer stopped")
	return nil
}

func (c *StreamConsumer) loop(ctx context.Context) error {
	backoff := c.opts.InitialBackoff
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		c.setState(StatePolling)
		messages, err := c.stream.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			c.metrics.RecordReadFailure(c.stream.Name())
			if failures >= c.opts.MaxFailures {
				return fmt.Errorf("%w: %d consecutive read failures: %v", ErrStreamFailed, failures, err)
			}

			c.logger.Error("Failed to read from stream",
				zap.Error(err),
				zap.Int("failures", failures),
				zap.Duration("backoff", backoff),
			)

			// 指数退避：等待后重试
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff *= 2
				if backoff > c.opts.MaxBackoff {
					backoff = c.opts.MaxBackoff
				}
			}
			continue
		}

		failures = 0
		backoff = c.opts.InitialBackoff
		if len(messages) == 0 {
			continue
		}

		// 已取出的批次在取消后仍需处理完并提交
		c.processBatch(context.WithoutCancel(ctx), messages)
	}
}

func (c *StreamConsumer) processBatch(ctx context.Context, messages []rediscommon.StreamMessage) {
	c.setState(StateProcessing)
	for _, msg := range messages {
		err := c.handle(ctx, msg)
		c.metrics.RecordProcessed(c.stream.Name(), err)
		if err != nil {
			c.logger.Error("Failed to process message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			c.deadLetter(ctx, msg, err)
		}

		c.mu.Lock()
		c.uncommitted = append(c.uncommitted, msg.ID)
		c.mu.Unlock()
	}

	c.setState(StateCommitting)
	c.commit(ctx)
}

func (c *StreamConsumer) handle(ctx context.Context, msg rediscommon.StreamMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler.Handle(ctx, msg)
}

func (c *StreamConsumer) deadLetter(ctx context.Context, msg rediscommon.StreamMessage, cause error) {
	if err := c.stream.DeadLetter(ctx, msg, cause); err != nil {
		c.logger.Warn("Failed to dead-letter message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}
	c.metrics.RecordDeadLetter(c.stream.Name())
}

// commit 提交全部未确认位置；失败时保留，下次提交或退出时重试
func (c *StreamConsumer) commit(ctx context.Context) bool {
	c.mu.Lock()
	ids := append([]string(nil), c.uncommitted...)
	c.mu.Unlock()
	if len(ids) == 0 {
		return true
	}

	err := c.stream.Commit(ctx, ids)
	c.metrics.RecordCommit(c.stream.Name(), err)
	if err != nil {
		c.logger.Error("Failed to commit stream positions",
			zap.Int("count", len(ids)),
			zap.Error(err),
		)
		return false
	}

	c.mu.Lock()
	c.uncommitted = c.uncommitted[len(ids):]
	c.mu.Unlock()
	return true
}

func (c *StreamConsumer) finalCommit() {
	c.setState(StateCommitting)
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CommitTimeout)
	defer cancel()
	c.commit(ctx)
}
