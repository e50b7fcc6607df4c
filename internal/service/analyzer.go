package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"hub-analyzer/common/database"
	"hub-analyzer/common/mqtt"
	rediscommon "hub-analyzer/common/redis"
	"hub-analyzer/internal/cache"
	"hub-analyzer/internal/config"
	"hub-analyzer/internal/consumer"
	"hub-analyzer/internal/dispatcher"
	"hub-analyzer/internal/evaluator"
	"hub-analyzer/internal/handler"
	"hub-analyzer/internal/metrics"
	"hub-analyzer/internal/registrar"
	"hub-analyzer/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AnalyzerService 场景分析服务：配置事件消费者 + 快照消费者
type AnalyzerService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client

	hubConsumer      *consumer.StreamConsumer
	snapshotConsumer *consumer.StreamConsumer
	metricsServer    *http.Server
}

// NewAnalyzerService 创建场景分析服务
func NewAnalyzerService(cfg *config.Config, logger *zap.Logger) (*AnalyzerService, error) {
	s := &AnalyzerService{
		config: cfg,
		logger: logger,
	}

	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db

	// 初始化Redis
	s.redisClient = rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), s.redisClient); err != nil {
		s.Stop()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		s.metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	// 命令出口
	sink, err := s.newCommandSink()
	if err != nil {
		s.Stop()
		return nil, err
	}

	// 创建Repository
	sensorRepo := repository.NewSensorRepository(db, logger)
	scenarioRepo := repository.NewScenarioRepository(db, logger)
	scenarioCache := cache.NewScenarioCache(
		cache.NewRedisKVStore(s.redisClient),
		scenarioRepo,
		cfg.Analyzer.ScenarioCacheTTL,
		logger,
		m,
	)

	// 配置事件链路
	reg := registrar.NewRegistrar(db, sensorRepo, scenarioRepo, scenarioCache, logger, m)
	hubHandler := handler.NewHubHandler(reg, sensorRepo, logger)

	// 快照链路
	snapshotHandler := handler.NewSnapshotHandler(
		scenarioCache,
		evaluator.NewScenarioEvaluator(logger, m),
		dispatcher.NewDispatcher(sink, logger, m),
		logger,
	)

	opts := consumer.DefaultOptions()
	opts.MaxFailures = cfg.Analyzer.MaxReadFailures

	s.hubConsumer = consumer.NewStreamConsumer(
		s.newStream(cfg.Analyzer.Streams.HubEvents),
		hubHandler,
		opts,
		logger,
		m,
	)
	s.snapshotConsumer = consumer.NewStreamConsumer(
		s.newStream(cfg.Analyzer.Streams.Snapshots),
		snapshotHandler,
		opts,
		logger,
		m,
	)

	return s, nil
}

func (s *AnalyzerService) newStream(name string) *consumer.RedisStream {
	return consumer.NewRedisStream(s.redisClient, consumer.RedisStreamConfig{
		Stream:     name,
		Group:      s.config.Analyzer.ConsumerGroup,
		Consumer:   s.config.Analyzer.ConsumerName,
		BatchSize:  s.config.Analyzer.BatchSize,
		Block:      s.config.Analyzer.Block,
		DeadLetter: s.config.Analyzer.Streams.DeadLetter,
	}, s.logger)
}

func (s *AnalyzerService) newCommandSink() (dispatcher.CommandSink, error) {
	switch s.config.Dispatcher.Sink {
	case config.SinkHTTP:
		return dispatcher.NewHubRouterClient(s.config.Dispatcher.HubRouterURL, s.config.Dispatcher.Timeout, s.logger), nil
	case config.SinkMQTT:
		client, err := mqtt.NewClient(&s.config.MQTT, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mqtt broker: %w", err)
		}
		s.mqttClient = client
		return dispatcher.NewMQTTCommandSink(client, s.config.Dispatcher.ActionTopic, s.config.MQTT.QoS, s.logger), nil
	default:
		return nil, fmt.Errorf("unknown command sink: %q", s.config.Dispatcher.Sink)
	}
}

// Start 启动两个消费者并阻塞，直到 ctx 取消或任一消费者失败（返回第一个错误）
func (s *AnalyzerService) Start(ctx context.Context) error {
	s.logger.Info("Starting hub analyzer service components",
		zap.String("hub_stream", s.config.Analyzer.Streams.HubEvents),
		zap.String("snapshot_stream", s.config.Analyzer.Streams.Snapshots),
		zap.String("consumer_group", s.config.Analyzer.ConsumerGroup),
		zap.String("consumer_name", s.config.Analyzer.ConsumerName),
		zap.String("command_sink", s.config.Dispatcher.Sink),
	)

	if s.metricsServer != nil {
		go func() {
			s.logger.Info("Metrics server listening", zap.String("addr", s.metricsServer.Addr))
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.hubConsumer.Run(gctx); err != nil {
			return fmt.Errorf("hub event consumer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.snapshotConsumer.Run(gctx); err != nil {
			return fmt.Errorf("snapshot consumer: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Stop 释放连接（在 Start 返回之后调用）
func (s *AnalyzerService) Stop() {
	s.logger.Info("Stopping hub analyzer service")

	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Error("Error shutting down metrics server", zap.Error(err))
		}
		cancel()
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭Redis
	if err := rediscommon.Close(s.redisClient); err != nil {
		s.logger.Error("Error closing Redis client", zap.Error(err))
	}

	// 关闭数据库
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Error closing database connection", zap.Error(err))
	}

	s.logger.Info("Hub analyzer service stopped")
}
