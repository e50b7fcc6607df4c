package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hub-analyzer/common/logger"
	"hub-analyzer/internal/config"
	"hub-analyzer/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "hub-analyzer")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting hub-analyzer service",
		zap.String("hub_stream", cfg.Analyzer.Streams.HubEvents),
		zap.String("snapshot_stream", cfg.Analyzer.Streams.Snapshots),
		zap.String("command_sink", cfg.Dispatcher.Sink),
	)

	// 3. 创建服务
	analyzerService, err := service.NewAnalyzerService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create analyzer service", zap.Error(err))
	}

	// 4. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. 启动服务（在 goroutine 中）
	serviceErrChan := make(chan error, 1)
	go func() {
		serviceErrChan <- analyzerService.Start(ctx)
	}()

	// 6. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel() // 取消上下文，消费者处理完当前批次后退出
		if err := <-serviceErrChan; err != nil {
			log.Error("Service stopped with error", zap.Error(err))
			exitCode = 1
		}
	case err := <-serviceErrChan:
		if err != nil {
			log.Error("Service error", zap.Error(err))
			exitCode = 1
		}
	}

	analyzerService.Stop()
	log.Info("Hub analyzer service stopped")
	if exitCode != 0 {
		log.Sync()
		os.Exit(exitCode)
	}
}
