package handler

import (
	"context"
	"fmt"

	rediscommon "hub-analyzer/common/redis"
	"hub-analyzer/internal/dispatcher"
	"hub-analyzer/internal/models"

	"go.uber.org/zap"
)

// ScenarioSource 集线器场景读取（带缓存的 ScenarioCache 或仓库）
type ScenarioSource interface {
	Load(ctx context.Context, hubID string) ([]models.Scenario, error)
}

// ScenarioEvaluator 场景触发判断
type ScenarioEvaluator interface {
	ShouldFire(scenario models.Scenario, snapshot *models.SensorsSnapshot) bool
}

// ActionDispatcher 场景动作下发
type ActionDispatcher interface {
	Dispatch(ctx context.Context, hubID, scenarioName string, actions []models.Action) dispatcher.Result
}

// SnapshotHandler 传感器快照处理器：评估集线器的全部场景并下发触发场景的动作
type SnapshotHandler struct {
	scenarios  ScenarioSource
	evaluator  ScenarioEvaluator
	dispatcher ActionDispatcher
	logger     *zap.Logger
}

// NewSnapshotHandler 创建快照处理器
func NewSnapshotHandler(scenarios ScenarioSource, evaluator ScenarioEvaluator, d ActionDispatcher, logger *zap.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		scenarios:  scenarios,
		evaluator:  evaluator,
		dispatcher: d,
		logger:     logger,
	}
}

// Handle 实现 consumer.Handler
func (h *SnapshotHandler) Handle(ctx context.Context, msg rediscommon.StreamMessage) error {
	snapshot, err := models.ParseSnapshot(msg.Values)
	if err != nil {
		return fmt.Errorf("failed to parse snapshot %s: %w", msg.ID, err)
	}

	scenarios, err := h.scenarios.Load(ctx, snapshot.HubID)
	if err != nil {
		return fmt.Errorf("failed to load scenarios for hub %s: %w", snapshot.HubID, err)
	}

	fired := 0
	for _, scenario := range scenarios {
		if !h.evaluator.ShouldFire(scenario, snapshot) {
			continue
		}
		fired++

		result := h.dispatcher.Dispatch(ctx, snapshot.HubID, scenario.Name, scenario.Actions)
		h.logger.Info("Scenario fired",
			zap.String("hub_id", snapshot.HubID),
			zap.String("scenario", scenario.Name),
			zap.Int("actions", result.Attempted),
			zap.Int("failed", result.Failed),
		)
	}

	h.logger.Debug("Snapshot evaluated",
		zap.String("hub_id", snapshot.HubID),
		zap.Int("scenarios", len(scenarios)),
		zap.Int("fired", fired),
	)
	return nil
}
