package evaluator

import (
	"hub-analyzer/internal/metrics"
	"hub-analyzer/internal/models"

	"go.uber.org/zap"
)

// ScenarioEvaluator 场景评估器：全部条件成立（AND）时触发
type ScenarioEvaluator struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewScenarioEvaluator 创建场景评估器
func NewScenarioEvaluator(logger *zap.Logger, m *metrics.Metrics) *ScenarioEvaluator {
	return &ScenarioEvaluator{
		logger:  logger,
		metrics: m,
	}
}

// ShouldFire 没有条件的场景永不触发；遇到第一个不成立的条件即返回
func (e *ScenarioEvaluator) ShouldFire(scenario models.Scenario, snapshot *models.SensorsSnapshot) bool {
	fired := e.evaluate(scenario, snapshot)
	e.metrics.RecordEvaluation(fired)
	return fired
}

func (e *ScenarioEvaluator) evaluate(scenario models.Scenario, snapshot *models.SensorsSnapshot) bool {
	if len(scenario.Conditions) == 0 {
		return false
	}

	for _, cond := range scenario.Conditions {
		ok, err := EvaluateCondition(cond, snapshot)
		if err != nil {
			e.logger.Warn("Condition evaluation failed",
				zap.String("hub_id", scenario.HubID),
				zap.String("scenario", scenario.Name),
				zap.String("sensor_id", cond.SensorID),
				zap.String("type", string(cond.Type)),
				zap.Error(err),
			)
		}
		if !ok {
			return false
		}
	}
	return true
}
