package dispatcher

import (
	"context"
	"time"

	"hub-analyzer/internal/metrics"
	"hub-analyzer/internal/models"

	"go.uber.org/zap"
)

// CommandSink 设备命令出口（hub-router HTTP 或 MQTT）
type CommandSink interface {
	Send(ctx context.Context, req *models.DeviceActionRequest) error
}

// Result 一次场景动作下发的统计
type Result struct {
	Attempted int
	Failed    int
}

// Dispatcher 场景动作下发器
// 按动作顺序逐条发送，单条失败只记录日志，不影响后续动作，不重试
type Dispatcher struct {
	sink    CommandSink
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewDispatcher 创建动作下发器
func NewDispatcher(sink CommandSink, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		sink:    sink,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Dispatch 下发场景的全部动作
func (d *Dispatcher) Dispatch(ctx context.Context, hubID, scenarioName string, actions []models.Action) Result {
	var result Result
	for _, action := range actions {
		req := &models.DeviceActionRequest{
			HubID:        hubID,
			ScenarioName: scenarioName,
			Timestamp:    d.now().UTC(),
			Action:       d.buildCommand(hubID, scenarioName, action),
		}

		result.Attempted++
		err := d.sink.Send(ctx, req)
		d.metrics.RecordAction(err)
		if err != nil {
			result.Failed++
			d.logger.Error("Failed to send device action",
				zap.String("hub_id", hubID),
				zap.String("scenario", scenarioName),
				zap.String("sensor_id", action.SensorID),
				zap.String("action", string(req.Action.Type)),
				zap.Error(err),
			)
			continue
		}

		d.logger.Debug("Device action sent",
			zap.String("hub_id", hubID),
			zap.String("scenario", scenarioName),
			zap.String("sensor_id", action.SensorID),
			zap.String("action", string(req.Action.Type)),
			zap.Int("value", req.Action.Value),
		)
	}
	return result
}

func (d *Dispatcher) buildCommand(hubID, scenarioName string, action models.Action) models.DeviceCommand {
	cmd := models.DeviceCommand{
		SensorID: action.SensorID,
		Type:     action.Type,
	}
	if action.Value != nil {
		cmd.Value = *action.Value
	}

	switch action.Type {
	case models.ActionActivate, models.ActionDeactivate, models.ActionInverse, models.ActionSetValue:
	default:
		// 未识别的命令类型按 ACTIVATE 下发
		d.logger.Warn("Unknown action type, sending ACTIVATE",
			zap.String("hub_id", hubID),
			zap.String("scenario", scenarioName),
			zap.String("sensor_id", action.SensorID),
			zap.String("action", string(action.Type)),
		)
		cmd.Type = models.ActionActivate
	}
	return cmd
}
