package handler

import (
	"context"
	"fmt"

	rediscommon "hub-analyzer/common/redis"
	"hub-analyzer/internal/models"
	"hub-analyzer/internal/registrar"

	"go.uber.org/zap"
)

// ScenarioRegistrar 场景注册
type ScenarioRegistrar interface {
	RegisterScenario(ctx context.Context, hubID, name string, conditions []models.ScenarioConditionSpec, actions []models.DeviceActionSpec) (*registrar.Registration, error)
}

// SensorRegistry 传感器注册
type SensorRegistry interface {
	AddSensor(ctx context.Context, hubID, sensorID string) (bool, error)
}

// HubEventHandler 单一类型的集线器事件处理函数
type HubEventHandler func(ctx context.Context, event *models.HubEvent) error

// HubHandler 集线器配置事件处理器（按事件类型分发）
type HubHandler struct {
	handlers map[models.HubEventType]HubEventHandler
	logger   *zap.Logger
}

// NewHubHandler 创建集线器事件处理器
// DEVICE_REMOVED / SCENARIO_REMOVED 没有处理函数，按未知类型丢弃
func NewHubHandler(scenarios ScenarioRegistrar, sensors SensorRegistry, logger *zap.Logger) *HubHandler {
	h := &HubHandler{logger: logger}
	h.handlers = map[models.HubEventType]HubEventHandler{
		models.HubEventScenarioAdded: func(ctx context.Context, event *models.HubEvent) error {
			return h.handleScenarioAdded(ctx, scenarios, event)
		},
		models.HubEventDeviceAdded: func(ctx context.Context, event *models.HubEvent) error {
			return h.handleDeviceAdded(ctx, sensors, event)
		},
	}
	return h
}

// Handle 实现 consumer.Handler
func (h *HubHandler) Handle(ctx context.Context, msg rediscommon.StreamMessage) error {
	event, err := models.ParseHubEvent(msg.Values)
	if err != nil {
		return fmt.Errorf("failed to parse hub event %s: %w", msg.ID, err)
	}

	handle, ok := h.handlers[event.Type]
	if !ok {
		return fmt.Errorf("%w: %s (hub %s)", models.ErrUnknownEventType, event.Type, event.HubID)
	}
	return handle(ctx, event)
}

func (h *HubHandler) handleScenarioAdded(ctx context.Context, scenarios ScenarioRegistrar, event *models.HubEvent) error {
	var payload models.ScenarioAddedEvent
	if err := event.DecodePayload(&payload); err != nil {
		return err
	}

	h.logger.Debug("Registering scenario",
		zap.String("hub_id", event.HubID),
		zap.String("scenario", payload.Name),
		zap.Int("conditions", len(payload.Conditions)),
		zap.Int("actions", len(payload.Actions)),
	)

	_, err := scenarios.RegisterScenario(ctx, event.HubID, payload.Name, payload.Conditions, payload.Actions)
	return err
}

func (h *HubHandler) handleDeviceAdded(ctx context.Context, sensors SensorRegistry, event *models.HubEvent) error {
	var payload models.DeviceAddedEvent
	if err := event.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.ID == "" {
		return fmt.Errorf("%w: device id is empty", models.ErrInvalidDataFormat)
	}

	created, err := sensors.AddSensor(ctx, event.HubID, payload.ID)
	if err != nil {
		return err
	}
	h.logger.Info("Sensor registered",
		zap.String("hub_id", event.HubID),
		zap.String("sensor_id", payload.ID),
		zap.String("device_type", payload.Type),
		zap.Bool("created", created),
	)
	return nil
}
