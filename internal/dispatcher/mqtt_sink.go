package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"hub-analyzer/internal/models"

	"go.uber.org/zap"
)

// Publisher MQTT 发布接口（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTCommandSink 将设备命令发布到集线器的 MQTT 主题
type MQTTCommandSink struct {
	publisher     Publisher
	topicTemplate string
	qos           byte
	logger        *zap.Logger
}

// NewMQTTCommandSink topicTemplate 中的 %s 替换为 hub_id
func NewMQTTCommandSink(publisher Publisher, topicTemplate string, qos byte, logger *zap.Logger) *MQTTCommandSink {
	return &MQTTCommandSink{
		publisher:     publisher,
		topicTemplate: topicTemplate,
		qos:           qos,
		logger:        logger,
	}
}

// Topic 集线器的命令主题
func (s *MQTTCommandSink) Topic(hubID string) string {
	return fmt.Sprintf(s.topicTemplate, hubID)
}

// Send 实现 CommandSink
func (s *MQTTCommandSink) Send(ctx context.Context, req *models.DeviceActionRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal device action: %w", err)
	}

	topic := s.Topic(req.HubID)
	if err := s.publisher.Publish(topic, s.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	s.logger.Debug("Device action published",
		zap.String("topic", topic),
		zap.String("sensor_id", req.Action.SensorID),
	)
	return nil
}
