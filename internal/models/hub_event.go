package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// HubEventType 集线器事件类型
type HubEventType string

const (
	HubEventDeviceAdded     HubEventType = "DEVICE_ADDED"
	HubEventDeviceRemoved   HubEventType = "DEVICE_REMOVED"
	HubEventScenarioAdded   HubEventType = "SCENARIO_ADDED"
	HubEventScenarioRemoved HubEventType = "SCENARIO_REMOVED"
)

// HubEvent 集线器配置事件（payload 按 type 再解析）
type HubEvent struct {
	HubID     string          `json:"hub_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      HubEventType    `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// ScenarioAddedEvent SCENARIO_ADDED 事件负载
type ScenarioAddedEvent struct {
	Name       string                  `json:"name"`
	Conditions []ScenarioConditionSpec `json:"conditions"`
	Actions    []DeviceActionSpec      `json:"actions"`
}

// ScenarioConditionSpec 事件中的条件描述；value 可以是整数、布尔值或 null
type ScenarioConditionSpec struct {
	SensorID  string             `json:"sensor_id"`
	Type      ConditionType      `json:"type"`
	Operation ConditionOperation `json:"operation"`
	Value     json.RawMessage    `json:"value,omitempty"`
}

// DeviceActionSpec 事件中的动作描述
type DeviceActionSpec struct {
	SensorID string     `json:"sensor_id"`
	Type     ActionType `json:"type"`
	Value    *int       `json:"value,omitempty"`
}

// DeviceAddedEvent DEVICE_ADDED 事件负载
type DeviceAddedEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// TargetValue 解析条件目标值：布尔值转换为 0/1，null 返回 nil
func (c ScenarioConditionSpec) TargetValue() (*int, error) {
	raw := bytes.TrimSpace(c.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConditionValue, string(raw))
	}

	switch val := v.(type) {
	case bool:
		n := 0
		if val {
			n = 1
		}
		return &n, nil
	case json.Number:
		n, err := strconv.ParseInt(val.String(), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidConditionValue, val.String())
		}
		target := int(n)
		return &target, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidConditionValue, string(raw))
	}
}

// CheckValue 动作值必须落在 INTEGER 列的范围内
func (a DeviceActionSpec) CheckValue() error {
	if a.Value != nil && (*a.Value < math.MinInt32 || *a.Value > math.MaxInt32) {
		return fmt.Errorf("%w: %d", ErrInvalidActionValue, *a.Value)
	}
	return nil
}

// ParseHubEvent 从 Redis Streams 消息的 data 字段解析集线器事件
func ParseHubEvent(values map[string]interface{}) (*HubEvent, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, ErrInvalidDataFormat
	}

	var event HubEvent
	if err := json.Unmarshal([]byte(dataStr), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hub event: %w", err)
	}
	if event.HubID == "" {
		return nil, fmt.Errorf("%w: missing hub_id", ErrInvalidDataFormat)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidDataFormat)
	}
	return &event, nil
}

// DecodePayload 将事件负载解析到 dest
func (e *HubEvent) DecodePayload(dest interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload for %s", ErrInvalidDataFormat, e.Type)
	}
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
