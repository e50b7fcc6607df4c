package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SensorReading 快照中单个传感器的读数（带类型标签）
// 数值型读数（LUMINOSITY/TEMPERATURE/CO2LEVEL/HUMIDITY）使用 Number，
// 布尔型读数（MOTION/SWITCH）使用 Flag
type SensorReading struct {
	Type   ConditionType
	Number *int
	Flag   *bool
}

// NumberReading 构造数值型读数
func NumberReading(t ConditionType, v int) SensorReading {
	return SensorReading{Type: t, Number: &v}
}

// FlagReading 构造布尔型读数
func FlagReading(t ConditionType, v bool) SensorReading {
	return SensorReading{Type: t, Flag: &v}
}

type sensorReadingJSON struct {
	Type  ConditionType   `json:"type"`
	Value json.RawMessage `json:"value"`
}

// UnmarshalJSON 解析 {"type": "...", "value": 25|true}
func (r *SensorReading) UnmarshalJSON(data []byte) error {
	var raw sensorReadingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Type = raw.Type
	r.Number = nil
	r.Flag = nil

	if len(raw.Value) == 0 || string(raw.Value) == "null" {
		return nil
	}

	var flag bool
	if err := json.Unmarshal(raw.Value, &flag); err == nil {
		r.Flag = &flag
		return nil
	}
	var number int
	if err := json.Unmarshal(raw.Value, &number); err == nil {
		r.Number = &number
		return nil
	}
	return fmt.Errorf("%w: reading value %s", ErrInvalidDataFormat, string(raw.Value))
}

// MarshalJSON 输出 {"type": "...", "value": ...}
func (r SensorReading) MarshalJSON() ([]byte, error) {
	out := struct {
		Type  ConditionType `json:"type"`
		Value interface{}   `json:"value"`
	}{Type: r.Type}
	switch {
	case r.Flag != nil:
		out.Value = *r.Flag
	case r.Number != nil:
		out.Value = *r.Number
	}
	return json.Marshal(out)
}

// ExtractValue 按条件类型从读数中取出整数值
// 读数类型与条件类型不一致、或读数缺少对应字段时返回 ErrIncompatibleReading
func ExtractValue(t ConditionType, r SensorReading) (int, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrUnknownConditionType, t)
	}
	if r.Type != t {
		return 0, fmt.Errorf("%w: condition %s, reading %s", ErrIncompatibleReading, t, r.Type)
	}

	if t.IsBoolean() {
		if r.Flag == nil {
			return 0, fmt.Errorf("%w: %s reading has no boolean value", ErrIncompatibleReading, t)
		}
		if *r.Flag {
			return 1, nil
		}
		return 0, nil
	}

	if r.Number == nil {
		return 0, fmt.Errorf("%w: %s reading has no numeric value", ErrIncompatibleReading, t)
	}
	return *r.Number, nil
}

// SensorsSnapshot 集线器传感器快照
type SensorsSnapshot struct {
	HubID        string                   `json:"hub_id"`
	Timestamp    time.Time                `json:"timestamp"`
	SensorsState map[string]SensorReading `json:"sensors_state"`
}

// ParseSnapshot 从 Redis Streams 消息的 data 字段解析快照
func ParseSnapshot(values map[string]interface{}) (*SensorsSnapshot, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, ErrInvalidDataFormat
	}

	var snapshot SensorsSnapshot
	if err := json.Unmarshal([]byte(dataStr), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if snapshot.HubID == "" {
		return nil, fmt.Errorf("%w: missing hub_id", ErrInvalidDataFormat)
	}
	return &snapshot, nil
}
