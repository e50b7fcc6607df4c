package models

import "errors"

var (
	// ErrInvalidDataFormat 消息中缺少 data 字段或 data 不是字符串
	ErrInvalidDataFormat = errors.New("invalid data format")
	// ErrInvalidConditionValue 条件目标值既不是整数也不是布尔值
	ErrInvalidConditionValue = errors.New("unsupported condition value")
	// ErrInvalidActionValue 动作值超出整数范围
	ErrInvalidActionValue = errors.New("action value out of range")
	// ErrIncompatibleReading 读数类型与条件类型不匹配
	ErrIncompatibleReading = errors.New("reading incompatible with condition type")
	// ErrUnknownConditionType 未知的条件类型
	ErrUnknownConditionType = errors.New("unknown condition type")
	// ErrSensorNotFound 传感器未在该集线器下注册
	ErrSensorNotFound = errors.New("sensor not found")
	// ErrUnknownEventType 集线器事件类型没有对应的处理器
	ErrUnknownEventType = errors.New("unknown hub event type")
)
