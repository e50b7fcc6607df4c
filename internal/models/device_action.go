package models

import "time"

// DeviceActionRequest 下发给 hub-router 的设备命令
type DeviceActionRequest struct {
	HubID        string        `json:"hub_id"`
	ScenarioName string        `json:"scenario_name"`
	Timestamp    time.Time     `json:"timestamp"`
	Action       DeviceCommand `json:"action"`
}

// DeviceCommand 设备命令内容；Value 缺省为 0
type DeviceCommand struct {
	SensorID string     `json:"sensor_id"`
	Type     ActionType `json:"type"`
	Value    int        `json:"value"`
}
