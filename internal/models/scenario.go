package models

// ConditionType 条件度量类型（与快照中读数的类型一一对应）
type ConditionType string

const (
	ConditionLuminosity  ConditionType = "LUMINOSITY"
	ConditionTemperature ConditionType = "TEMPERATURE"
	ConditionMotion      ConditionType = "MOTION"
	ConditionSwitch      ConditionType = "SWITCH"
	ConditionCO2Level    ConditionType = "CO2LEVEL"
	ConditionHumidity    ConditionType = "HUMIDITY"
)

// IsBoolean 是否为布尔型读数（MOTION / SWITCH）
func (t ConditionType) IsBoolean() bool {
	return t == ConditionMotion || t == ConditionSwitch
}

// Valid 是否为已知类型
func (t ConditionType) Valid() bool {
	switch t {
	case ConditionLuminosity, ConditionTemperature, ConditionMotion,
		ConditionSwitch, ConditionCO2Level, ConditionHumidity:
		return true
	}
	return false
}

// ConditionOperation 比较运算符
type ConditionOperation string

const (
	OperationEquals      ConditionOperation = "EQUALS"
	OperationGreaterThan ConditionOperation = "GREATER_THAN"
	OperationLowerThan   ConditionOperation = "LOWER_THAN"
)

// ActionType 设备命令类型
type ActionType string

const (
	ActionActivate   ActionType = "ACTIVATE"
	ActionDeactivate ActionType = "DEACTIVATE"
	ActionInverse    ActionType = "INVERSE"
	ActionSetValue   ActionType = "SET_VALUE"
)

// Sensor 传感器（由设备注册流程创建，场景只引用）
type Sensor struct {
	ID    string `json:"id"`
	HubID string `json:"hub_id"`
}

// Scenario 自动化场景
type Scenario struct {
	ID         int64       `json:"id"`
	HubID      string      `json:"hub_id"`
	Name       string      `json:"name"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
}

// Condition 场景条件；Value 为 nil 时条件永不成立
type Condition struct {
	ID         int64              `json:"id"`
	ScenarioID int64              `json:"scenario_id"`
	SensorID   string             `json:"sensor_id"`
	Type       ConditionType      `json:"type"`
	Operation  ConditionOperation `json:"operation"`
	Value      *int               `json:"value,omitempty"`
}

// Action 场景动作；Value 只有 SET_VALUE 需要
type Action struct {
	ID         int64      `json:"id"`
	ScenarioID int64      `json:"scenario_id"`
	SensorID   string     `json:"sensor_id"`
	Type       ActionType `json:"type"`
	Value      *int       `json:"value,omitempty"`
}
