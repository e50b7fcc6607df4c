package evaluator

import (
	"fmt"

	"hub-analyzer/internal/models"
)

// operatorFunc 比较读数与目标值
type operatorFunc func(actual, target int) bool

var operators = map[models.ConditionOperation]operatorFunc{
	models.OperationEquals:      func(actual, target int) bool { return actual == target },
	models.OperationGreaterThan: func(actual, target int) bool { return actual > target },
	models.OperationLowerThan:   func(actual, target int) bool { return actual < target },
}

// EvaluateCondition 判断单个条件在快照下是否成立（纯函数）
// 目标值为空、未知运算符、快照中没有该传感器读数时返回 false；
// 读数类型与条件类型不符时返回 false 和错误，由调用方记录
func EvaluateCondition(cond models.Condition, snapshot *models.SensorsSnapshot) (bool, error) {
	if snapshot == nil || cond.Value == nil {
		return false, nil
	}
	op, ok := operators[cond.Operation]
	if !ok {
		return false, nil
	}
	reading, ok := snapshot.SensorsState[cond.SensorID]
	if !ok {
		return false, nil
	}

	actual, err := models.ExtractValue(cond.Type, reading)
	if err != nil {
		return false, fmt.Errorf("condition on sensor %s: %w", cond.SensorID, err)
	}
	return op(actual, *cond.Value), nil
}
