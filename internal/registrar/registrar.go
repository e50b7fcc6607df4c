package registrar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hub-analyzer/common/database"
	"hub-analyzer/internal/metrics"
	"hub-analyzer/internal/models"
	"hub-analyzer/internal/repository"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrInvalidScenario 场景事件缺少集线器或名称
var ErrInvalidScenario = errors.New("invalid scenario registration")

// CacheInvalidator 场景写入后需要失效的读缓存
type CacheInvalidator interface {
	Invalidate(ctx context.Context, hubID string) error
}

// Registration 一次注册的结果
type Registration struct {
	ScenarioID      int64
	ConditionsAdded int64
	ActionsAdded    int64
}

// Registrar 场景注册器
// 场景外壳总是保留；条件批次或动作批次中只要有一项无效，整批丢弃
type Registrar struct {
	db        *sql.DB
	sensors   *repository.SensorRepository
	scenarios *repository.ScenarioRepository
	cache     CacheInvalidator
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewRegistrar 创建场景注册器；cache 可以为 nil
func NewRegistrar(
	db *sql.DB,
	sensors *repository.SensorRepository,
	scenarios *repository.ScenarioRepository,
	cache CacheInvalidator,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Registrar {
	return &Registrar{
		db:        db,
		sensors:   sensors,
		scenarios: scenarios,
		cache:     cache,
		logger:    logger,
		metrics:   m,
	}
}

// RegisterScenario 查找或创建 (hubID, name) 场景并追加条件与动作
// 校验错误（传感器不存在、目标值非法）在提交后通过 multierr 合并返回；
// 数据库错误回滚整个事务
func (r *Registrar) RegisterScenario(
	ctx context.Context,
	hubID, name string,
	conditions []models.ScenarioConditionSpec,
	actions []models.DeviceActionSpec,
) (*Registration, error) {
	if hubID == "" || name == "" {
		return nil, fmt.Errorf("%w: hub_id=%q name=%q", ErrInvalidScenario, hubID, name)
	}

	result := &Registration{}
	var rejected error

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rejected = nil
		if err := r.scenarios.LockHub(ctx, tx, hubID); err != nil {
			return err
		}

		scenarioID, err := r.scenarios.UpsertScenario(ctx, tx, hubID, name)
		if err != nil {
			return err
		}
		result.ScenarioID = scenarioID

		conds, condErr := r.resolveConditions(ctx, tx, hubID, conditions)
		if condErr != nil {
			if isRejection(condErr) {
				rejected = multierr.Append(rejected, fmt.Errorf("conditions of scenario %q dropped: %w", name, condErr))
			} else {
				return condErr
			}
		} else if len(conds) > 0 {
			n, err := r.scenarios.AddConditions(ctx, tx, scenarioID, hubID, conds)
			if err != nil {
				return err
			}
			result.ConditionsAdded = n
		}

		acts, actErr := r.resolveActions(ctx, tx, hubID, actions)
		if actErr != nil {
			if isRejection(actErr) {
				rejected = multierr.Append(rejected, fmt.Errorf("actions of scenario %q dropped: %w", name, actErr))
			} else {
				return actErr
			}
		} else if len(acts) > 0 {
			n, err := r.scenarios.AddActions(ctx, tx, scenarioID, hubID, acts)
			if err != nil {
				return err
			}
			result.ActionsAdded = n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register scenario %s/%s: %w", hubID, name, err)
	}

	r.metrics.RecordRegistered("condition", result.ConditionsAdded)
	r.metrics.RecordRegistered("action", result.ActionsAdded)

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, hubID); err != nil {
			r.logger.Warn("Failed to invalidate scenario cache",
				zap.String("hub_id", hubID),
				zap.Error(err),
			)
		}
	}

	r.logger.Info("Scenario registered",
		zap.String("hub_id", hubID),
		zap.String("scenario", name),
		zap.Int64("scenario_id", result.ScenarioID),
		zap.Int64("conditions_added", result.ConditionsAdded),
		zap.Int64("actions_added", result.ActionsAdded),
	)

	return result, rejected
}

func (r *Registrar) resolveConditions(ctx context.Context, q repository.Querier, hubID string, specs []models.ScenarioConditionSpec) ([]models.Condition, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	conds := make([]models.Condition, 0, len(specs))
	ids := make([]string, 0, len(specs))
	var invalid error
	for _, spec := range specs {
		if !spec.Type.Valid() {
			invalid = multierr.Append(invalid, fmt.Errorf("%w: %q (sensor %s)", models.ErrUnknownConditionType, spec.Type, spec.SensorID))
			continue
		}
		value, err := spec.TargetValue()
		if err != nil {
			invalid = multierr.Append(invalid, fmt.Errorf("sensor %s: %w", spec.SensorID, err))
			continue
		}
		conds = append(conds, models.Condition{
			SensorID:  spec.SensorID,
			Type:      spec.Type,
			Operation: spec.Operation,
			Value:     value,
		})
		ids = append(ids, spec.SensorID)
	}
	if invalid != nil {
		return nil, invalid
	}

	if err := r.checkSensors(ctx, q, hubID, ids); err != nil {
		return nil, err
	}
	return conds, nil
}

func (r *Registrar) resolveActions(ctx context.Context, q repository.Querier, hubID string, specs []models.DeviceActionSpec) ([]models.Action, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	acts := make([]models.Action, 0, len(specs))
	ids := make([]string, 0, len(specs))
	var invalid error
	for _, spec := range specs {
		if err := spec.CheckValue(); err != nil {
			invalid = multierr.Append(invalid, fmt.Errorf("sensor %s: %w", spec.SensorID, err))
			continue
		}
		acts = append(acts, models.Action{
			SensorID: spec.SensorID,
			Type:     spec.Type,
			Value:    spec.Value,
		})
		ids = append(ids, spec.SensorID)
	}
	if invalid != nil {
		return nil, invalid
	}

	if err := r.checkSensors(ctx, q, hubID, ids); err != nil {
		return nil, err
	}
	return acts, nil
}

func (r *Registrar) checkSensors(ctx context.Context, q repository.Querier, hubID string, ids []string) error {
	missing, err := r.sensors.MissingSensors(ctx, q, hubID, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: hub %s sensors %v", models.ErrSensorNotFound, hubID, missing)
	}
	return nil
}

// isRejection 输入校验错误（整批丢弃但事务继续），其他错误视为基础设施故障
func isRejection(err error) bool {
	return errors.Is(err, models.ErrSensorNotFound) ||
		errors.Is(err, models.ErrInvalidConditionValue) ||
		errors.Is(err, models.ErrInvalidActionValue) ||
		errors.Is(err, models.ErrUnknownConditionType)
}
