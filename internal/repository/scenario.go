package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hub-analyzer/internal/models"

	"go.uber.org/zap"
)

// ScenarioRepository 场景仓库（场景 + 条件 + 动作）
type ScenarioRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewScenarioRepository 创建场景仓库
func NewScenarioRepository(db *sql.DB, logger *zap.Logger) *ScenarioRepository {
	return &ScenarioRepository{
		db:     db,
		logger: logger,
	}
}

// LockHub 获取集线器级事务锁，事务结束时自动释放
// 同一集线器的重复配置事件在此串行化
func (r *ScenarioRepository) LockHub(ctx context.Context, tx *sql.Tx, hubID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, hubID); err != nil {
		return fmt.Errorf("failed to lock hub %s: %w", hubID, err)
	}
	return nil
}

// UpsertScenario 按 (hub_id, name) 查找或创建场景，返回场景 ID
func (r *ScenarioRepository) UpsertScenario(ctx context.Context, q Querier, hubID, name string) (int64, error) {
	query := `
		INSERT INTO scenarios (hub_id, name)
		VALUES ($1, $2)
		ON CONFLICT (hub_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	var id int64
	if err := q.QueryRowContext(ctx, query, hubID, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert scenario %s/%s: %w", hubID, name, err)
	}
	return id, nil
}

// AddConditions 追加条件（内容相同的条件已存在时忽略），返回新增条数
func (r *ScenarioRepository) AddConditions(ctx context.Context, q Querier, scenarioID int64, hubID string, conditions []models.Condition) (int64, error) {
	query := `
		INSERT INTO conditions (scenario_id, hub_id, sensor_id, type, operation, value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	var inserted int64
	for _, c := range conditions {
		res, err := q.ExecContext(ctx, query,
			scenarioID,
			hubID,
			c.SensorID,
			string(c.Type),
			string(c.Operation),
			nullableInt(c.Value),
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert condition for sensor %s: %w", c.SensorID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}

// AddActions 追加动作（内容相同的动作已存在时忽略），返回新增条数
func (r *ScenarioRepository) AddActions(ctx context.Context, q Querier, scenarioID int64, hubID string, actions []models.Action) (int64, error) {
	query := `
		INSERT INTO actions (scenario_id, hub_id, sensor_id, type, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`
	var inserted int64
	for _, a := range actions {
		res, err := q.ExecContext(ctx, query,
			scenarioID,
			hubID,
			a.SensorID,
			string(a.Type),
			nullableInt(a.Value),
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert action for sensor %s: %w", a.SensorID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}

// FindByHubID 获取集线器的全部场景（含条件与动作，按创建顺序）
func (r *ScenarioRepository) FindByHubID(ctx context.Context, hubID string) ([]models.Scenario, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, hub_id, name
		FROM scenarios
		WHERE hub_id = $1
		ORDER BY id
	`, hubID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []models.Scenario
	index := make(map[int64]int)
	for rows.Next() {
		var s models.Scenario
		if err := rows.Scan(&s.ID, &s.HubID, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		index[s.ID] = len(scenarios)
		scenarios = append(scenarios, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		return scenarios, nil
	}

	conditions, err := r.findConditions(ctx, hubID)
	if err != nil {
		return nil, err
	}
	for _, c := range conditions {
		if i, ok := index[c.ScenarioID]; ok {
			scenarios[i].Conditions = append(scenarios[i].Conditions, c)
		}
	}

	actions, err := r.findActions(ctx, hubID)
	if err != nil {
		return nil, err
	}
	for _, a := range actions {
		if i, ok := index[a.ScenarioID]; ok {
			scenarios[i].Actions = append(scenarios[i].Actions, a)
		}
	}

	return scenarios, nil
}

func (r *ScenarioRepository) findConditions(ctx context.Context, hubID string) ([]models.Condition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.scenario_id, c.sensor_id, c.type, c.operation, c.value
		FROM conditions c
		JOIN scenarios s ON s.id = c.scenario_id
		WHERE s.hub_id = $1
		ORDER BY c.id
	`, hubID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conditions: %w", err)
	}
	defer rows.Close()

	var conditions []models.Condition
	for rows.Next() {
		var c models.Condition
		var condType, operation string
		var value sql.NullInt64
		if err := rows.Scan(&c.ID, &c.ScenarioID, &c.SensorID, &condType, &operation, &value); err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		c.Type = models.ConditionType(condType)
		c.Operation = models.ConditionOperation(operation)
		c.Value = intFromNull(value)
		conditions = append(conditions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conditions: %w", err)
	}
	return conditions, nil
}

func (r *ScenarioRepository) findActions(ctx context.Context, hubID string) ([]models.Action, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.scenario_id, a.sensor_id, a.type, a.value
		FROM actions a
		JOIN scenarios s ON s.id = a.scenario_id
		WHERE s.hub_id = $1
		ORDER BY a.id
	`, hubID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []models.Action
	for rows.Next() {
		var a models.Action
		var actionType string
		var value sql.NullInt64
		if err := rows.Scan(&a.ID, &a.ScenarioID, &a.SensorID, &actionType, &value); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		a.Type = models.ActionType(actionType)
		a.Value = intFromNull(value)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate actions: %w", err)
	}
	return actions, nil
}
