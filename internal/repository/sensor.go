package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// SensorRepository 传感器仓库
type SensorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSensorRepository 创建传感器仓库
func NewSensorRepository(db *sql.DB, logger *zap.Logger) *SensorRepository {
	return &SensorRepository{
		db:     db,
		logger: logger,
	}
}

// AddSensor 注册传感器（已存在时忽略），返回是否新建
func (r *SensorRepository) AddSensor(ctx context.Context, hubID, sensorID string) (bool, error) {
	query := `
		INSERT INTO sensors (id, hub_id)
		VALUES ($1, $2)
		ON CONFLICT (hub_id, id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, sensorID, hubID)
	if err != nil {
		return false, fmt.Errorf("failed to insert sensor %s: %w", sensorID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// MissingSensors 返回 ids 中不属于 hubID 的传感器（保持输入顺序，去重）
// q 为 nil 时直接使用连接池，事务内调用时传入 *sql.Tx
func (r *SensorRepository) MissingSensors(ctx context.Context, q Querier, hubID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id
		FROM sensors
		WHERE hub_id = $1 AND id = ANY($2)
	`
	if q == nil {
		q = r.db
	}
	rows, err := q.QueryContext(ctx, query, hubID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensors: %w", err)
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; ok {
			continue
		}
		found[id] = struct{}{}
		missing = append(missing, id)
	}
	return missing, nil
}
