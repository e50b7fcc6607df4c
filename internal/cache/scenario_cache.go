package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hub-analyzer/internal/metrics"
	"hub-analyzer/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScenarioLoader 场景数据源（通常是 ScenarioRepository）
type ScenarioLoader interface {
	FindByHubID(ctx context.Context, hubID string) ([]models.Scenario, error)
}

// ScenarioCache 集线器场景读缓存
// 缓存只是加速层：读写失败时记录日志并回源，不影响评估结果
type ScenarioCache struct {
	kv      KVStore
	loader  ScenarioLoader
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewScenarioCache 创建场景缓存；kv 为 nil 或 ttl <= 0 时每次直接回源
func NewScenarioCache(kv KVStore, loader ScenarioLoader, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *ScenarioCache {
	return &ScenarioCache{
		kv:      kv,
		loader:  loader,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

// ScenarioKey 场景缓存 key
func ScenarioKey(hubID string) string {
	return fmt.Sprintf("analyzer:hub:%s:scenarios", hubID)
}

// GenerationKey 场景缓存代数 key；每次失效写入新值，旧代数的缓存条目视为过期
func GenerationKey(hubID string) string {
	return fmt.Sprintf("analyzer:hub:%s:scenarios:gen", hubID)
}

// scenarioEntry 缓存条目，Generation 为回源前读到的代数
type scenarioEntry struct {
	Generation string            `json:"generation"`
	Scenarios  []models.Scenario `json:"scenarios"`
}

func (c *ScenarioCache) enabled() bool {
	return c.kv != nil && c.ttl > 0
}

// Load 获取集线器的全部场景（先查缓存，未命中时回源并回填）
func (c *ScenarioCache) Load(ctx context.Context, hubID string) ([]models.Scenario, error) {
	if !c.enabled() {
		return c.loader.FindByHubID(ctx, hubID)
	}

	// 代数必须在回源之前读取：回源期间发生的失效会让本次回填的条目作废
	gen, err := c.kv.Get(ctx, GenerationKey(hubID))
	switch {
	case err == nil:
	case errors.Is(err, ErrCacheMiss):
		gen = ""
	default:
		c.logger.Warn("Scenario cache read failed, falling back to database",
			zap.String("hub_id", hubID),
			zap.Error(err),
		)
		c.metrics.RecordCacheLookup("error")
		return c.loader.FindByHubID(ctx, hubID)
	}

	key := ScenarioKey(hubID)
	raw, err := c.kv.Get(ctx, key)
	switch {
	case err == nil:
		var entry scenarioEntry
		if jsonErr := json.Unmarshal([]byte(raw), &entry); jsonErr != nil {
			c.logger.Warn("Discarding malformed scenario cache entry",
				zap.String("hub_id", hubID),
				zap.Error(jsonErr),
			)
			c.metrics.RecordCacheLookup("error")
			break
		}
		if entry.Generation == gen {
			c.metrics.RecordCacheLookup("hit")
			return entry.Scenarios, nil
		}
		c.metrics.RecordCacheLookup("miss")
	case errors.Is(err, ErrCacheMiss):
		c.metrics.RecordCacheLookup("miss")
	default:
		c.logger.Warn("Scenario cache read failed, falling back to database",
			zap.String("hub_id", hubID),
			zap.Error(err),
		)
		c.metrics.RecordCacheLookup("error")
	}

	scenarios, err := c.loader.FindByHubID(ctx, hubID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(scenarioEntry{Generation: gen, Scenarios: scenarios})
	if err != nil {
		c.logger.Warn("Failed to encode scenarios for cache",
			zap.String("hub_id", hubID),
			zap.Error(err),
		)
		return scenarios, nil
	}
	if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
		c.logger.Warn("Failed to populate scenario cache",
			zap.String("hub_id", hubID),
			zap.Error(err),
		)
	}
	return scenarios, nil
}

// Invalidate 删除集线器的场景缓存（场景写入提交后调用）
func (c *ScenarioCache) Invalidate(ctx context.Context, hubID string) error {
	if !c.enabled() {
		return nil
	}
	if err := c.kv.Set(ctx, GenerationKey(hubID), uuid.New().String(), 0); err != nil {
		return fmt.Errorf("failed to bump scenario cache generation for hub %s: %w", hubID, err)
	}
	if err := c.kv.Del(ctx, ScenarioKey(hubID)); err != nil {
		return fmt.Errorf("failed to invalidate scenario cache for hub %s: %w", hubID, err)
	}
	return nil
}
