package dispatcher

import (
	"context"
	"fmt"
	"time"

	"hub-analyzer/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const hubActionsPath = "/api/v1/hubs/{hubId}/actions"

// HubRouterClient 通过 HTTP 将设备命令投递到 hub-router
type HubRouterClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHubRouterClient 创建 hub-router 客户端（不重试，超时由 timeout 控制）
func NewHubRouterClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HubRouterClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HubRouterClient{
		httpClient: client,
		logger:     logger,
	}
}

// Send 实现 CommandSink
func (c *HubRouterClient) Send(ctx context.Context, req *models.DeviceActionRequest) error {
	requestID := uuid.New().String()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		SetPathParam("hubId", req.HubID).
		SetBody(req).
		Post(hubActionsPath)
	if err != nil {
		return fmt.Errorf("failed to call hub-router (request %s): %w", requestID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("hub-router rejected action (request %s): status %d: %s",
			requestID, resp.StatusCode(), resp.String())
	}
	return nil
}
