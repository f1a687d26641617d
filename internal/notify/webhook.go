// Package notify posts full resync reports to an operator webhook.
package notify

import (
	"context"
	"fmt"
	"time"

	"secretariat-data/internal/service"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ResyncPayload webhook 请求体
type ResyncPayload struct {
	Event  string                `json:"event"`
	Totals service.KindStats     `json:"totals"`
	Report *service.ResyncReport `json:"report"`
}

// WebhookNotifier implements service.ReportNotifier.
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookNotifier 创建 webhook 通知
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

var _ service.ReportNotifier = (*WebhookNotifier)(nil)

func (n *WebhookNotifier) NotifyResync(ctx context.Context, report *service.ResyncReport) error {
	payload := ResyncPayload{
		Event:  "credentials.resync.finished",
		Totals: report.Totals(),
		Report: report,
	}
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	n.logger.Info("Resync report sent to webhook",
		zap.Int("status_code", resp.StatusCode()),
		zap.Int("errored", payload.Totals.Errored),
	)
	return nil
}
