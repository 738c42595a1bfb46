// Package webhook delivers app lifecycle notifications to TPA backends.
//
// Deliveries are best effort: bounded retries, a rate cap shared across
// all targets, and a circuit breaker per target host so one dead
// endpoint never starves the rest. Failures are logged and surfaced to
// metrics, never propagated into session or display state.
package webhook

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lumena-io/glasscloud/internal/infrastructure/config"
	"github.com/lumena-io/glasscloud/internal/infrastructure/logging"
	"github.com/lumena-io/glasscloud/internal/infrastructure/monitoring"
	"github.com/lumena-io/glasscloud/internal/infrastructure/resilience"
)

// Event types carried in webhook payloads.
const (
	EventSessionRequest = "session_request"
	EventSessionEnded   = "session_ended"
)

// Payload is the JSON body posted to an app's webhook endpoint. EventID
// is unique per logical event and stable across retries, so receivers
// can deduplicate.
type Payload struct {
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	PackageName string    `json:"package_name"`
	Timestamp   time.Time `json:"timestamp"`
}

// Client posts lifecycle events to app webhook endpoints.
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	enabled  bool
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewClient creates a webhook client from configuration.
func NewClient(cfg config.WebhookConfig, log *logging.Logger, metrics *monitoring.Metrics) *Client {
	if log == nil {
		log = logging.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	rc := resty.New().
		SetTimeout(cfg.Timeout()).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", "GlassCloud-Webhook/1.0").
		SetHeader("Content-Type", "application/json")
	rc.SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.RPS)
	}

	return &Client{
		resty:   rc,
		limiter: limiter,
		breakers: resilience.NewGroup(resilience.Settings{
			MaxRequests: 2,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		enabled: cfg.Enabled,
		log:     log,
		metrics: metrics,
	}
}

// NotifySessionRequest posts a session_request event, telling the app a
// session wants it to connect.
func (c *Client) NotifySessionRequest(ctx context.Context, endpoint, sessionID, userID, pkg string) error {
	return c.deliver(ctx, endpoint, Payload{
		EventID:     uuid.NewString(),
		Type:        EventSessionRequest,
		SessionID:   sessionID,
		UserID:      userID,
		PackageName: pkg,
		Timestamp:   time.Now().UTC(),
	})
}

// NotifySessionEnded posts a session_ended event.
func (c *Client) NotifySessionEnded(ctx context.Context, endpoint, sessionID, userID, pkg string) error {
	return c.deliver(ctx, endpoint, Payload{
		EventID:     uuid.NewString(),
		Type:        EventSessionEnded,
		SessionID:   sessionID,
		UserID:      userID,
		PackageName: pkg,
		Timestamp:   time.Now().UTC(),
	})
}

func (c *Client) deliver(ctx context.Context, endpoint string, p Payload) error {
	if !c.enabled || endpoint == "" {
		c.metrics.RecordWebhookDelivery(p.Type, "skipped", 0)
		return nil
	}

	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.RecordWebhookDelivery(p.Type, "failed", time.Since(start))
		return fmt.Errorf("webhook rate limit: %w", err)
	}

	err := c.breakers.Do(breakerTarget(endpoint), func() error {
		resp, err := c.resty.R().SetContext(ctx).SetBody(p).Post(endpoint)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("webhook %s: status %s", endpoint, resp.Status())
		}
		return nil
	})

	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordWebhookDelivery(p.Type, "failed", elapsed)
		c.log.Warn("Webhook delivery failed",
			zap.String("event", p.Type),
			zap.String("endpoint", endpoint),
			zap.String("package_name", p.PackageName),
			zap.Error(err))
		return err
	}

	c.metrics.RecordWebhookDelivery(p.Type, "ok", elapsed)
	c.log.Debug("Webhook delivered",
		zap.String("event", p.Type),
		zap.String("endpoint", endpoint),
		zap.String("package_name", p.PackageName),
		zap.Duration("elapsed", elapsed))
	return nil
}

// breakerTarget keys breakers by host so all endpoints of one backend
// share a breaker.
func breakerTarget(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}
