package service

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/socialhub/backend/internal/config"
	"github.com/socialhub/backend/internal/model"
	tmpl "github.com/socialhub/backend/internal/template"
)

// Notifier delivers one-time account tokens to their owner out of band.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Notification) error { return nil }

// WebhookNotifier posts a rendered body to a mail relay or chat webhook.
type WebhookNotifier struct {
	url        string
	method     string
	body       string
	headers    []model.WebhookHeader
	timeout    time.Duration
	httpClient *http.Client
}

// NewNotifier returns a no-op notifier when no webhook URL is configured.
func NewNotifier(cfg config.NotifyConfig) (Notifier, error) {
	url := strings.TrimSpace(cfg.WebhookURL)
	if url == "" {
		return nopNotifier{}, nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: NOTIFY_WEBHOOK_URL must be an http(s) URL", ErrMisconfigured)
	}

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodPost
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("%w: invalid NOTIFY_WEBHOOK_TIMEOUT", ErrMisconfigured)
	}

	var headers []model.WebhookHeader
	if auth := strings.TrimSpace(cfg.Authorization); auth != "" {
		headers = append(headers, model.WebhookHeader{Key: "Authorization", Value: auth})
	}

	return &WebhookNotifier{
		url:        url,
		method:     method,
		body:       cfg.Body,
		headers:    headers,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Notify is bounded by the configured timeout even when ctx has no deadline.
func (w *WebhookNotifier) Notify(ctx context.Context, n model.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	rendered := tmpl.RenderBody(w.body, n)

	req, err := http.NewRequestWithContext(ctx, w.method, w.url, bytes.NewBufferString(rendered))
	if err != nil {
		return err
	}

	hasContentType := false
	for _, h := range w.headers {
		if h.Key != "" {
			req.Header.Set(h.Key, h.Value)
		}
		if http.CanonicalHeaderKey(h.Key) == "Content-Type" {
			hasContentType = true
		}
	}
	if !hasContentType {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}

// deliver sends n and logs failures. Nothing reports the outcome back to
// the caller so a failing relay cannot be used to probe accounts.
func deliver(ctx context.Context, notifier Notifier, n *model.Notification, logger *zap.Logger) {
	if n == nil {
		return
	}
	if err := notifier.Notify(ctx, *n); err != nil {
		logger.Warn("notification delivery failed",
			zap.String("kind", n.Kind),
			zap.String("user_id", n.UserID),
			zap.Error(err),
		)
	}
}
