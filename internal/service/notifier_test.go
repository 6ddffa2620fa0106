package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/socialhub/backend/internal/config"
	"github.com/socialhub/backend/internal/model"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) last() model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

func TestNewNotifierWithoutURLIsNop(t *testing.T) {
	n, err := NewNotifier(config.NotifyConfig{})
	require.NoError(t, err)
	assert.NoError(t, n.Notify(context.Background(), model.Notification{}))
}

func TestNewNotifierValidation(t *testing.T) {
	_, err := NewNotifier(config.NotifyConfig{WebhookURL: "ftp://relay", Timeout: "5s"})
	assert.ErrorIs(t, err, ErrMisconfigured)

	_, err = NewNotifier(config.NotifyConfig{WebhookURL: "http://relay", Timeout: "never"})
	assert.ErrorIs(t, err, ErrMisconfigured)
}

func TestWebhookNotifierDelivers(t *testing.T) {
	var (
		gotMethod string
		gotAuth   string
		gotType   string
		gotBody   map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	notifier, err := NewNotifier(config.NotifyConfig{
		WebhookURL:    srv.URL,
		Timeout:       "5s",
		Authorization: "Bearer relay-key",
	})
	require.NoError(t, err)

	err = notifier.Notify(context.Background(), model.Notification{
		Kind:  model.NotificationPasswordReset,
		Email: "alice@example.com",
		Token: "abc",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Bearer relay-key", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "alice@example.com", gotBody["email"])
	assert.Equal(t, "abc", gotBody["token"])
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier, err := NewNotifier(config.NotifyConfig{WebhookURL: srv.URL, Method: "put", Timeout: "5s"})
	require.NoError(t, err)

	assert.Error(t, notifier.Notify(context.Background(), model.Notification{}))
}

func TestDeliverSwallowsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	notifier, err := NewNotifier(config.NotifyConfig{WebhookURL: srv.URL, Timeout: "5s"})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		deliver(context.Background(), notifier, &model.Notification{Kind: "x"}, zap.NewNop())
		deliver(context.Background(), notifier, nil, zap.NewNop())
	})
}
