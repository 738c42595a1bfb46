package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumena-io/glasscloud/internal/domain/apps"
	"github.com/lumena-io/glasscloud/internal/infrastructure/config"
	"github.com/lumena-io/glasscloud/internal/infrastructure/resilience"
)

func testConfig() config.WebhookConfig {
	return config.WebhookConfig{
		Enabled:    true,
		TimeoutMs:  2000,
		MaxRetries: 0,
		RPS:        0,
	}
}

func TestDeliverPostsPayload(t *testing.T) {
	var got Payload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testConfig(), nil, nil)
	err := c.NotifySessionRequest(context.Background(), srv.URL, "sess_1", "user_1", "cloud.example.notes")
	require.NoError(t, err)

	assert.Equal(t, EventSessionRequest, got.Type)
	assert.Equal(t, "sess_1", got.SessionID)
	assert.Equal(t, "user_1", got.UserID)
	assert.Equal(t, "cloud.example.notes", got.PackageName)
	assert.NotEmpty(t, got.EventID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Contains(t, contentType, "application/json")
}

func TestDeliverReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(), nil, nil)
	err := c.NotifySessionEnded(context.Background(), srv.URL, "sess_1", "user_1", "cloud.example.notes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status")
}

func TestDisabledClientSkips(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Enabled = false
	c := NewClient(cfg, nil, nil)

	require.NoError(t, c.NotifySessionRequest(context.Background(), srv.URL, "sess_1", "user_1", "cloud.example.notes"))
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestEmptyEndpointSkips(t *testing.T) {
	c := NewClient(testConfig(), nil, nil)
	require.NoError(t, c.NotifySessionRequest(context.Background(), "", "sess_1", "user_1", "cloud.example.notes"))
}

func TestBreakerIsolatesTargets(t *testing.T) {
	var badHits, goodHits int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&badHits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&goodHits, 1)
	}))
	defer good.Close()

	c := NewClient(testConfig(), nil, nil)
	ctx := context.Background()

	// Five consecutive failures trip the bad target's breaker.
	for i := 0; i < 5; i++ {
		require.Error(t, c.NotifySessionRequest(ctx, bad.URL, "sess_1", "user_1", "cloud.example.notes"))
	}
	err := c.NotifySessionRequest(ctx, bad.URL, "sess_1", "user_1", "cloud.example.notes")
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.EqualValues(t, 5, atomic.LoadInt32(&badHits), "open breaker must not hit the endpoint")

	// The healthy target is unaffected.
	require.NoError(t, c.NotifySessionRequest(ctx, good.URL, "sess_1", "user_1", "cloud.example.notes"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&goodHits))
}

func TestNotifierResolvesEndpoints(t *testing.T) {
	var mu sync.Mutex
	var events []Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}))
	defer srv.Close()

	reg := apps.NewRegistry(nil)
	require.NoError(t, reg.Register(apps.App{
		PackageName: "cloud.example.notes",
		WebhookURL:  srv.URL,
	}))
	require.NoError(t, reg.Register(apps.App{
		PackageName: "cloud.example.silent",
	}))

	n := NewNotifier(NewClient(testConfig(), nil, nil), reg, nil)
	n.AppStarted("sess_1", "user_1", "cloud.example.notes")
	n.AppStarted("sess_1", "user_1", "cloud.example.silent")
	n.SessionEnded("sess_1", "user_1", []string{"cloud.example.notes", "cloud.example.silent"})
	n.Close()

	require.Len(t, events, 2)
	types := []string{events[0].Type, events[1].Type}
	assert.Contains(t, types, EventSessionRequest)
	assert.Contains(t, types, EventSessionEnded)
	for _, p := range events {
		assert.Equal(t, "cloud.example.notes", p.PackageName)
	}
}
