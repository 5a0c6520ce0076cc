package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nutriplan/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func newTestClient(baseURL string, extra ...int) *Client {
	c := NewClient(Config{
		Source:            domain.SourceUSDA,
		BaseURL:           baseURL,
		RateLimitStatuses: extra,
	}, nil)
	c.backoff = func(int) time.Duration { return time.Millisecond }
	return c
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{Source: domain.SourceSpoonacular, BaseURL: "https://api.example.com/"}, nil)

	assert.Equal(t, "https://api.example.com", c.baseURL)
	assert.Equal(t, defaultMaxRetries, c.maxRetries)
	assert.Equal(t, "NutriPlan/1.0", c.userAgent)
	assert.True(t, c.rateLimitStatuses[http.StatusTooManyRequests])
	assert.Equal(t, domain.SourceSpoonacular, c.Source())
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
	}
}

func TestGetJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/things", r.URL.Path)
		assert.Equal(t, "apple", r.URL.Query().Get("q"))
		assert.Equal(t, "NutriPlan/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload{Name: "apple"})
	}))
	defer server.Close()

	var out payload
	err := newTestClient(server.URL).GetJSON(context.Background(), "/v1/things", map[string][]string{"q": {"apple"}}, &out)

	require.NoError(t, err)
	assert.Equal(t, "apple", out.Name)
}

func TestPostJSON_SendsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		json.NewEncoder(w).Encode(payload{Name: strings.ToUpper(in.Name)})
	}))
	defer server.Close()

	var out payload
	err := newTestClient(server.URL).PostJSON(context.Background(), "/echo", nil, payload{Name: "kale"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "KALE", out.Name)
}

func TestGetJSON_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := newTestClient(server.URL).GetJSON(context.Background(), "/x", nil, &payload{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetJSON_ServerError_Retries(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(payload{Name: "third time"})
	}))
	defer server.Close()

	var out payload
	err := newTestClient(server.URL).GetJSON(context.Background(), "/x", nil, &out)

	require.NoError(t, err)
	assert.Equal(t, "third time", out.Name)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestGetJSON_AllRetriesFail(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := newTestClient(server.URL).GetJSON(context.Background(), "/x", nil, &payload{})

	assert.ErrorIs(t, err, domain.ErrProviderFailure)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestGetJSON_ClientError_NoRetry(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("missing parameter"))
	}))
	defer server.Close()

	err := newTestClient(server.URL).GetJSON(context.Background(), "/x", nil, &payload{})

	assert.ErrorIs(t, err, domain.ErrProviderFailure)
	assert.Contains(t, err.Error(), "missing parameter")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestGetJSON_TooManyRequests(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set(HeaderRetryAfter, "42")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := newTestClient(server.URL).GetJSON(context.Background(), "/x", nil, &payload{})

	var rle *domain.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 42*time.Second, rle.RetryAfter)
	assert.Equal(t, domain.SourceUSDA, rle.Source)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "rate limits are not retried in place")
}

func TestGetJSON_ExtraRateLimitStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	err := newTestClient(server.URL, http.StatusPaymentRequired).GetJSON(context.Background(), "/x", nil, &payload{})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestGetJSON_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	err := newTestClient(server.URL).GetJSON(context.Background(), "/x", nil, &payload{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestGetJSON_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := newTestClient(server.URL).GetJSON(ctx, "/slow", nil, &payload{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetJSON_RequestCreationError(t *testing.T) {
	err := newTestClient("://invalid-url").GetJSON(context.Background(), "/x", nil, &payload{})
	assert.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "120", 2 * time.Minute},
		{"negative seconds", "-5", 0},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.value, now))
		})
	}
}

func TestReadLimitedBody(t *testing.T) {
	t.Run("reads within limit", func(t *testing.T) {
		body, err := readLimitedBody(strings.NewReader("short content"), 1000)
		require.NoError(t, err)
		assert.Equal(t, "short content", string(body))
	})

	t.Run("truncates beyond limit", func(t *testing.T) {
		body, err := readLimitedBody(strings.NewReader(strings.Repeat("0123456789", 100)), 100)
		require.NoError(t, err)
		assert.Len(t, body, 100)
	})
}
