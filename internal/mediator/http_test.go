package mediator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibs-source/dispatch/router/golang/internal/log"
	"github.com/ibs-source/dispatch/router/golang/internal/message"
)

func testPointer(target string) *message.Pointer {
	return &message.Pointer{
		ID:              "msg-1",
		PoolCode:        "TEST-POOL",
		AuthToken:       "secret-token",
		MediationType:   message.MediationTypeHTTP,
		MediationTarget: target,
	}
}

func newMediator(t *testing.T) *HTTPMediator {
	t.Helper()
	return NewHTTP(HTTPConfig{Timeout: 2 * time.Second}, log.New())
}

func TestProcessStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   message.Outcome
	}{
		{"200 is success", http.StatusOK, message.Success},
		{"204 is success", http.StatusNoContent, message.Success},
		{"400 retries", http.StatusBadRequest, message.ErrorProcess},
		{"408 retries", http.StatusRequestTimeout, message.ErrorProcess},
		{"429 retries", http.StatusTooManyRequests, message.ErrorProcess},
		{"401 is config error", http.StatusUnauthorized, message.ErrorConfig},
		{"403 is config error", http.StatusForbidden, message.ErrorConfig},
		{"404 is config error", http.StatusNotFound, message.ErrorConfig},
		{"405 is config error", http.StatusMethodNotAllowed, message.ErrorConfig},
		{"409 is config error", http.StatusConflict, message.ErrorConfig},
		{"500 is server error", http.StatusInternalServerError, message.ErrorServer},
		{"503 is server error", http.StatusServiceUnavailable, message.ErrorServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			res := newMediator(t).Process(context.Background(), testPointer(srv.URL))
			assert.Equal(t, tt.want, res.Outcome)
		})
	}
}

func TestProcessSendsMessageIDAndAuth(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := newMediator(t).Process(context.Background(), testPointer(srv.URL))
	require.Equal(t, message.Success, res.Outcome)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/json", gotContentType)

	var body map[string]string
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, "msg-1", body["messageId"])
}

func TestProcessAckFalseBodyRetriesWithDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ack":false,"message":"not ready","delaySeconds":300}`))
	}))
	defer srv.Close()

	res := newMediator(t).Process(context.Background(), testPointer(srv.URL))

	assert.Equal(t, message.ErrorProcess, res.Outcome)
	assert.Equal(t, 300, res.DelaySeconds)
	assert.Equal(t, "not ready", res.Detail)
}

func TestProcessAckFalseWithoutDelayUsesDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ack":false}`))
	}))
	defer srv.Close()

	res := newMediator(t).Process(context.Background(), testPointer(srv.URL))

	assert.Equal(t, message.ErrorProcess, res.Outcome)
	assert.Equal(t, message.DefaultDelaySeconds, res.DelaySeconds)
}

func TestProcessOversizedDelayClamped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ack":false,"delaySeconds":999999}`))
	}))
	defer srv.Close()

	res := newMediator(t).Process(context.Background(), testPointer(srv.URL))

	assert.Equal(t, message.ErrorProcess, res.Outcome)
	assert.Equal(t, message.MaxDelaySeconds, res.DelaySeconds)
}

func TestProcessAckTrueBodyIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ack":true,"message":"stored"}`))
	}))
	defer srv.Close()

	res := newMediator(t).Process(context.Background(), testPointer(srv.URL))

	assert.Equal(t, message.Success, res.Outcome)
	assert.Equal(t, "stored", res.Detail)
}

func TestProcessUnparseableBodyIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`this is not json`))
	}))
	defer srv.Close()

	res := newMediator(t).Process(context.Background(), testPointer(srv.URL))
	assert.Equal(t, message.Success, res.Outcome)
}

func TestProcessTransportErrorIsServerError(t *testing.T) {
	// Connection refused: nothing listens on this port.
	res := newMediator(t).Process(context.Background(), testPointer("http://127.0.0.1:1"))
	assert.Equal(t, message.ErrorServer, res.Outcome)
}

func TestProcessInvalidTargetIsConfigError(t *testing.T) {
	res := newMediator(t).Process(context.Background(), testPointer("://not-a-url"))
	assert.Equal(t, message.ErrorConfig, res.Outcome)
}

func TestBreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	med := NewHTTP(HTTPConfig{
		Timeout:             time.Second,
		BreakerThreshold:    3,
		BreakerResetTimeout: time.Minute,
	}, log.New())

	for i := 0; i < 6; i++ {
		res := med.Process(context.Background(), testPointer(srv.URL))
		assert.Equal(t, message.ErrorServer, res.Outcome)
	}

	// After the threshold trips no further requests reach the target.
	assert.Equal(t, int32(3), calls.Load())
}

func TestBreakerIsPerTarget(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer dead.Close()
	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer alive.Close()

	med := NewHTTP(HTTPConfig{
		Timeout:             time.Second,
		BreakerThreshold:    2,
		BreakerResetTimeout: time.Minute,
	}, log.New())

	for i := 0; i < 4; i++ {
		med.Process(context.Background(), testPointer(dead.URL))
	}

	res := med.Process(context.Background(), testPointer(alive.URL))
	assert.Equal(t, message.Success, res.Outcome, "healthy target must not share the dead target's breaker")
}
