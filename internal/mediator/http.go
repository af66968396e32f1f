package mediator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ibs-source/dispatch/router/golang/internal/log"
	"github.com/ibs-source/dispatch/router/golang/internal/message"
	"github.com/ibs-source/dispatch/router/golang/pkg/jsonfast"
)

// HTTPConfig holds HTTP mediator settings.
type HTTPConfig struct {
	Timeout time.Duration
	// BreakerThreshold is the consecutive-failure count that opens a
	// target's circuit breaker.
	BreakerThreshold uint32
	// BreakerResetTimeout is how long an open breaker waits before probing.
	BreakerResetTimeout time.Duration
	UserAgent           string
}

// errServerClass marks responses the circuit breaker must count as failures.
var errServerClass = errors.New("server-class mediation failure")

// HTTPMediator posts pointers to their mediation target and maps the HTTP
// status to an Outcome. Each distinct target gets its own circuit breaker so
// one dead endpoint cannot burn worker time for every pool.
type HTTPMediator struct {
	client *http.Client
	cfg    HTTPConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	log *log.Logger
}

// NewHTTP creates an HTTP mediator.
func NewHTTP(cfg HTTPConfig, logger *log.Logger) *HTTPMediator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerResetTimeout <= 0 {
		cfg.BreakerResetTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "dispatch-router/1.0"
	}
	return &HTTPMediator{
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		log:      logger,
	}
}

func (m *HTTPMediator) breaker(target string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[target]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        target,
		MaxRequests: 1,
		Timeout:     m.cfg.BreakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= m.cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.log.Warn("mediation circuit breaker for %s changed %s -> %s", name, from, to)
		},
	})
	m.breakers[target] = cb
	return cb
}

// Process implements Mediator. The request body carries the message id; the
// target replies with a status per the disposition table, optionally refining
// a 200 with a {ack,message,delaySeconds} body.
func (m *HTTPMediator) Process(ctx context.Context, p *message.Pointer) Result {
	cb := m.breaker(p.MediationTarget)

	out, err := cb.Execute(func() (interface{}, error) {
		res := m.call(ctx, p)
		if res.Outcome == message.ErrorServer {
			// Feed the breaker; the result still travels out.
			return res, fmt.Errorf("%w: %s", errServerClass, res.Detail)
		}
		return res, nil
	})

	if err != nil {
		if res, ok := out.(Result); ok && errors.Is(err, errServerClass) {
			return res
		}
		// Breaker open or half-open probe exhausted: skip the call entirely
		// and let the queue redeliver later.
		return Result{Outcome: message.ErrorServer, Detail: err.Error()}
	}
	return out.(Result)
}

func (m *HTTPMediator) call(ctx context.Context, p *message.Pointer) Result {
	body := jsonfast.New(64)
	body.BeginObject()
	body.AddStringField("messageId", p.ID)
	body.EndObject()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.MediationTarget, bytes.NewReader(body.Bytes()))
	if err != nil {
		return Result{Outcome: message.ErrorConfig, Detail: fmt.Sprintf("invalid mediation target: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	if p.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.AuthToken)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return Result{Outcome: message.ErrorServer, Detail: fmt.Sprintf("http request failed: %v", err)}
	}
	defer resp.Body.Close()

	return m.classify(resp, p)
}

// classify maps the transport status to an Outcome:
//
//	2xx            SUCCESS (a {ack:false} body downgrades to ERROR_PROCESS)
//	400, 408, 429  ERROR_PROCESS (malformed/transient class, retry)
//	other 4xx      ERROR_CONFIG  (permanent-looking, ack + critical warning)
//	5xx and rest   ERROR_SERVER  (retry after backoff)
func (m *HTTPMediator) classify(resp *http.Response, p *message.Pointer) Result {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return m.classifyBody(resp, p)
	case status == http.StatusBadRequest,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests:
		return Result{Outcome: message.ErrorProcess, Detail: fmt.Sprintf("status %d", status)}
	case status >= 400 && status < 500:
		return Result{Outcome: message.ErrorConfig, Detail: fmt.Sprintf("status %d", status)}
	default:
		return Result{Outcome: message.ErrorServer, Detail: fmt.Sprintf("status %d", status)}
	}
}

func (m *HTTPMediator) classifyBody(resp *http.Response, p *message.Pointer) Result {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(raw) == 0 {
		// No body is the common fast path: plain success.
		return Result{Outcome: message.Success}
	}

	var mr message.MediationResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		m.log.Debug("ignoring unparseable mediation response body for %s: %v", p.ID, err)
		return Result{Outcome: message.Success}
	}
	if mr.Ack {
		return Result{Outcome: message.Success, Detail: mr.Message}
	}
	// Accepted but not ready: retry after the requested delay.
	return Result{
		Outcome:      message.ErrorProcess,
		DelaySeconds: mr.EffectiveDelaySeconds(),
		Detail:       mr.Message,
	}
}
