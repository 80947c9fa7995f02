package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"talentgrid-hq/conductor/pkg/telemetry/tracing"
)

// HTTPEngine is an Engine backed by a remote scoring service speaking JSON over
// HTTP. It posts the match request to <base_url>/score and expects a body of the
// form {"score": 72.5, "sub_scores": {...}, "confidence": 0.9}.
//
// HTTPEngine never retries: retry across engines is the executor's job, and a
// retry against the same engine would consume the same budget twice.
type HTTPEngine struct {
	// config contains the engine connection settings
	config Config

	// client is the HTTP client with connection pooling
	client *http.Client

	// health tracks the sideband health status
	health EngineHealth

	// healthMu protects concurrent access to health status
	healthMu sync.RWMutex

	// stopHealthCheck is closed to signal the health checker to stop
	stopHealthCheck chan struct{}

	// closeOnce guards stopHealthCheck
	closeOnce sync.Once
}

// NewHTTPEngine creates a new HTTP engine client with connection pooling.
// The client carries no timeout of its own; every call is bounded by the
// deadline of the context passed to Score.
func NewHTTPEngine(config Config) *HTTPEngine {
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPEngine{
		config: config,
		client: &http.Client{Transport: transport},
		health: EngineHealth{
			IsHealthy: true, // Start optimistic
			LastCheck: time.Now(),
		},
		stopHealthCheck: make(chan struct{}),
	}
}

// Name returns the engine identifier.
func (e *HTTPEngine) Name() string {
	return e.config.Name
}

// Score posts the match request to the engine and decodes its score.
func (e *HTTPEngine) Score(ctx context.Context, req *MatchRequest) (*Score, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &EngineError{Engine: e.config.Name, Message: "failed to encode request", Cause: err}
	}

	resp, err := e.do(ctx, http.MethodPost, "/score", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.transportError(ctx, err)
	}

	var score Score
	if err := json.Unmarshal(payload, &score); err != nil {
		return nil, &EngineError{
			Engine:  e.config.Name,
			Message: "malformed score response",
			Cause:   err,
		}
	}
	if score.Value < 0 || score.Value > 100 {
		return nil, &EngineError{
			Engine:  e.config.Name,
			Message: fmt.Sprintf("score %.2f out of range [0, 100]", score.Value),
		}
	}

	return &score, nil
}

// HealthCheck performs a synchronous health check against <base_url>/health.
func (e *HTTPEngine) HealthCheck(ctx context.Context) error {
	resp, err := e.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Health returns the latest sideband health information.
func (e *HTTPEngine) Health() EngineHealth {
	e.healthMu.RLock()
	defer e.healthMu.RUnlock()
	return e.health
}

// Close stops the health checker and releases idle connections.
func (e *HTTPEngine) Close() error {
	e.closeOnce.Do(func() {
		close(e.stopHealthCheck)
	})
	e.client.CloseIdleConnections()
	return nil
}

// do performs a single HTTP request and converts failures into typed errors.
func (e *HTTPEngine) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	url := strings.TrimRight(e.config.BaseURL, "/") + path

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, &EngineError{Engine: e.config.Name, Message: "failed to create request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.Inject(ctx, req.Header)
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	slog.Debug("sending request to engine",
		"engine", e.config.Name,
		"method", method,
		"url", url,
	)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.transportError(ctx, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	return nil, &EngineError{
		Engine:     e.config.Name,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(errorBody)),
	}
}

// transportError maps a client error to a TimeoutError when the context
// deadline fired, and to an EngineError otherwise.
func (e *HTTPEngine) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		// The budget is filled in by Normalize from the engine descriptor.
		return &TimeoutError{Engine: e.config.Name}
	}
	return &EngineError{Engine: e.config.Name, Message: "transport failure", Cause: err}
}

// updateHealth updates the sideband health status.
func (e *HTTPEngine) updateHealth(err error) {
	e.healthMu.Lock()
	defer e.healthMu.Unlock()

	e.health.LastCheck = time.Now()
	if err == nil {
		e.health.IsHealthy = true
		e.health.ConsecutiveFailures = 0
		e.health.LastError = nil
		return
	}

	e.health.ConsecutiveFailures++
	e.health.LastError = err
	if e.health.ConsecutiveFailures >= 3 {
		e.health.IsHealthy = false
	}
}
