// Package dispatcher posts queries to the remote webhook and turns the reply
// into display items or a classified error.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/young1lin/agentsearch/internal/config"
	"github.com/young1lin/agentsearch/internal/models"
	"github.com/young1lin/agentsearch/internal/normalizer"
	"github.com/young1lin/agentsearch/pkg/logger"
)

const defaultMaxBodyBytes = 10 * 1024 * 1024

// SessionSource supplies the session identifier sent with each request
type SessionSource interface {
	SessionID(ctx context.Context) string
}

// Dispatcher sends one webhook request per call
type Dispatcher struct {
	url          string
	action       string
	timeout      time.Duration
	maxBodyBytes int64
	client       *http.Client
	sessions     SessionSource
	limiter      *rate.Limiter
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithTimeout overrides the configured request deadline
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// New creates a dispatcher for the configured webhook
func New(cfg *config.WebhookConfig, sessions SessionSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		url:          cfg.URL,
		action:       cfg.Action,
		timeout:      cfg.Timeout(),
		maxBodyBytes: cfg.MaxBodyBytes,
		client:       &http.Client{},
		sessions:     sessions,
	}
	if d.action == "" {
		d.action = "sendMessage"
	}
	if d.maxBodyBytes <= 0 {
		d.maxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch posts query to the webhook and normalizes the reply.
// Errors are one of ErrTimeout, *HTTPStatusError, *MalformedResponseError
// or *NetworkError.
func (d *Dispatcher) Dispatch(ctx context.Context, query string) ([]models.DisplayItem, error) {
	log := logger.FromContext(ctx).Named("dispatcher")
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			log.Warn("rate limit wait aborted", zap.Error(err))
			return nil, ErrTimeout
		}
	}

	payload := models.WebhookRequest{
		Action:    d.action,
		ChatInput: query,
		SessionID: d.sessions.SessionID(ctx),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}

	log.Info("sending query to webhook",
		zap.String("url", d.url),
		zap.String("session_id", payload.SessionID),
		zap.Int("query_len", len(query)),
	)

	resp, err := d.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			log.Warn("webhook request timed out", zap.Duration("timeout", d.timeout))
			return nil, ErrTimeout
		}
		log.Error("webhook request failed", zap.Error(err))
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, readErr := readBody(resp.Body, d.maxBodyBytes)
	if ctx.Err() != nil {
		// the reply raced the deadline; discard it
		log.Warn("webhook reply arrived after deadline", zap.Duration("timeout", d.timeout))
		return nil, ErrTimeout
	}

	log.Info("received webhook response",
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("server error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(data)),
		)
		return nil, &HTTPStatusError{Code: resp.StatusCode, Body: string(data)}
	}

	if readErr != nil {
		log.Error("failed to read webhook body", zap.Error(readErr))
		return nil, &MalformedResponseError{Body: string(data), Err: readErr}
	}

	decoded, err := normalizer.Decode(data)
	if err != nil {
		log.Warn("webhook returned invalid JSON", zap.Error(err), zap.String("body", string(data)))
		return nil, &MalformedResponseError{Body: string(data), Err: err}
	}

	items := normalizer.Normalize(decoded)
	log.Info("response normalized", zap.Int("item_count", len(items)))
	return items, nil
}

func isTimeout(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// readBody reads at most maxSize bytes
func readBody(body io.Reader, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxSize+1))
	if err != nil {
		return data, err
	}
	if int64(len(data)) > maxSize {
		return data[:maxSize], fmt.Errorf("response body too large, truncated at %d bytes", maxSize)
	}
	return data, nil
}
