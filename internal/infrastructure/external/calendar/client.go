// Package calendar implements scheduling-event sources: the administrative
// calendar HTTP API, a YAML file or directory, and a read-through cache for
// advisory reads.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
	"github.com/deskinspect/thesis-lifecycle/pkg/circuitbreaker"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
	"github.com/deskinspect/thesis-lifecycle/pkg/retry"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the calendar API client.
type ClientConfig struct {
	// BaseURL is the calendar API base URL, e.g. https://calendar.example.edu
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client

	// Breaker overrides the default calendar circuit breaker.
	Breaker *circuitbreaker.CircuitBreaker

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:    baseURL,
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client reads scheduling events from the calendar API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

var _ schedule.EventSource = (*Client)(nil)

// NewClient creates a calendar API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	log := cfg.Logger.With(logger.Component("calendar"))
	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.CalendarBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		retrier: retry.CalendarRetrier(
			retry.WithMaxAttempts(cfg.MaxRetries+1),
			retry.WithInitialDelay(cfg.RetryDelay),
			retry.WithRetryIf(isRetryable),
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Warn("retrying calendar request",
					logger.Int("attempt", attempt),
					logger.Duration("delay", delay),
					logger.Err(err),
				)
			}),
		),
		breaker: cfg.Breaker,
		logger:  log,
		metrics: cfg.Metrics,
	}
}

// ListEvents implements schedule.EventSource. Every call hits the API.
func (c *Client) ListEvents(ctx context.Context, department string) ([]schedule.SchedulingEvent, error) {
	var resp eventsResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.get(ctx, department, &resp)
		})
	})
	c.metrics.RecordCalendarFetch("http", err)
	if err != nil {
		return nil, shared.WrapError("schedule", "List", shared.ErrServiceUnavailable, "calendar request failed", err)
	}

	events := make([]schedule.SchedulingEvent, 0, len(resp.Events))
	for _, dto := range resp.Events {
		event, err := dto.toDomain()
		if err != nil {
			c.logger.Warn("skipping malformed scheduling event", logger.EventID(dto.ID), logger.Err(err))
			continue
		}
		events = append(events, event)
	}
	return schedule.ForDepartment(events, department), nil
}

// Ping checks that the API answers. An open breaker fails the check
// without a request.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.breaker.Check(); err != nil {
		return err
	}
	var resp eventsResponse
	return c.get(ctx, "", &resp)
}

func (c *Client) get(ctx context.Context, department string, dest *eventsResponse) error {
	u := c.baseURL + "/api/v1/events"
	if department != "" {
		u += "?department=" + url.QueryEscape(department)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return retry.Permanent(fmt.Errorf("parse response: %w", err))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// StatusError is a non-200 answer from the calendar API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("calendar api returned %d: %s", e.StatusCode, e.Body)
}

// isRetryable retries transport failures, 429 and 5xx.
func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return !retry.IsPermanent(err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ══════════════════════════════════════════════════════════════════════════════
// DTO
// ══════════════════════════════════════════════════════════════════════════════

type eventsResponse struct {
	Events []eventDTO `json:"events"`
}

// eventDTO is shared by the API and YAML sources. DueDate is RFC 3339 or a
// bare date, which means the end of that day in the institution timezone.
type eventDTO struct {
	ID         string `json:"id" yaml:"id"`
	Category   string `json:"category" yaml:"category"`
	Title      string `json:"title" yaml:"title"`
	Department string `json:"department" yaml:"department"`
	DueDate    string `json:"due_date" yaml:"due_date"`
	Readiness  bool   `json:"readiness" yaml:"readiness"`
	WindowDays int    `json:"window_days" yaml:"window_days"`
}

func (d eventDTO) toDomain() (schedule.SchedulingEvent, error) {
	category, err := schedule.ParseCategory(d.Category)
	if err != nil {
		return schedule.SchedulingEvent{}, err
	}
	due, err := timeutil.ParseDueDate(strings.TrimSpace(d.DueDate))
	if err != nil {
		return schedule.SchedulingEvent{}, shared.WrapError("schedule", "Validate", shared.ErrInvalidInput, "bad due date", err)
	}
	event := schedule.SchedulingEvent{
		ID:         strings.TrimSpace(d.ID),
		Category:   category,
		Title:      d.Title,
		Department: strings.TrimSpace(d.Department),
		DueDate:    due,
		Readiness:  d.Readiness,
		WindowDays: d.WindowDays,
	}
	if err := event.Validate(); err != nil {
		return schedule.SchedulingEvent{}, err
	}
	return event, nil
}
