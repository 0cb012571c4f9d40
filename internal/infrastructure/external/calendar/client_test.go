package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/pkg/circuitbreaker"
)

const eventsJSON = `{"events":[
  {"id":"cs-spring","category":"submission","department":"cs","due_date":"2026-06-30T23:59:00Z","readiness":true},
  {"id":"cs-rev","category":"Resubmission","department":"cs","due_date":"2026-07-15","readiness":true,"window_days":7},
  {"id":"math-spring","category":"submission","department":"math","due_date":"2026-06-20T12:00:00Z","readiness":false},
  {"id":"","category":"submission","due_date":"2026-06-30"}
]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL + "/")
	cfg.APIKey = "secret"
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetries = 2
	return NewClient(cfg)
}

func TestClient_ListEvents(t *testing.T) {
	var gotAuth, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("department")
		assert.Equal(t, "/api/v1/events", r.URL.Path)
		_, _ = w.Write([]byte(eventsJSON))
	})

	events, err := c.ListEvents(context.Background(), "cs")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "cs", gotQuery)
	require.Len(t, events, 2, "malformed and foreign-department events are dropped")

	assert.Equal(t, "cs-spring", events[0].ID)
	assert.Equal(t, schedule.CategorySubmission, events[0].Category)
	assert.True(t, events[0].Readiness)

	assert.Equal(t, schedule.CategoryResubmission, events[1].Category)
	assert.Equal(t, 7, events[1].WindowDays)
	assert.Equal(t, 15, events[1].DueDate.Day())
	assert.Equal(t, 23, events[1].DueDate.Hour(), "bare dates close at the end of the day")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"events":[]}`))
	})

	events, err := c.ListEvents(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.ListEvents(context.Background(), "cs")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_BreakerOpensOnRepeatedFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL)
	cfg.MaxRetries = 0
	cfg.Breaker = circuitbreaker.New("calendar-test", circuitbreaker.WithFailureThreshold(2))
	c := NewClient(cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.ListEvents(ctx, "")
		require.Error(t, err)
	}
	_, err := c.ListEvents(ctx, "")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_BadJSONIsPermanent(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"events":`))
	})

	_, err := c.ListEvents(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
