package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskinspect/thesis-lifecycle/config"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/memory"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

const eventsYAML = `events:
  - id: cs-spring
    category: submission
    department: cs
    due_date: 2026-06-30
    readiness: true
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	events := filepath.Join(dir, "events.yaml")
	require.NoError(t, os.WriteFile(events, []byte(eventsYAML), 0o600))

	return &config.Config{
		App:         config.AppConfig{Name: "thesis-lifecycle", Timezone: "UTC"},
		Store:       config.StoreConfig{Driver: config.StoreSQLite},
		SQLite:      config.SQLiteConfig{Path: filepath.Join(dir, "db", "thesis.db")},
		Redis:       config.RedisConfig{Disabled: true},
		Calendar:    config.CalendarConfig{File: events},
		Eligibility: config.EligibilityConfig{WindowDays: 14},
	}
}

func TestOpen_SQLiteWithoutRedis(t *testing.T) {
	ctx := context.Background()
	in, err := Open(ctx, testConfig(t), logger.Nop(), nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, in.Close(ctx)) }()

	assert.Nil(t, in.Redis)
	assert.Nil(t, in.ThesisCache)
	assert.IsType(t, &memory.Locker{}, in.Locker)
	assert.Equal(t, 14, in.Policy.WindowDays)

	names := make(map[string]bool)
	for _, c := range in.Checks {
		names[c.Name] = c.Critical
		assert.NoError(t, c.Ping(ctx), c.Name)
	}
	assert.Equal(t, map[string]bool{"store": true, "calendar": false}, names)

	events, err := in.Advisory.ListEvents(ctx, "cs")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "cs-spring", events[0].ID)

	bus, err := in.NewEventBus(ctx)
	require.NoError(t, err)
	received := make(chan shared.Event, 1)
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		received <- e
		return nil
	}))
	require.NoError(t, bus.Publish(shared.NewScheduleRefreshedEvent("cs", 1)))
	assert.Equal(t, shared.EventScheduleRefreshed, (<-received).EventType())
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "oracle"
	_, err := Open(context.Background(), cfg, logger.Nop(), nil)
	assert.Error(t, err)
}

func TestNewLogger_DebugOverridesLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Observability.LogLevel = "error"
	assert.Equal(t, logger.LevelError, NewLogger(cfg).Level())

	cfg.App.Debug = true
	assert.Equal(t, logger.LevelDebug, NewLogger(cfg).Level())
}
