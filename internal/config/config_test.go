package config

import (
	"testing"
	"time"

	"github.com/kapu/hololive-widget-go/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("OFFICIAL_URL", "https://example.com/official.json")
	t.Setenv("CUSTOM_URL", "https://example.com/custom.json")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, OfficialSourceHTTP, cfg.Sources.Official)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Cache.DedupInFlight)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "0 * * * *", cfg.Pipeline.RefreshCron)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.RetryDelay)
	assert.Equal(t, time.Second, cfg.Countdown.TickInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Countdown.SetupDelay)
	assert.Equal(t, 5*time.Minute, cfg.Events.SyncInterval)
	assert.Equal(t, TargetBackendWebSocket, cfg.Targets.Backend)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "Asia/Tokyo", cfg.Server.Timezone)
	assert.False(t, cfg.EventsEnabled())
}

func TestFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("REFRESH_CRON", "*/15 * * * *")
	t.Setenv("TARGET_BACKEND", "Redis")
	t.Setenv("EVENTS_URL", "https://example.com/events.json")
	t.Setenv("REDIS_PORT", "not-a-number")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "*/15 * * * *", cfg.Pipeline.RefreshCron)
	assert.Equal(t, TargetBackendRedis, cfg.Targets.Backend)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.True(t, cfg.EventsEnabled())
}

func TestFromEnvPostgresSourceNeedsNoOfficialURL(t *testing.T) {
	t.Setenv("OFFICIAL_SOURCE", "postgres")
	t.Setenv("CUSTOM_URL", "https://example.com/custom.json")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, OfficialSourcePostgres, cfg.Sources.Official)
}

func TestFromEnvValidation(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"missing custom", map[string]string{"CUSTOM_URL": ""}, "CUSTOM_URL"},
		{"missing official", map[string]string{"OFFICIAL_URL": ""}, "OFFICIAL_URL"},
		{"bad source", map[string]string{"OFFICIAL_SOURCE": "ftp"}, "OFFICIAL_SOURCE"},
		{"bad cron", map[string]string{"REFRESH_CRON": "every hour"}, "REFRESH_CRON"},
		{"bad backend", map[string]string{"TARGET_BACKEND": "dom"}, "TARGET_BACKEND"},
		{"zero tick", map[string]string{"COUNTDOWN_TICK_MS": "0"}, "COUNTDOWN_TICK_MS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := FromEnv()
			require.Error(t, err)

			var validationErr *errors.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}
