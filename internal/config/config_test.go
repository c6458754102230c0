package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, "http://geo.crox.net/djia", cfg.DJIABaseURL)
	assert.Equal(t, 10*time.Second, cfg.DJIATimeout)

	assert.True(t, cfg.AlarmEnabled)
	assert.Equal(t, 9, cfg.DailyWakeHour)
	assert.Equal(t, 30, cfg.DailyWakeMin)
	assert.Equal(t, 30*time.Minute, cfg.RetryDelay)

	assert.Equal(t, "1.1.1.1:443", cfg.ProbeAddr)
	assert.Equal(t, 15*time.Second, cfg.ProbeInterval)

	assert.Equal(t, "data/geohash.db", cfg.StorePath)
	assert.Equal(t, 365, cfg.RetentionDays)
	assert.Equal(t, "0 4 * * *", cfg.PruneSchedule)

	assert.False(t, cfg.KafkaEnabled)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "geohash-destinations", cfg.KafkaDestinationTopic)
	assert.Equal(t, "geohash-notifications", cfg.KafkaNotificationTopic)

	assert.Equal(t, "single", cfg.NotifyPolicy)
	assert.Equal(t, 5, cfg.NotifySlots)
	assert.True(t, cfg.GlobalNotify)
	assert.Equal(t, 250.0, cfg.GlobalThresholdKm)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("DJIA_BASE_URL", "http://localhost:8181/djia")
	t.Setenv("DJIA_TIMEOUT", "5s")
	t.Setenv("ALARM_ENABLED", "false")
	t.Setenv("DAILY_WAKE", "10:15")
	t.Setenv("RETRY_DELAY", "10m")
	t.Setenv("STORE_PATH", "/tmp/geohash-test.db")
	t.Setenv("RETENTION_DAYS", "30")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_DESTINATION_TOPIC", "dest-topic")
	t.Setenv("NOTIFY_POLICY", "per-cell")
	t.Setenv("NOTIFY_SLOTS", "3")
	t.Setenv("GLOBAL_NOTIFY", "false")
	t.Setenv("GLOBAL_THRESHOLD_KM", "100.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://localhost:8181/djia", cfg.DJIABaseURL)
	assert.Equal(t, 5*time.Second, cfg.DJIATimeout)
	assert.False(t, cfg.AlarmEnabled)
	assert.Equal(t, 10, cfg.DailyWakeHour)
	assert.Equal(t, 15, cfg.DailyWakeMin)
	assert.Equal(t, 10*time.Minute, cfg.RetryDelay)
	assert.Equal(t, "/tmp/geohash-test.db", cfg.StorePath)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "dest-topic", cfg.KafkaDestinationTopic)
	assert.Equal(t, "per-cell", cfg.NotifyPolicy)
	assert.Equal(t, 3, cfg.NotifySlots)
	assert.False(t, cfg.GlobalNotify)
	assert.Equal(t, 100.5, cfg.GlobalThresholdKm)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad wake time", "DAILY_WAKE", "25:99"},
		{"bad retry delay", "RETRY_DELAY", "soon"},
		{"negative retention", "RETENTION_DAYS", "-1"},
		{"zero slots", "NOTIFY_SLOTS", "0"},
		{"unknown policy", "NOTIFY_POLICY", "loudest"},
		{"kafka enabled without brokers", "KAFKA_ENABLED", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
