package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Index source configuration.
	DJIABaseURL string
	DJIATimeout time.Duration

	// Fetch scheduling.
	AlarmEnabled  bool
	DailyWakeHour int // wall-clock target in America/New_York
	DailyWakeMin  int
	RetryDelay    time.Duration

	// Connectivity probing while awaiting network.
	ProbeAddr     string
	ProbeInterval time.Duration

	// Persistence.
	StorePath     string
	RetentionDays int
	PruneSchedule string // cron expression for the retention sweep

	// Destination broadcast + notification events.
	KafkaEnabled           bool
	KafkaBrokers           []string
	KafkaDestinationTopic  string
	KafkaNotificationTopic string

	// Known-location matching.
	NotifyPolicy      string
	NotifySlots       int
	GlobalNotify      bool
	GlobalThresholdKm float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	djiaTimeout, err := parseDuration("DJIA_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("RETRY_DELAY", "30m")
	if err != nil {
		return nil, err
	}
	probeInterval, err := parseDuration("PROBE_INTERVAL", "15s")
	if err != nil {
		return nil, err
	}

	wakeHour, wakeMin, err := parseWakeTime(sharedcfg.EnvOrDefault("DAILY_WAKE", "09:30"))
	if err != nil {
		return nil, err
	}

	retentionDays, err := parsePositiveInt("RETENTION_DAYS", 365)
	if err != nil {
		return nil, err
	}
	notifySlots, err := parsePositiveInt("NOTIFY_SLOTS", 5)
	if err != nil {
		return nil, err
	}
	globalThreshold, err := parsePositiveFloat("GLOBAL_THRESHOLD_KM", 250)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DJIABaseURL: sharedcfg.EnvOrDefault("DJIA_BASE_URL", "http://geo.crox.net/djia"),
		DJIATimeout: djiaTimeout,

		AlarmEnabled:  sharedcfg.EnvOrDefault("ALARM_ENABLED", "true") == "true",
		DailyWakeHour: wakeHour,
		DailyWakeMin:  wakeMin,
		RetryDelay:    retryDelay,

		ProbeAddr:     sharedcfg.EnvOrDefault("PROBE_ADDR", "1.1.1.1:443"),
		ProbeInterval: probeInterval,

		StorePath:     sharedcfg.EnvOrDefault("STORE_PATH", "data/geohash.db"),
		RetentionDays: retentionDays,
		PruneSchedule: sharedcfg.EnvOrDefault("PRUNE_SCHEDULE", "0 4 * * *"),

		KafkaEnabled:           kafkaEnabled,
		KafkaBrokers:           brokers,
		KafkaDestinationTopic:  sharedcfg.EnvOrDefault("KAFKA_DESTINATION_TOPIC", "geohash-destinations"),
		KafkaNotificationTopic: sharedcfg.EnvOrDefault("KAFKA_NOTIFICATION_TOPIC", "geohash-notifications"),

		NotifyPolicy:      sharedcfg.EnvOrDefault("NOTIFY_POLICY", "single"),
		NotifySlots:       notifySlots,
		GlobalNotify:      sharedcfg.EnvOrDefault("GLOBAL_NOTIFY", "true") == "true",
		GlobalThresholdKm: globalThreshold,
	}

	if cfg.DJIABaseURL == "" {
		return nil, errors.New("DJIA_BASE_URL is required")
	}
	if cfg.StorePath == "" {
		return nil, errors.New("STORE_PATH is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	switch cfg.NotifyPolicy {
	case "single", "per-cell", "per-location", "none":
	default:
		return nil, fmt.Errorf("invalid NOTIFY_POLICY %q", cfg.NotifyPolicy)
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

// parseWakeTime parses an "HH:MM" wall-clock target.
func parseWakeTime(s string) (hour, minute int, err error) {
	t, perr := time.Parse("15:04", s)
	if perr != nil {
		return 0, 0, fmt.Errorf("invalid DAILY_WAKE %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
