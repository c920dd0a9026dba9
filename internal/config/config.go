package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Retry delay after a failed extract, load, or provider outage. It
	// doubles on each consecutive failure up to BackoffMax.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Open-Meteo precipitation configuration.
	OpenMeteoEnabled     bool
	OpenMeteoForecastURL string
	OpenMeteoArchiveURL  string
	OpenMeteoTimeout     time.Duration
	OpenMeteoRateLimit   float64
	OpenMeteoRateBurst   int
	OpenMeteoCacheSize   int
	OpenMeteoForecastTTL time.Duration

	// ipinfo.io location lookup for requests without coordinates.
	IPInfoEnabled bool
	IPInfoToken   string
	IPInfoTimeout time.Duration

	ForecastDays       int
	PrecipitationBasis string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	backoffInitial, err := parsePositiveDuration("BACKOFF_INITIAL", "200ms")
	if err != nil {
		return nil, err
	}

	backoffMax, err := parsePositiveDuration("BACKOFF_MAX", "5s")
	if err != nil {
		return nil, err
	}
	if backoffMax < backoffInitial {
		return nil, errors.New("invalid BACKOFF_MAX: must not be less than BACKOFF_INITIAL")
	}

	openMeteoTimeout, err := parsePositiveDuration("OPENMETEO_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	forecastTTL, err := parsePositiveDuration("OPENMETEO_FORECAST_CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}

	ipinfoTimeout, err := parsePositiveDuration("IPINFO_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("OPENMETEO_RATE_LIMIT", "5"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, errors.New("invalid OPENMETEO_RATE_LIMIT")
	}

	rateBurst, err := strconv.Atoi(sharedcfg.EnvOrDefault("OPENMETEO_RATE_BURST", "5"))
	if err != nil || rateBurst < 1 {
		return nil, errors.New("invalid OPENMETEO_RATE_BURST")
	}

	// The window spans today through today+FORECAST_DAYS, so 15 keeps it
	// inside Open-Meteo's 16 day forecast horizon.
	forecastDays, err := strconv.Atoi(sharedcfg.EnvOrDefault("FORECAST_DAYS", "7"))
	if err != nil || forecastDays < 1 || forecastDays > 15 {
		return nil, errors.New("invalid FORECAST_DAYS: must be between 1 and 15")
	}

	basis := sharedcfg.EnvOrDefault("PRECIPITATION_BASIS", "total")
	if basis != "total" && basis != "mean" {
		return nil, errors.New("invalid PRECIPITATION_BASIS: must be total or mean")
	}

	ipinfoToken := os.Getenv("IPINFO_TOKEN")
	ipinfoEnabled := ipinfoToken != ""
	if v := os.Getenv("IPINFO_ENABLED"); v != "" {
		ipinfoEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "runoff-site-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "runoff-estimates"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "storm-data-runoff"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		BackoffInitial:     backoffInitial,
		BackoffMax:         backoffMax,

		OpenMeteoEnabled:     sharedcfg.EnvOrDefault("OPENMETEO_ENABLED", "true") == "true",
		OpenMeteoForecastURL: sharedcfg.EnvOrDefault("OPENMETEO_FORECAST_URL", "https://api.open-meteo.com/v1/forecast"),
		OpenMeteoArchiveURL:  sharedcfg.EnvOrDefault("OPENMETEO_ARCHIVE_URL", "https://archive-api.open-meteo.com/v1/archive"),
		OpenMeteoTimeout:     openMeteoTimeout,
		OpenMeteoRateLimit:   rateLimit,
		OpenMeteoRateBurst:   rateBurst,
		OpenMeteoCacheSize:   parseCacheSize(),
		OpenMeteoForecastTTL: forecastTTL,

		IPInfoEnabled: ipinfoEnabled,
		IPInfoToken:   ipinfoToken,
		IPInfoTimeout: ipinfoTimeout,

		ForecastDays:       forecastDays,
		PrecipitationBasis: basis,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.OpenMeteoEnabled && (cfg.OpenMeteoForecastURL == "" || cfg.OpenMeteoArchiveURL == "") {
		return nil, errors.New("OPENMETEO_FORECAST_URL and OPENMETEO_ARCHIVE_URL are required when OPENMETEO_ENABLED is true")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parseCacheSize() int {
	if s := os.Getenv("OPENMETEO_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 500
}
