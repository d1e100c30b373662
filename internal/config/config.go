package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL       = "https://api.wheretheiss.at/v1/satellites/25544"
	DefaultUpdateMS     = 5000
	DefaultZoom         = 3
	DefaultFetchTimeout = 10 * time.Second
	DefaultIconPath     = "./web/iss_icon.png"
	DefaultHTTPAddr     = ":8080"
	DefaultMQTTClientID = "iss-tracker"

	MinZoom = 1
	MaxZoom = 19
)

// Config holds the application configuration
type Config struct {
	APIURL         string
	UpdateInterval time.Duration
	Zoom           int
	FetchTimeout   time.Duration
	IconPath       string
	HTTPAddr       string

	// Optional sinks; an empty value disables the sink
	NATSURL      string
	MQTTBroker   string
	MQTTClientID string
	RedisAddr    string
	DBConnStr    string
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	intervalMS, err := intEnv("UPDATE_INTERVAL_MS", DefaultUpdateMS)
	if err != nil {
		return nil, err
	}
	if intervalMS <= 0 {
		return nil, fmt.Errorf("UPDATE_INTERVAL_MS must be positive, got %d", intervalMS)
	}

	zoom, err := intEnv("MAP_ZOOM_LEVEL", DefaultZoom)
	if err != nil {
		return nil, err
	}
	if zoom < MinZoom || zoom > MaxZoom {
		return nil, fmt.Errorf("MAP_ZOOM_LEVEL must be between %d and %d, got %d", MinZoom, MaxZoom, zoom)
	}

	timeout := DefaultFetchTimeout
	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		timeout, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FETCH_TIMEOUT %q: %w", v, err)
		}
		if timeout < 0 {
			return nil, fmt.Errorf("FETCH_TIMEOUT must not be negative, got %s", timeout)
		}
	}

	return &Config{
		APIURL:         stringEnv("ISS_API_URL", DefaultAPIURL),
		UpdateInterval: time.Duration(intervalMS) * time.Millisecond,
		Zoom:           zoom,
		FetchTimeout:   timeout,
		IconPath:       stringEnv("ICON_PATH", DefaultIconPath),
		HTTPAddr:       stringEnv("HTTP_ADDR", DefaultHTTPAddr),
		NATSURL:        os.Getenv("NATS_URL"),
		MQTTBroker:     os.Getenv("MQTT_BROKER"),
		MQTTClientID:   stringEnv("MQTT_CLIENT_ID", DefaultMQTTClientID),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		DBConnStr:      os.Getenv("DB_CONN_STR"),
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
