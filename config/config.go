package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingEnv = errors.New("missing-env")

type Config struct {
	AllowedOrigins []string
	PostgresURL    string
	JWTKey         string
	Port           string
	TimerSecret    string
	LogLevel       string
	Debug          bool

	GracePeriod  time.Duration
	StoreTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load reads the optional env files first; variables already present in the
// environment win over the file values.
func Load(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", file, err)
		}
	}

	cfg := Config{
		Port:        getString("PORT", "5000"),
		TimerSecret: os.Getenv("TIMER_SECRET"),
		LogLevel:    getString("LOG_LEVEL", "info"),
	}

	var err error

	origins, err := mustGetString("ALLOWED_ORIGINS")
	if err != nil {
		return Config{}, err
	}
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if cfg.PostgresURL, err = mustGetString("POSTGRES_URL"); err != nil {
		return Config{}, err
	}
	if cfg.JWTKey, err = mustGetString("JWT_KEY"); err != nil {
		return Config{}, err
	}
	if cfg.Debug, err = getBool("DEBUG", false); err != nil {
		return Config{}, err
	}
	if cfg.GracePeriod, err = getDuration("GRACE_PERIOD", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.StoreTimeout, err = getDuration("STORE_TIMEOUT", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeout, err = getDuration("IDLE_TIMEOUT", time.Minute); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func mustGetString(key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, key)
	}
	return value, nil
}

func getString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return parsed, nil
}
