package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/km-arc/go-container/container"
)

// Settings is the environment-driven container configuration.
type Settings struct {
	// Debug enables debug-level construction and teardown traces.
	Debug bool

	// ResolveTimeout bounds each top-level resolution. Zero disables it.
	ResolveTimeout time.Duration

	// EagerInit makes Seal construct non-lazy singletons up front.
	EagerInit bool

	// Metrics enables registration of the container collectors on the
	// default Prometheus registerer.
	Metrics bool
}

// Load reads .env (if present) and populates Settings from environment
// variables. Call once at bootstrap: settings := config.Load()
func Load(envFiles ...string) *Settings {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	return &Settings{
		Debug:          envBool("CONTAINER_DEBUG", false),
		ResolveTimeout: envDuration("CONTAINER_RESOLVE_TIMEOUT", 0),
		EagerInit:      envBool("CONTAINER_EAGER_INIT", true),
		Metrics:        envBool("CONTAINER_METRICS", false),
	}
}

// Options converts the settings into container options.
//
//	c := container.New(config.Load().Options()...)
func (s *Settings) Options() []container.Option {
	opts := []container.Option{
		container.WithEagerInit(s.EagerInit),
	}
	if s.ResolveTimeout > 0 {
		opts = append(opts, container.WithResolveTimeout(s.ResolveTimeout))
	}
	if s.Debug {
		opts = append(opts, container.WithLogger(slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)))
	}
	return opts
}

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// GetInt returns an int env value.
func GetInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetBool returns a bool env value.
func GetBool(key string, defaultVal bool) bool {
	return envBool(key, defaultVal)
}

// GetDuration returns a time.Duration env value, parsed with
// time.ParseDuration.
func GetDuration(key string, defaultVal time.Duration) time.Duration {
	return envDuration(key, defaultVal)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
