package testsupport

import (
	"path/filepath"
	"testing"

	"discrescue/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a validated config seeded with unique temp directories
// per test. It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Device.Path = filepath.Join(base, "medium.bin")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithSequenceLength overrides the trial-scan probe granularity.
func WithSequenceLength(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Recovery.SequenceLength = n
	}
}

// WithBrutePasses overrides the brute-force pass count.
func WithBrutePasses(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Recovery.BrutePasses = n
	}
}
