package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"discrescue/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if got := cfg.EffectiveSectorSize(); got != config.DefaultSectorSize {
		t.Fatalf("EffectiveSectorSize = %d, want %d", got, config.DefaultSectorSize)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := strings.Join([]string{
		"[device]",
		`path = "/dev/sr1"`,
		"read_timeout = 5",
		"",
		"[recovery]",
		"sequence_length = 64",
		"brute_passes = 4",
		"sector_size = 2048",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s to be used, got %s exists=%v", path, resolved, exists)
	}
	if cfg.Device.Path != "/dev/sr1" {
		t.Errorf("device.path = %q", cfg.Device.Path)
	}
	if cfg.Recovery.SequenceLength != 64 || cfg.Recovery.BrutePasses != 4 {
		t.Errorf("recovery overrides not applied: %+v", cfg.Recovery)
	}
	if cfg.EffectiveSectorSize() != 2048 {
		t.Errorf("EffectiveSectorSize = %d", cfg.EffectiveSectorSize())
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Errorf("logging defaults not retained: %+v", cfg.Logging)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.toml")
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load with absent file: %v", err)
	}
	if exists {
		t.Fatal("exists should be false for a missing file")
	}
	if cfg.Recovery.SequenceLength != 128 || cfg.Recovery.BrutePasses != 2 {
		t.Fatalf("expected defaults, got %+v", cfg.Recovery)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero sequence length", func(c *config.Config) { c.Recovery.SequenceLength = 0 }, "sequence_length"},
		{"negative brute passes", func(c *config.Config) { c.Recovery.BrutePasses = -1 }, "brute_passes"},
		{"negative sector size", func(c *config.Config) { c.Recovery.SectorSize = -2048 }, "sector_size"},
		{"unaligned sector size", func(c *config.Config) { c.Recovery.SectorSize = 2000 }, "multiple of 512"},
		{"zero read timeout", func(c *config.Config) { c.Device.ReadTimeout = 0 }, "read_timeout"},
		{"empty device path", func(c *config.Config) { c.Device.Path = "" }, "device.path"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("sample config should exist")
	}
	if cfg.Recovery.SequenceLength != 128 {
		t.Fatalf("sample defaults drifted: %+v", cfg.Recovery)
	}
}
