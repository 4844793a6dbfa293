package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"discrescue/internal/config"
	"discrescue/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	mediumPath string
}

// setupCLITestEnv writes a regular-file medium and a config file pointing at
// it, so commands can run without optical hardware.
func setupCLITestEnv(t *testing.T, sectors, sectorSize int) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	mediumPath := filepath.Join(base, "medium.bin")
	content := make([]byte, sectors*sectorSize)
	for i := range content {
		content[i] = byte(i % 251)
	}
	if err := os.WriteFile(mediumPath, content, 0o644); err != nil {
		t.Fatalf("write medium: %v", err)
	}

	cfg := testsupport.NewConfig(t, testsupport.WithSequenceLength(4))
	cfg.Device.Path = mediumPath
	cfg.Recovery.SectorSize = sectorSize

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		baseDir:    base,
		mediumPath: mediumPath,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, error) {
	t.Helper()

	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("output %q does not contain %q", output, want)
	}
}
