package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable. It runs before any device
// read so invalid tuning values never reach the recovery stages.
func (c *Config) Validate() error {
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateRecovery(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDevice() error {
	if c.Device.Path == "" {
		return errors.New("device.path must be set")
	}
	if c.Device.ReadTimeout < 1 {
		return fmt.Errorf("device.read_timeout must be at least 1 second, got %d", c.Device.ReadTimeout)
	}
	return nil
}

func (c *Config) validateRecovery() error {
	if c.Recovery.SequenceLength < 1 {
		return fmt.Errorf("recovery.sequence_length must be a positive sector count, got %d", c.Recovery.SequenceLength)
	}
	if c.Recovery.BrutePasses < 0 {
		return fmt.Errorf("recovery.brute_passes must not be negative, got %d", c.Recovery.BrutePasses)
	}
	if c.Recovery.SectorSize < 0 {
		return fmt.Errorf("recovery.sector_size must be a positive byte count or 0 for the medium default, got %d", c.Recovery.SectorSize)
	}
	if c.Recovery.SectorSize > 0 && c.Recovery.SectorSize%512 != 0 {
		return fmt.Errorf("recovery.sector_size must be a multiple of 512 bytes, got %d", c.Recovery.SectorSize)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

// EffectiveSectorSize resolves the configured sector size against the medium
// default.
func (c *Config) EffectiveSectorSize() int {
	if c.Recovery.SectorSize > 0 {
		return c.Recovery.SectorSize
	}
	return DefaultSectorSize
}
