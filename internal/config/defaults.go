package config

const (
	defaultLogDir         = "~/.local/share/discrescue/logs"
	defaultDevicePath     = "/dev/sr0"
	defaultReadTimeout    = 30
	defaultSequenceLength = 128
	defaultBrutePasses    = 2
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// DefaultSectorSize is the sector size assumed when neither the config nor
// the medium supplies one. Optical data discs use 2048-byte sectors.
const DefaultSectorSize = 2048

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Device: Device{
			Path:        defaultDevicePath,
			ReadTimeout: defaultReadTimeout,
			DirectIO:    true,
		},
		Recovery: Recovery{
			SequenceLength: defaultSequenceLength,
			BrutePasses:    defaultBrutePasses,
			SectorSize:     0,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
