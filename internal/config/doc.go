// Package config loads, normalizes, and validates discrescue configuration.
//
// Configuration comes from a TOML file (default ~/.config/discrescue/config.toml
// or a project-local discrescue.toml) and covers device access, recovery
// tuning, and logging. Command-line flags override individual values after
// loading. Validation runs before any device read so bad tuning values are
// rejected up front.
package config
