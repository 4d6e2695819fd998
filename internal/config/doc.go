// Package config loads, normalizes, and validates the coordinator's
// TOML configuration. Defaults are applied before the file is parsed,
// so a missing file yields a runnable configuration as long as the
// worker endpoint is supplied.
package config
