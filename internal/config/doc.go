// Package config loads, normalizes, and validates the daemon's TOML
// configuration. Defaults live in defaults.go; anything the user sets in
// ~/.config/sublingo/config.toml overrides them.
package config
