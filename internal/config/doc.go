// Package config defines the engine's tunable settings and loads them
// from TOML or YAML files. All durations and counts carry defaults
// that work unconfigured; a missing config file is not an error.
package config
