// Package config loads the gateway's YAML configuration.
//
// Secrets may be written inline, as ${VAR}, or as secretref:<provider>:<ref>
// (see package secret). Command-line flags override file values in the
// binary.
package config
