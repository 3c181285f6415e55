// Package config handles configuration loading and management for portalsmoke.
//
// It provides functionality for:
//   - Loading configuration from .portalsmoke.yaml (or .json) files
//   - Default configuration values, including the fixed test credentials
//   - Layering CLI and environment overrides on top of file values
package config
