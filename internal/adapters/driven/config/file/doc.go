// Package file provides the TOML-backed configuration store. Settings
// live in a single config.toml; missing values fall back to defaults
// and API keys are only ever referenced by environment variable name.
package file
