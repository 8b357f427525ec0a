package driven

import "github.com/custodia-labs/retriva-cli/internal/core/domain"

// ConfigStore provides access to application configuration.
// Implementations handle persistence (e.g., TOML files), defaulting
// and validation.
type ConfigStore interface {
	// Load reads, normalizes and validates the configuration. A
	// missing file yields the defaults; an invalid file is a
	// *domain.ConfigError.
	Load() (*domain.Settings, error)

	// Save persists the given configuration to storage.
	Save(settings *domain.Settings) error

	// Path returns the configuration file path.
	Path() string
}
