package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore is a file-based implementation of driven.ConfigStore
// using TOML.
type ConfigStore struct {
	mu       sync.Mutex
	filePath string
}

// NewConfigStore creates a new TOML-based config store.
// If configDir is empty, defaults to ~/.retriva.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		configDir = filepath.Join(home, ".retriva")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	return &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
	}, nil
}

// Load reads the settings file, fills unset values with defaults and
// validates the result. A missing file yields the defaults.
func (s *ConfigStore) Load() (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := domain.DefaultSettings()

	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return &settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Unmarshal over a zero value so defaults only fill what the file
	// left unset.
	settings = domain.Settings{}
	if err := toml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Save writes the settings to the config file.
func (s *ConfigStore) Save(settings *domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := settings.Validate(); err != nil {
		return err
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}
