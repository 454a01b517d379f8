package deploy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrPlatformCorrupted is returned when the platform config cannot be parsed.
var ErrPlatformCorrupted = errors.New("platform config corrupted")

// PlatformEntry is one served template in the platform config.
type PlatformEntry struct {
	DeploymentID string    `yaml:"deployment_id" json:"deployment_id"`
	Owner        string    `yaml:"owner" json:"owner"`
	Path         string    `yaml:"path" json:"path"`
	UpdatedAt    time.Time `yaml:"updated_at" json:"updated_at"`
}

// PlatformConfig is the hosting platform's own configuration: the set of
// templates it serves, keyed by name.
type PlatformConfig struct {
	Version   int                       `yaml:"version"`
	Templates map[string]*PlatformEntry `yaml:"templates"`
}

func loadPlatform(path string) (*PlatformConfig, error) {
	cfg := &PlatformConfig{Version: 1, Templates: map[string]*PlatformEntry{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlatformCorrupted, err)
	}
	if cfg.Templates == nil {
		cfg.Templates = map[string]*PlatformEntry{}
	}
	return cfg, nil
}

// savePlatform writes cfg atomically.
func savePlatform(path string, cfg *PlatformConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal platform config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create platform config directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write platform config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename platform config: %w", err)
	}
	return nil
}
