package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CameraSeed is one entry of the CAMERAS_FILE list.
type CameraSeed struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	TenantID int64  `yaml:"tenant_id"`
	Active   *bool  `yaml:"active"`
}

type cameraSeedFile struct {
	Cameras []CameraSeed `yaml:"cameras"`
}

// IsActive defaults to true when the file omits the flag.
func (s CameraSeed) IsActive() bool {
	return s.Active == nil || *s.Active
}

// LoadCameraSeeds reads the YAML camera list. An empty path yields no seeds.
func LoadCameraSeeds(path string, defaultTenant int64) ([]CameraSeed, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read camera seeds %s: %w", path, err)
	}

	var file cameraSeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse camera seeds %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Cameras))
	for i := range file.Cameras {
		seed := &file.Cameras[i]
		if seed.ID == "" || seed.URL == "" {
			return nil, fmt.Errorf("camera seed #%d: id and url are required", i+1)
		}
		if _, dup := seen[seed.ID]; dup {
			return nil, fmt.Errorf("camera seed %q declared twice", seed.ID)
		}
		seen[seed.ID] = struct{}{}
		if seed.TenantID == 0 {
			seed.TenantID = defaultTenant
		}
		if seed.Name == "" {
			seed.Name = seed.ID
		}
	}
	return file.Cameras, nil
}
