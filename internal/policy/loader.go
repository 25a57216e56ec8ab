package policy

import (
	"fmt"
	"os"

	"github.com/interaction-monitor/pkg/models"
	"gopkg.in/yaml.v3"
)

// File is the on-disk rule configuration
type File struct {
	Rules    []models.ValidationRule `yaml:"rules"`
	Policies []models.Policy         `yaml:"policies"`
}

// LoadFile reads and parses a YAML rules file
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML rule configuration and validates every rule
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	for i := range f.Rules {
		if err := f.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	return &f, nil
}

// ApplyFile replaces the store's rules and policies with the file contents
func (s *Store) ApplyFile(f *File) error {
	return s.Replace(f.Rules, f.Policies)
}
