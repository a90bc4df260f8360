package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader reads the catalog file.
type Loader struct {
	filePath string
}

func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

func (l *Loader) Path() string { return l.filePath }

// Load reads and parses the catalog. ${VAR} references are expanded from the
// environment before parsing.
func (l *Loader) Load() (File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return File{}, fmt.Errorf("failed to read catalog file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse catalog yaml: %w", err)
	}
	return f, nil
}
