package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// LoadFromPath reads a build file (YAML or JSON) and returns the parsed,
// validated File. Format is detected by extension (.yaml/.yml/.json) or by
// content (leading '{' means JSON).
func LoadFromPath(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read build file: %w", err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses a build file from bytes. ext is the file extension for the
// format hint; empty means detect from content.
func Load(data []byte, ext string) (*File, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == "" {
		if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
			ext = ".json"
		} else {
			ext = ".yaml"
		}
	}

	var f File
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse build file json: %w", err)
		}
	case ".yaml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse build file yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported build file extension %q", ext)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
