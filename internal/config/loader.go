package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Load reads a config file on top of defaults. An empty path returns
// the defaults unchanged. Environment variables in the file body are
// expanded before parsing. The format follows the file extension:
// .json/.json5 parse as JSON5, everything else as YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		// Parse JSON5 into a raw map, then feed it through the YAML
		// decoder so both formats share the same snake_case keys.
		var raw map[string]any
		if err := json5.Unmarshal(expanded, &raw); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		reencoded, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(reencoded, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
