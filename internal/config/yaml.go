package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// fileFormat is the on-disk syntax of the relay config.
type fileFormat string

const (
	formatJSON fileFormat = "json"
	formatYAML fileFormat = "yaml"
)

// detectFormat goes by extension. Files without a known extension are JSON
// when they start with '{' and YAML otherwise.
func detectFormat(path string, data []byte) fileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON
	case ".yaml", ".yml":
		return formatYAML
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return formatJSON
	}
	return formatYAML
}

// toJSON returns the config as JSON so both syntaxes go through the same
// strict decoder in Manager.Parse.
func toJSON(path string, data []byte) ([]byte, fileFormat, error) {
	format := detectFormat(path, data)
	if format == formatJSON {
		return data, format, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, format, fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		// empty file; let the decoder report missing fields
		return []byte("{}"), format, nil
	}
	out, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, format, fmt.Errorf("convert yaml: %w", err)
	}
	return out, format, nil
}

// stringKeys rewrites YAML maps with non-string keys (e.g. `1: x` in a
// broadcast payload) into JSON-compatible maps.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = stringKeys(val)
		}
		return m
	case map[string]any:
		for k, val := range x {
			x[k] = stringKeys(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = stringKeys(val)
		}
		return x
	}
	return v
}
