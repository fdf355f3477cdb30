package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// The config file may be JSON or YAML, chosen by extension. YAML input is
// decoded and re-encoded as JSON so both formats pass through the same
// strict decoder in Parse, where DisallowUnknownFields catches typos.
func toStrictJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	out, err := json.Marshal(stringKeyed(doc))
	if err != nil {
		return nil, fmt.Errorf("convert yaml config: %w", err)
	}
	return out, nil
}

// stringKeyed rewrites decoded YAML collections in place so every map key
// is a string; json.Marshal refuses map[any]any even when the keys all
// happen to be strings.
func stringKeyed(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			x[k] = stringKeyed(child)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			out[fmt.Sprint(k)] = stringKeyed(child)
		}
		return out
	case []any:
		for i := range x {
			x[i] = stringKeyed(x[i])
		}
		return x
	default:
		return v
	}
}
