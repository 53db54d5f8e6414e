package config

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Merge combines configuration files into a single document. Directories are
// walked for .yaml, .yml and .json files. Mappings are merged recursively and
// any other value set by a later file replaces the earlier one, unless
// conflictError is set and the values differ.
func Merge(configFiles []string, conflictError bool) ([]byte, error) {
	var paths []string
	for _, f := range configFiles {
		err := filepath.WalkDir(f, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if path != f && !isConfigFile(path) {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	docs := make([]map[string]any, 0, len(paths))
	for _, f := range paths {
		bs, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %v: %w", f, err)
		}
		var x map[string]any
		if err := yaml.Unmarshal(bs, &x); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration file %v: %w", f, err)
		}
		if x != nil {
			docs = append(docs, x)
		}
	}

	merged, err := merge(docs, "", conflictError)
	if err != nil {
		return nil, err
	}
	if len(merged) == 0 {
		return nil, nil
	}

	bs, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged configuration: %w", err)
	}

	return bs, nil
}

func isConfigFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func merge(docs []map[string]any, path string, conflictError bool) (map[string]any, error) {
	result := make(map[string]any)
	for _, doc := range docs {
		for _, key := range slices.Sorted(maps.Keys(doc)) { // sorted for deterministic conflict errors
			value := doc[key]
			existing, ok := result[key]
			if !ok {
				result[key] = value
				continue
			}

			existingMap, ok1 := existing.(map[string]any)
			valueMap, ok2 := value.(map[string]any)
			if ok1 && ok2 {
				var err error
				result[key], err = merge([]map[string]any{existingMap, valueMap}, path+"/"+key, conflictError)
				if err != nil {
					return nil, err
				}
				continue
			}

			if conflictError && !reflect.DeepEqual(existing, value) {
				return nil, fmt.Errorf("conflict for config path %s", path+"/"+key)
			}
			result[key] = value
		}
	}
	return result, nil
}
