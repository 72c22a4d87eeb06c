package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"chatd/internal/common/fsutil"
	"chatd/pkg/types"
)

// file is the on-disk shape of a descriptor overlay.
type file struct {
	Models []types.ModelDescriptor `json:"models" yaml:"models" toml:"models"`
}

// LoadFile reads descriptors from a .yaml/.yml, .json or .toml file.
func LoadFile(path string) ([]types.ModelDescriptor, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var f file
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &f)
	case ".json":
		err = json.Unmarshal(b, &f)
	case ".toml":
		err = toml.Unmarshal(b, &f)
	default:
		return nil, fmt.Errorf("unsupported registry extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", path, err)
	}
	for i, m := range f.Models {
		if strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("registry %s: models[%d] has no id", path, i)
		}
		if strings.TrimSpace(m.Model) == "" {
			return nil, fmt.Errorf("registry %s: model %q has no runtime identifier", path, m.ID)
		}
	}
	return f.Models, nil
}

// Open returns the builtin table, overlaid with the descriptors in path when
// path is not empty.
func Open(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	extra, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	all := append(append([]types.ModelDescriptor(nil), builtin...), extra...)
	return New(all), nil
}
