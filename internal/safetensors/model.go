package safetensors

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yourorg/promptlog/internal/metadata"
)

var ErrNoModel = errors.New("no config.json or safetensors file found")

// Model is a handle loaded from a model directory.
type Model struct {
	ConfigPath  string
	WeightsPath string
	Handle      *metadata.Handle
	file        *File
}

// Close releases the weights file.
func (m *Model) Close() error {
	if m == nil {
		return nil
	}
	return m.file.Close()
}

// LoadModelDir builds a handle from dir. The configuration comes from
// config.json (or unet/config.json for diffusers layouts) and the weights from
// the first safetensors file, preferring model*.safetensors.
func LoadModelDir(dir string) (*Model, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if strings.HasSuffix(dir, ".safetensors") {
			return loadFiles("", dir)
		}
		return nil, fmt.Errorf("%s: not a directory", dir)
	}

	configPath := firstExisting(filepath.Join(dir, "config.json"), filepath.Join(dir, "unet", "config.json"))
	weightsPath, err := findWeights(dir)
	if err != nil {
		return nil, err
	}
	if configPath == "" && weightsPath == "" {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoModel)
	}
	return loadFiles(configPath, weightsPath)
}

func loadFiles(configPath, weightsPath string) (*Model, error) {
	m := &Model{ConfigPath: configPath, WeightsPath: weightsPath, Handle: &metadata.Handle{}}
	if configPath != "" {
		cfg, err := readConfig(configPath)
		if err != nil {
			return nil, err
		}
		m.Handle.Config = cfg
	}
	if weightsPath != "" {
		f, err := Open(weightsPath)
		if err != nil {
			return nil, err
		}
		m.file = f
		m.Handle.Weights = f.Weights()
	}
	return m, nil
}

func readConfig(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	return cfg, nil
}

func findWeights(dir string) (string, error) {
	for _, pattern := range []string{"model*.safetensors", "*.safetensors", filepath.Join("unet", "*.safetensors")} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", err
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[0], nil
		}
	}
	return "", nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
