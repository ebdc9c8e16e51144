package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// FileName is the workspace configuration file looked up in the root.
const FileName = ".dbml-language-server.yaml"

type Config struct {
	Include        []string `json:"include"         yaml:"include"`
	Exclude        []string `json:"exclude"         yaml:"exclude"`
	StateDir       string   `json:"state_dir"       yaml:"state_dir"`
	IndexWorkspace bool     `json:"index_workspace" yaml:"index_workspace"`
	Watch          bool     `json:"watch"           yaml:"watch"`
	GraphAddr      string   `json:"graph_addr"      yaml:"graph_addr"`
	DebounceMs     int      `json:"debounce_ms"     yaml:"debounce_ms"`
	MaxSymbols     int      `json:"max_symbols"     yaml:"max_symbols"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Include:        []string{"**/*.dbml"},
		Exclude:        []string{"**/node_modules/**"},
		StateDir:       defaultStateDir(),
		IndexWorkspace: true,
		Watch:          true,
		GraphAddr:      "127.0.0.1:0",
		DebounceMs:     200,
		MaxSymbols:     128,
	}
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "dbml-language-server")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "dbml-language-server")
	}
	return filepath.Join(os.TempDir(), "dbml-language-server")
}

// Load overlays v (typically the client's initializationOptions) on base.
// Only fields present in v overwrite.
func Load(base Config, v any) (Config, error) {
	cfg := base
	if v == nil {
		return cfg, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Config{}, fmt.Errorf("failed to marshal source: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal into Config: %w", err)
	}
	return cfg, nil
}

// LoadYAML overlays the YAML document read from r on base.
func LoadYAML(base Config, r io.Reader) (Config, error) {
	cfg := base
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode yaml: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path on base. A missing file leaves
// base unchanged.
func LoadFile(base Config, path string) (Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadYAML(base, f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the glob patterns and numeric limits.
func (c Config) Validate() error {
	var errs []error
	for _, pattern := range append(append([]string{}, c.Include...), c.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("invalid glob %q", pattern))
		}
	}
	if len(c.Include) == 0 {
		errs = append(errs, errors.New("include must not be empty"))
	}
	if c.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("debounce_ms must not be negative, got %d", c.DebounceMs))
	}
	if c.MaxSymbols <= 0 {
		errs = append(errs, fmt.Errorf("max_symbols must be positive, got %d", c.MaxSymbols))
	}
	return errors.Join(errs...)
}

// Debounce returns the watcher debounce interval.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Matches reports whether the slash-separated relative path is selected by
// the include globs and not by an exclude glob.
func (c Config) Matches(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, pattern := range c.Exclude {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return false
		}
	}
	for _, pattern := range c.Include {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}
