// Package manifest handles hotpatch.toml configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "hotpatch.toml"

// EnvPrefix prefixes every environment override, e.g. HOTPATCH_STORE_PATH.
const EnvPrefix = "HOTPATCH_"

// Manifest represents a hotpatch.toml configuration.
type Manifest struct {
	Engine Engine `toml:"engine" envPrefix:"ENGINE_"`
	Store  Store  `toml:"store" envPrefix:"STORE_"`
	Server Server `toml:"server" envPrefix:"SERVER_"`

	// Dir is the directory containing the hotpatch.toml file (set at load time).
	Dir string `toml:"-" env:"-"`
}

// Engine configures the dispatch engine and logging.
type Engine struct {
	Name      string `toml:"name" env:"NAME"`
	Verbosity int    `toml:"verbosity" env:"VERBOSITY"` // commonlog verbosity; 0 logs errors only
	LogFile   string `toml:"log-file" env:"LOG_FILE"`   // empty logs to stderr
	Metrics   bool   `toml:"metrics" env:"METRICS"`
}

// Store configures the patch journal. An empty Path disables it.
type Store struct {
	Path   string `toml:"path" env:"PATH"`
	Replay bool   `toml:"replay" env:"REPLAY"`
}

// Server configures the control service.
type Server struct {
	Addr    string `toml:"addr" env:"ADDR"`
	Enabled bool   `toml:"enabled" env:"ENABLED"`
}

// Default returns the configuration used when no hotpatch.toml exists.
func Default() *Manifest {
	return &Manifest{
		Engine: Engine{
			Name:      "default",
			Verbosity: 1,
			Metrics:   true,
		},
		Store: Store{
			Path:   filepath.Join(".hotpatch", "patches.db"),
			Replay: true,
		},
		Server: Server{
			Addr: "127.0.0.1:4568",
		},
	}
}

// Load parses a hotpatch.toml file from the given directory, then applies
// environment overrides.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := m.applyEnv(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a hotpatch.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// LoadOrDefault is FindAndLoad falling back to Default rooted at startDir.
// Environment overrides apply in both cases.
func LoadOrDefault(startDir string) (*Manifest, error) {
	m, err := FindAndLoad(startDir)
	if err != nil || m != nil {
		return m, err
	}

	m = Default()
	m.Dir, err = filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", startDir, err)
	}
	if err := m.applyEnv(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) applyEnv() error {
	if err := env.ParseWithOptions(m, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports settings that cannot work together.
func (m *Manifest) Validate() error {
	var errs []error
	if m.Engine.Verbosity < -1 {
		errs = append(errs, fmt.Errorf("engine.verbosity %d is below -1", m.Engine.Verbosity))
	}
	if m.Server.Enabled && m.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required when the server is enabled"))
	}
	if m.Store.Replay && m.Store.Path == "" {
		errs = append(errs, errors.New("store.replay needs store.path"))
	}
	return errors.Join(errs...)
}

// StorePath returns the absolute journal path, or "" when the store is
// disabled.
func (m *Manifest) StorePath() string {
	return m.resolve(m.Store.Path)
}

// LogFilePath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogFilePath() string {
	return m.resolve(m.Engine.LogFile)
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
