// Package manifest handles classvm.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "classvm.toml"

// EnvFileName is the optional dotenv file read next to the manifest.
const EnvFileName = ".env"

// Environment variables that override manifest fields.
const (
	EnvTrace     = "CLASSVM_TRACE"
	EnvStore     = "CLASSVM_STORE"
	EnvVerbosity = "CLASSVM_VERBOSITY"
)

// Manifest represents a classvm.toml project configuration.
type Manifest struct {
	Project  Project        `toml:"project"`
	Source   Source         `toml:"source"`
	Compiler CompilerConfig `toml:"compiler"`
	VM       VMConfig       `toml:"vm"`
	Store    StoreConfig    `toml:"store"`
	Log      LogConfig      `toml:"log"`

	// Dir is the directory containing the classvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures unit file locations. Units are glob patterns relative
// to the manifest directory.
type Source struct {
	Units []string `toml:"units"`
	Entry string   `toml:"entry"`
}

// CompilerConfig configures code generation.
type CompilerConfig struct {
	DebugInfo bool `toml:"debug-info"`
}

// VMConfig configures the interpreter.
type VMConfig struct {
	Trace     bool `toml:"trace"`
	StackSize int  `toml:"stack-size"`
	MaxDepth  int  `toml:"max-depth"`
}

// StoreConfig configures the compiled image cache.
type StoreConfig struct {
	Path    string `toml:"path"`
	Enabled bool   `toml:"enabled"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Load parses a classvm.toml file from the given directory and applies
// environment overrides.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest: parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: cannot resolve path %s: %w", dir, err)
	}

	if err := m.applyEnv(); err != nil {
		return nil, err
	}
	return m, nil
}

// Parse decodes manifest text and fills in defaults. It does not apply
// environment overrides.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	// Defaults
	if len(m.Source.Units) == 0 {
		m.Source.Units = []string{"units/*.toml"}
	}
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(".classvm", "images.db")
	}
	return &m, nil
}

// Default returns the configuration used when no manifest is found.
func Default(dir string) (*Manifest, error) {
	m, err := Parse(nil)
	if err != nil {
		return nil, err
	}
	if m.Dir, err = filepath.Abs(dir); err != nil {
		return nil, err
	}
	if err := m.applyEnv(); err != nil {
		return nil, err
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a classvm.toml file,
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

// applyEnv overrides fields from the process environment and from the
// .env file next to the manifest. Process variables win.
func (m *Manifest) applyEnv() error {
	vars, err := godotenv.Read(filepath.Join(m.Dir, EnvFileName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("manifest: reading %s: %w", EnvFileName, err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}

	if v, ok := lookup(EnvTrace); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("manifest: %s=%q: %w", EnvTrace, v, err)
		}
		m.VM.Trace = b
	}
	if v, ok := lookup(EnvStore); ok {
		if v == "" || v == "off" {
			m.Store.Enabled = false
		} else {
			m.Store.Path = v
			m.Store.Enabled = true
		}
	}
	if v, ok := lookup(EnvVerbosity); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("manifest: %s=%q: %w", EnvVerbosity, v, err)
		}
		m.Log.Verbosity = n
	}
	return nil
}

// StorePath returns the absolute path of the image store database.
func (m *Manifest) StorePath() string {
	if filepath.IsAbs(m.Store.Path) {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}

// LogFile returns the absolute log file path, or nil for stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.Log.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.Dir, path)
	}
	return &path
}
