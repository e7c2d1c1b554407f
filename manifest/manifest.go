// Package manifest handles vireo.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a vireo.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Runtime Runtime `toml:"runtime"`
	Repl    Repl    `toml:"repl"`

	// Dir is the directory containing the vireo.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"`
}

// Runtime configures the virtual machine.
type Runtime struct {
	// MaxFrames bounds call-stack depth; 0 keeps the runtime default.
	MaxFrames int `toml:"max-frames"`
	// Trace enables per-instruction debug logging.
	Trace bool `toml:"trace"`
}

// Repl configures the interactive prompt.
type Repl struct {
	Prompt string `toml:"prompt"`
}

// Load parses a vireo.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "vireo.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Repl.Prompt == "" {
		m.Repl.Prompt = ">> "
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a vireo.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "vireo.toml")
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

// EntryPath returns the absolute path of the configured entry file, or ""
// when none is configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}
