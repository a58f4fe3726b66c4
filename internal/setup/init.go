// Package setup creates and locates the .bankstander/ workspace directory.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/bankstander/internal/model"
	"github.com/msageha/bankstander/internal/uds"
	atomicyaml "github.com/msageha/bankstander/internal/yaml"
	"github.com/msageha/bankstander/templates"
)

// DirName is the workspace directory created inside a project.
const DirName = ".bankstander"

// Paths are the well-known files of a workspace rooted at Base.
type Paths struct {
	Base string
}

func (p Paths) Config() string     { return filepath.Join(p.Base, "config.yaml") }
func (p Paths) Socket() string     { return filepath.Join(p.Base, uds.DefaultSocketName) }
func (p Paths) Lock() string       { return filepath.Join(p.Base, "locks", "session.lock") }
func (p Paths) DaemonLog() string  { return filepath.Join(p.Base, "logs", "daemon.log") }
func (p Paths) AuditLog() string   { return filepath.Join(p.Base, "logs", "audit.jsonl") }
func (p Paths) StatusFile() string { return filepath.Join(p.Base, "state", "status.yaml") }

// Options tune the generated configuration.
type Options struct {
	// Recipe preselects a leather recipe instead of the template slots.
	Recipe        string
	CostumeNeedle bool
	// Force overwrites an existing config.yaml (the old file is kept as .bak).
	Force bool
}

// Run initializes the workspace directory inside projectDir.
func Run(projectDir string, opts Options) (Paths, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve project dir: %w", err)
	}
	p := Paths{Base: filepath.Join(absDir, DirName)}

	if _, err := os.Stat(p.Config()); err == nil && !opts.Force {
		return p, fmt.Errorf("%s already exists (use --force to overwrite)", p.Config())
	}

	for _, d := range []string{"logs", "locks", "state"} {
		if err := os.MkdirAll(filepath.Join(p.Base, d), 0755); err != nil {
			return p, fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	content, err := generateConfig(opts)
	if err != nil {
		return p, fmt.Errorf("generate config: %w", err)
	}
	if err := atomicyaml.AtomicWriteRaw(p.Config(), content, true); err != nil {
		return p, fmt.Errorf("write config.yaml: %w", err)
	}
	return p, nil
}

func generateConfig(opts Options) ([]byte, error) {
	data, err := fs.ReadFile(templates.FS, templates.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}
	if opts.Recipe == "" {
		return data, nil
	}

	r, ok := model.LookupRecipe(opts.Recipe)
	if !ok {
		return nil, fmt.Errorf("unknown recipe %q", opts.Recipe)
	}
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}
	cfg.Session.Recipe = r.Key
	cfg.Session.CostumeNeedle = opts.CostumeNeedle
	cfg.Session.Slots = nil
	cfg.Session.RequiredLevel = r.Level
	cfg.Simulation.Level = r.Level
	cfg.Simulation.Depot = map[string]int{
		model.NeedleID:        1,
		model.ThreadID:        500,
		model.CostumeNeedleID: 1,
		r.MaterialID:          540,
	}
	return yamlv3.Marshal(&cfg)
}

// Find walks up from dir looking for a workspace directory.
func Find(dir string) (Paths, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Paths{}, err
	}
	for {
		candidate := filepath.Join(abs, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return Paths{Base: candidate}, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return Paths{}, fmt.Errorf("%s/ not found (run 'bankstander init' first)", DirName)
		}
		abs = parent
	}
}
