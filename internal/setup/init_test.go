package setup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/msageha/bankstander/internal/config"
	"github.com/msageha/bankstander/internal/model"
)

func TestRun_CreatesWorkspace(t *testing.T) {
	projectDir := t.TempDir()

	p, err := Run(projectDir, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, d := range []string{"logs", "locks", "state"} {
		info, err := os.Stat(filepath.Join(p.Base, d))
		if err != nil {
			t.Errorf("directory %s does not exist: %v", d, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}

	content, err := os.ReadFile(p.Config())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(content), "file_type: config") {
		t.Errorf("config.yaml lacks the schema header:\n%s", content)
	}
	if _, err := config.Load(p.Config()); err != nil {
		t.Errorf("generated config does not load: %v", err)
	}
}

func TestRun_RejectsExistingConfig(t *testing.T) {
	projectDir := t.TempDir()
	if _, err := Run(projectDir, Options{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	_, err := Run(projectDir, Options{})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("second Run err = %v, want already exists", err)
	}

	p, err := Run(projectDir, Options{Force: true})
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if _, err := os.Stat(p.Config() + ".bak"); err != nil {
		t.Errorf("forced Run should keep a backup: %v", err)
	}
}

func TestRun_WithRecipe(t *testing.T) {
	p, err := Run(t.TempDir(), Options{Recipe: "Leather body", CostumeNeedle: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	l, err := config.Load(p.Config())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l.Config.Session.Recipe != "leather_body" {
		t.Errorf("recipe = %q", l.Config.Session.Recipe)
	}
	if l.Run.ToolSet != model.ToolSetCostumeNeedle {
		t.Errorf("tool set = %q", l.Run.ToolSet)
	}
	if l.Config.Simulation.Level != 14 {
		t.Errorf("simulation level = %d, want 14", l.Config.Simulation.Level)
	}

	if _, err := Run(t.TempDir(), Options{Recipe: "mithril_body"}); err == nil {
		t.Error("unknown recipe should fail")
	}
}

func TestFind_WalksUp(t *testing.T) {
	projectDir := t.TempDir()
	p, err := Run(projectDir, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	nested := filepath.Join(projectDir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	found, err := Find(nested)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.Base != p.Base {
		t.Errorf("found %q, want %q", found.Base, p.Base)
	}

	if _, err := Find(t.TempDir()); err == nil {
		t.Error("Find should fail outside a workspace")
	}
}

func TestPaths(t *testing.T) {
	p := Paths{Base: "/w/.bankstander"}
	if p.Socket() != "/w/.bankstander/bankstander.sock" {
		t.Errorf("socket = %q", p.Socket())
	}
	if p.Lock() != "/w/.bankstander/locks/session.lock" {
		t.Errorf("lock = %q", p.Lock())
	}
}
