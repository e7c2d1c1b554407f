package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "vireo.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFullManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
version = "0.1.0"
entry = "main.vireo"

[runtime]
max-frames = 500
trace = true

[repl]
prompt = "demo> "
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.Project.Name != "demo" || m.Project.Version != "0.1.0" {
		t.Errorf("project = %+v", m.Project)
	}
	if m.Runtime.MaxFrames != 500 {
		t.Errorf("max-frames = %d, want 500", m.Runtime.MaxFrames)
	}
	if !m.Runtime.Trace {
		t.Error("trace should be enabled")
	}
	if m.Repl.Prompt != "demo> " {
		t.Errorf("prompt = %q", m.Repl.Prompt)
	}
	if m.Dir == "" {
		t.Error("Dir should be recorded at load time")
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "bare"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.Repl.Prompt != ">> " {
		t.Errorf("default prompt = %q", m.Repl.Prompt)
	}
	if m.Runtime.MaxFrames != 0 {
		t.Errorf("max-frames should default to 0 (runtime default), got %d", m.Runtime.MaxFrames)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("loading a directory without vireo.toml should fail")
	}
}

func TestLoadMalformedToml(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project\nname = ")
	if _, err := Load(dir); err == nil {
		t.Fatal("malformed toml should fail")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"up\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Project.Name != "up" {
		t.Fatalf("manifest not found from nested directory: %+v", m)
	}
}

func TestFindAndLoadMissingReturnsNil(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Fatalf("expected no manifest, got %+v", m)
	}
}

func TestEntryPath(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project]\nname = \"e\"\nentry = \"src/main.vireo\"\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(m.Dir, "src", "main.vireo")
	if got := m.EntryPath(); got != want {
		t.Errorf("EntryPath = %q, want %q", got, want)
	}

	writeManifest(t, dir, "[project]\nname = \"e\"\n")
	m, err = Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.EntryPath() != "" {
		t.Error("EntryPath should be empty when no entry is configured")
	}
}
