package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// clearEnv makes sure overrides from the test environment do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvTrace, EnvStore, EnvVerbosity} {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func TestLoadManifest(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, FileName, `
[project]
name = "fields"
version = "0.1.0"

[source]
units = ["units/*.toml", "extra/*.toml"]
entry = "counter"

[compiler]
debug-info = true

[vm]
trace = true
stack-size = 4096
max-depth = 64

[store]
path = "cache/images.db"
enabled = true

[log]
verbosity = 2
file = "classvm.log"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "fields" || m.Project.Version != "0.1.0" {
		t.Errorf("project = %+v", m.Project)
	}
	if len(m.Source.Units) != 2 || m.Source.Entry != "counter" {
		t.Errorf("source = %+v", m.Source)
	}
	if !m.Compiler.DebugInfo {
		t.Error("compiler debug-info = false, want true")
	}
	if !m.VM.Trace || m.VM.StackSize != 4096 || m.VM.MaxDepth != 64 {
		t.Errorf("vm = %+v", m.VM)
	}
	if !m.Store.Enabled {
		t.Error("store enabled = false, want true")
	}
	if got, want := m.StorePath(), filepath.Join(m.Dir, "cache", "images.db"); got != want {
		t.Errorf("StorePath() = %q, want %q", got, want)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if f := m.LogFile(); f == nil || *f != filepath.Join(m.Dir, "classvm.log") {
		t.Errorf("LogFile() = %v", f)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, FileName, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Units) != 1 || m.Source.Units[0] != "units/*.toml" {
		t.Errorf("default units = %v, want [units/*.toml]", m.Source.Units)
	}
	if m.Store.Enabled {
		t.Error("store should be disabled by default")
	}
	if m.Store.Path != filepath.Join(".classvm", "images.db") {
		t.Errorf("default store path = %q", m.Store.Path)
	}
	if m.LogFile() != nil {
		t.Error("default log file should be stderr")
	}
}

func TestLoadManifestErrors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing manifest")
	}

	dir := t.TempDir()
	writeFile(t, dir, FileName, "[project\nname = 1")
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvFileOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, FileName, "[vm]\ntrace = false\n")
	writeFile(t, dir, EnvFileName, "CLASSVM_TRACE=true\nCLASSVM_STORE=/tmp/other.db\nCLASSVM_VERBOSITY=1\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !m.VM.Trace {
		t.Error(".env should turn tracing on")
	}
	if !m.Store.Enabled || m.StorePath() != "/tmp/other.db" {
		t.Errorf("store = %+v", m.Store)
	}
	if m.Log.Verbosity != 1 {
		t.Errorf("verbosity = %d, want 1", m.Log.Verbosity)
	}
}

func TestProcessEnvBeatsEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, FileName, "[store]\nenabled = true\n")
	writeFile(t, dir, EnvFileName, "CLASSVM_VERBOSITY=1\n")
	t.Setenv(EnvVerbosity, "3")
	t.Setenv(EnvStore, "off")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Log.Verbosity != 3 {
		t.Errorf("verbosity = %d, want 3", m.Log.Verbosity)
	}
	if m.Store.Enabled {
		t.Error("CLASSVM_STORE=off should disable the store")
	}
}

func TestBadOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, FileName, "")
	t.Setenv(EnvTrace, "sometimes")

	if _, err := Load(dir); err == nil {
		t.Error("expected error for a non-boolean CLASSVM_TRACE")
	}
}

func TestFindAndLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, FileName, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	clearEnv(t)
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when not found")
	}
}

func TestDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	m, err := Default(dir)
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if len(m.Source.Units) != 1 || m.Store.Enabled {
		t.Errorf("Default() = %+v", m)
	}
}
