package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "mavl.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "example"

[source]
entry = "main.mavl"

[image]
path = "main.tam"
symbols = "main.tamsym"

[[primitives]]
name = "extra_primitive"
displacement = 61
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "example" {
		t.Errorf("project name = %q, want example", m.Project.Name)
	}
	if m.Source.Entry != "main.mavl" {
		t.Errorf("source entry = %q, want main.mavl", m.Source.Entry)
	}
	if m.Image.Path != "main.tam" {
		t.Errorf("image path = %q, want main.tam", m.Image.Path)
	}
	if m.Image.Symbols != "main.tamsym" {
		t.Errorf("image symbols = %q, want main.tamsym", m.Image.Symbols)
	}
	if len(m.Primitives) != 1 || m.Primitives[0].Name != "extra_primitive" || m.Primitives[0].Displacement != 61 {
		t.Errorf("primitives = %v, want one extra_primitive@61", m.Primitives)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Source.Entry != "main.mavl" {
		t.Errorf("default source entry = %q, want main.mavl", m.Source.Entry)
	}
	if m.Image.Path != "minimal.tam" {
		t.Errorf("default image path = %q, want minimal.tam", m.Image.Path)
	}
	if m.Image.Symbols != "minimal.tamsym" {
		t.Errorf("default image symbols = %q, want minimal.tamsym", m.Image.Symbols)
	}
}

func TestLoadManifestRejectsOverlappingPrimitiveDisplacement(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "bad"

[[primitives]]
name = "a"
displacement = 61

[[primitives]]
name = "b"
displacement = 61
`)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected an error for duplicate displacement 61")
	}
}

func TestLoadManifestRejectsGapInPrimitiveRange(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "bad"

[[primitives]]
name = "a"
displacement = 62
`)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected an error for a primitive range that does not start immediately above the built-ins")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `
[project]
name = "found-project"
`)

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
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no mavl.toml exists")
	}
}

func TestEntryAndImagePaths(t *testing.T) {
	m := &Manifest{
		Dir:    "/app",
		Source: Source{Entry: "main.mavl"},
		Image:  ImageConfig{Path: "main.tam", Symbols: "main.tamsym"},
	}
	if got := m.EntryPath(); got != "/app/main.mavl" {
		t.Errorf("EntryPath() = %q, want /app/main.mavl", got)
	}
	if got := m.ImagePath(); got != "/app/main.tam" {
		t.Errorf("ImagePath() = %q, want /app/main.tam", got)
	}
	if got := m.SymbolsPath(); got != "/app/main.tamsym" {
		t.Errorf("SymbolsPath() = %q, want /app/main.tamsym", got)
	}
}
