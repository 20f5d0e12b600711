// Package manifest handles mavl.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/tamlang/tamvm/tam"
)

// Manifest describes a MAVL project: its source entry point, where the
// compiled image should be written, and any primitives it declares beyond
// the built-in set.
type Manifest struct {
	Project    Project      `toml:"project"`
	Source     Source       `toml:"source"`
	Image      ImageConfig  `toml:"image"`
	Primitives []Primitive  `toml:"primitives"`

	// Dir is the directory containing the mavl.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Source configures the project's single compilation entry point.
type Source struct {
	Entry string `toml:"entry"`
}

// ImageConfig configures where the assembled image and its debug-symbol
// sidecar are written.
type ImageConfig struct {
	Path    string `toml:"path"`
	Symbols string `toml:"symbols"`
}

// Primitive declares an extension primitive beyond the built-in 61,
// occupying a displacement in [PB, PT) above the last built-in.
type Primitive struct {
	Name         string `toml:"name"`
	Displacement int    `toml:"displacement"`
}

// Load parses a mavl.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "mavl.toml")
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

	if m.Source.Entry == "" {
		m.Source.Entry = "main.mavl"
	}
	if m.Image.Path == "" {
		m.Image.Path = m.Project.Name + ".tam"
	}
	if m.Image.Symbols == "" {
		m.Image.Symbols = m.Project.Name + ".tamsym"
	}

	if err := m.validatePrimitives(); err != nil {
		return nil, err
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a mavl.toml file, then loads
// and returns the manifest. Returns nil, nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "mavl.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path to the project's entry source file.
func (m *Manifest) EntryPath() string {
	return filepath.Join(m.Dir, m.Source.Entry)
}

// ImagePath returns the absolute path the assembled image should be
// written to.
func (m *Manifest) ImagePath() string {
	return filepath.Join(m.Dir, m.Image.Path)
}

// SymbolsPath returns the absolute path the debug-symbol sidecar should be
// written to.
func (m *Manifest) SymbolsPath() string {
	return filepath.Join(m.Dir, m.Image.Symbols)
}

// validatePrimitives requires declared extension primitives to occupy a
// dense range starting immediately above the last built-in displacement,
// with no duplicate names or displacements — the assembler's primitive
// table has no room for gaps.
func (m *Manifest) validatePrimitives() error {
	if len(m.Primitives) == 0 {
		return nil
	}
	seen := map[int]string{}
	displacements := make([]int, 0, len(m.Primitives))
	for _, p := range m.Primitives {
		if other, ok := seen[p.Displacement]; ok {
			return fmt.Errorf("primitives %q and %q both claim displacement %d", other, p.Name, p.Displacement)
		}
		seen[p.Displacement] = p.Name
		displacements = append(displacements, p.Displacement)
	}
	sort.Ints(displacements)
	want := int(tam.PrimitiveCount)
	for _, d := range displacements {
		if d != want {
			return fmt.Errorf("declared primitives must occupy a dense range starting at %d; got gap at %d", int(tam.PrimitiveCount), d)
		}
		want++
	}
	return nil
}
