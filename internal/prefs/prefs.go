// Package prefs persists user interface preferences between runs.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Theme is the display theme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// IsValid reports whether t is a recognised theme.
func (t Theme) IsValid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Prefs is the persisted preference document.
type Prefs struct {
	Theme Theme `yaml:"theme"`
}

// Default returns the preferences used when nothing has been saved.
func Default() Prefs {
	return Prefs{Theme: ThemeLight}
}

// Toggle flips the theme and returns the new value.
func (p *Prefs) Toggle() Theme {
	if p.Theme == ThemeDark {
		p.Theme = ThemeLight
	} else {
		p.Theme = ThemeDark
	}
	return p.Theme
}

// ResolvePath returns explicit if set, otherwise
// $XDG_CONFIG_HOME/studymate/prefs.yaml, falling back to
// ~/.config/studymate/prefs.yaml.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "studymate", "prefs.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("prefs: unable to resolve user home")
	}
	return filepath.Join(home, ".config", "studymate", "prefs.yaml"), nil
}

// Load reads the preferences at path. A missing file yields [Default]; an
// unknown theme falls back to light.
func Load(path string) (Prefs, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("prefs: read %q: %w", path, err)
	}

	p := Default()
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Default(), fmt.Errorf("prefs: decode %q: %w", path, err)
	}
	if !p.Theme.IsValid() {
		p.Theme = ThemeLight
	}
	return p, nil
}

// Save writes p to path atomically, creating parent directories.
func Save(path string, p Prefs) error {
	if !p.Theme.IsValid() {
		return fmt.Errorf("prefs: invalid theme %q", p.Theme)
	}
	b, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("prefs: encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("prefs: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("prefs: rename: %w", err)
	}
	return nil
}
