// Package prefs persists client preferences between sessions: the file
// delimiter, per-entity column mappings and the download directory.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Preferences is the persisted state. Mapeamentos maps entity type to a
// file header → field id mapping.
type Preferences struct {
	Delimitador string                       `json:"delimitador"`
	Mapeamentos map[string]map[string]string `json:"mapeamentos,omitempty"`
	DownloadDir string                       `json:"download_dir,omitempty"`
}

// Defaults returns the preferences used before anything was saved.
func Defaults() Preferences {
	return Preferences{Delimitador: ";"}
}

// normalize replaces values a newer or hand-edited file may carry.
func (p *Preferences) normalize() {
	if p.Delimitador != ";" && p.Delimitador != "," {
		p.Delimitador = ";"
	}
}

// Store loads and saves preferences.
type Store interface {
	Load() (Preferences, error)
	Save(Preferences) error
}

// FileStore keeps preferences as JSON in one file.
type FileStore struct {
	Path string
	mu   sync.Mutex
}

// NewFileStore returns a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// DefaultPath is the preferences file under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "frota-preferencias.json"
	}
	return filepath.Join(dir, "frota", "preferencias.json")
}

// Load reads the file. A missing file yields Defaults.
func (s *FileStore) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), fmt.Errorf("read preferences: %w", err)
	}

	p := Defaults()
	if err := json.Unmarshal(data, &p); err != nil {
		return Defaults(), fmt.Errorf("parse preferences %s: %w", s.Path, err)
	}
	p.normalize()
	return p, nil
}

// Save writes p through a temporary file so a crash never leaves a
// truncated file behind.
func (s *FileStore) Save(p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".preferencias-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp preferences: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}

// MemoryStore keeps preferences in memory.
type MemoryStore struct {
	mu    sync.Mutex
	prefs Preferences
	saves int
}

// NewMemoryStore starts from p.
func NewMemoryStore(p Preferences) *MemoryStore {
	return &MemoryStore{prefs: p}
}

func (m *MemoryStore) Load() (Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs.Clone(), nil
}

func (m *MemoryStore) Save(p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = p.Clone()
	m.saves++
	return nil
}

// Saves counts Save calls.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Clone returns a deep copy of p.
func (p Preferences) Clone() Preferences {
	out := p
	if p.Mapeamentos != nil {
		out.Mapeamentos = make(map[string]map[string]string, len(p.Mapeamentos))
		for tipo, m := range p.Mapeamentos {
			cp := make(map[string]string, len(m))
			for k, v := range m {
				cp[k] = v
			}
			out.Mapeamentos[tipo] = cp
		}
	}
	return out
}
