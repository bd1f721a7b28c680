package prefs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_MissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nada.json"))

	p, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Delimitador != ";" || p.Mapeamentos != nil {
		t.Errorf("Load() = %+v, want defaults", p)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "preferencias.json")
	s := NewFileStore(path)

	want := Preferences{
		Delimitador: ",",
		Mapeamentos: map[string]map[string]string{"veiculos": {"Côr": "cor"}},
		DownloadDir: "/tmp/exportacoes",
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := NewFileStore(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Delimitador != "," || got.DownloadDir != want.DownloadDir || got.Mapeamentos["veiculos"]["Côr"] != "cor" {
		t.Errorf("Load() = %+v", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, temp file left behind", len(entries))
	}
}

func TestFileStore_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"tab becomes default", `{"delimitador":"\t"}`, ";", false},
		{"comma kept", `{"delimitador":","}`, ",", false},
		{"missing field", `{}`, ";", false},
		{"corrupt", `{"delimitador":`, ";", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "p.json")
			os.WriteFile(path, []byte(tt.content), 0o600)

			p, err := NewFileStore(path).Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if p.Delimitador != tt.want {
				t.Errorf("Delimitador = %q, want %q", p.Delimitador, tt.want)
			}
		})
	}
}

func TestMemoryStore_Isolated(t *testing.T) {
	m := NewMemoryStore(Defaults())
	p := Preferences{Delimitador: ",", Mapeamentos: map[string]map[string]string{"motoristas": {"Contribuinte": "nif"}}}
	m.Save(p)

	p.Mapeamentos["motoristas"]["Contribuinte"] = "nome"

	got, _ := m.Load()
	if got.Mapeamentos["motoristas"]["Contribuinte"] != "nif" {
		t.Error("stored preferences changed through caller's map")
	}
	if m.Saves() != 1 {
		t.Errorf("Saves() = %d", m.Saves())
	}
}
