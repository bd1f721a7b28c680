package handler

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/prefs"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/reconcile"
)

type stubAPI struct {
	preview    *client.ImportPreview
	previewErr error
	result     *client.ImportResult
	files      []string
}

func (s *stubAPI) Catalog(ctx context.Context) (client.Catalog, error) {
	return client.Catalog{
		client.Motoristas: {{ID: "nome", Label: "Nome", Default: true}},
		client.Veiculos:   {{ID: "matricula", Label: "Matrícula", Default: true}},
	}, nil
}

func (s *stubAPI) Export(ctx context.Context, tipo client.Tipo, ids []string, delim client.Delimiter) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("Nome\n")), nil
}

func (s *stubAPI) ExportAll(ctx context.Context, sel map[client.Tipo][]string, delim client.Delimiter) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("PK")), nil
}

func (s *stubAPI) Preview(ctx context.Context, tipo client.Tipo, file client.File, delim client.Delimiter, mapping map[string]string) (*client.ImportPreview, error) {
	s.files = append(s.files, file.Name)
	return s.preview, s.previewErr
}

func (s *stubAPI) Confirm(ctx context.Context, tipo client.Tipo, file client.File, delim client.Delimiter, mapping map[string]string) (*client.ImportResult, error) {
	return s.result, nil
}

func newActions(t *testing.T, api *stubAPI) (*Actions, *reconcile.Recorder) {
	t.Helper()
	rec := &reconcile.Recorder{}
	ctrl := reconcile.NewController(api, rec, prefs.NewMemoryStore(prefs.Preferences{Delimitador: ";", DownloadDir: t.TempDir()}))
	if err := ctrl.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	return &Actions{Ctrl: ctrl}, rec
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// ----------------------------------------------------------------------------
// File Tests
// ----------------------------------------------------------------------------

func TestImportFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "veiculos.csv", "x")
	writeFile(t, dir, "Motoristas.XLSX", "x")
	writeFile(t, dir, "notas.pdf", "x")
	writeFile(t, dir, ".oculto.csv", "x")
	os.Mkdir(filepath.Join(dir, "pasta.csv"), 0o755)

	got, err := ImportFiles(dir)
	if err != nil {
		t.Fatalf("ImportFiles: %v", err)
	}
	want := []string{filepath.Join(dir, "Motoristas.XLSX"), filepath.Join(dir, "veiculos.csv")}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestImportFiles_MissingDir(t *testing.T) {
	if _, err := ImportFiles(filepath.Join(t.TempDir(), "nada")); err == nil {
		t.Error("expected error")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "veiculos.csv", "Matrícula;Cor\n")

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.Name != "veiculos.csv" || string(f.Data) != "Matrícula;Cor\n" {
		t.Errorf("file = %s %q", f.Name, f.Data)
	}
}

func TestLoadFile_TooLarge(t *testing.T) {
	old := MaxImportFileSize
	MaxImportFileSize = 4
	t.Cleanup(func() { MaxImportFileSize = old })

	path := writeFile(t, t.TempDir(), "grande.csv", "12345")
	if _, err := LoadFile(path); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("err = %v, want ErrFileTooLarge", err)
	}
}

func TestLoadFile_Directory(t *testing.T) {
	if _, err := LoadFile(t.TempDir()); err == nil {
		t.Error("expected error for a directory")
	}
}

// ----------------------------------------------------------------------------
// Notice Tests
// ----------------------------------------------------------------------------

func TestNotices_DropsOldest(t *testing.T) {
	n := NewNotices(2)
	n.Notify(reconcile.Notice{Message: "um"})
	n.Notify(reconcile.Notice{Message: "dois"})
	n.Notify(reconcile.Notice{Message: "três"})

	first := n.Wait()().(NoticeMsg)
	second := n.Wait()().(NoticeMsg)
	if first.Message != "dois" || second.Message != "três" {
		t.Errorf("got %q, %q", first.Message, second.Message)
	}
}

// ----------------------------------------------------------------------------
// Action Tests
// ----------------------------------------------------------------------------

func TestActions_Export(t *testing.T) {
	a, rec := newActions(t, &stubAPI{})

	msg := a.Export(client.Motoristas)()
	em, ok := msg.(ExportMsg)
	if !ok {
		t.Fatalf("msg = %#v, want ExportMsg", msg)
	}
	if _, err := os.Stat(em.Path); err != nil {
		t.Errorf("download missing: %v", err)
	}
	if n, _ := rec.Last(); n.Level != reconcile.Success {
		t.Errorf("notice = %+v", n)
	}
}

func TestActions_ExportEmptySelectionIsQuiet(t *testing.T) {
	a, rec := newActions(t, &stubAPI{})
	a.Ctrl.SelectNone(client.Motoristas)

	if msg := a.Export(client.Motoristas)(); msg != nil {
		t.Errorf("msg = %#v, want nil", msg)
	}
	if n, _ := rec.Last(); n.Level != reconcile.Warning {
		t.Errorf("notice = %+v, want the controller warning", n)
	}
}

func TestActions_PreviewAndConfirm(t *testing.T) {
	api := &stubAPI{
		preview: &client.ImportPreview{RegistosParaAtualizar: 1, Preview: []client.ChangeRecord{}},
		result:  &client.ImportResult{Tipo: client.Veiculos, Atualizados: 1, Erros: []string{}},
	}
	a, _ := newActions(t, api)
	path := writeFile(t, t.TempDir(), "veiculos.csv", "Matrícula\nAA-00-AA\n")

	msg := a.Preview(client.Veiculos, path)()
	if pm, ok := msg.(PreviewMsg); !ok || pm.Preview.RegistosParaAtualizar != 1 {
		t.Fatalf("preview msg = %#v", msg)
	}
	if len(api.files) != 1 || api.files[0] != "veiculos.csv" {
		t.Errorf("uploaded %v", api.files)
	}

	msg = a.Confirm(client.Veiculos)()
	if cm, ok := msg.(CommitMsg); !ok || cm.Result.Atualizados != 1 {
		t.Fatalf("commit msg = %#v", msg)
	}

	// committed: nothing left to confirm
	if msg := a.Confirm(client.Veiculos)(); msg != nil {
		t.Errorf("second confirm msg = %#v, want nil", msg)
	}
}

func TestActions_PreviewMissingFile(t *testing.T) {
	api := &stubAPI{}
	a, _ := newActions(t, api)

	msg := a.Preview(client.Veiculos, filepath.Join(t.TempDir(), "nada.csv"))()
	if _, ok := msg.(ErrMsg); !ok {
		t.Errorf("msg = %#v, want ErrMsg", msg)
	}
	if len(api.files) != 0 {
		t.Error("nothing should be uploaded")
	}
}

func TestActions_PreviewFailureIsNotifiedOnce(t *testing.T) {
	api := &stubAPI{previewErr: &client.APIError{Status: 400, Detail: "Coluna obrigatória em falta: Matrícula"}}
	a, rec := newActions(t, api)
	path := writeFile(t, t.TempDir(), "veiculos.csv", "Cor\n")

	if msg := a.Preview(client.Veiculos, path)(); msg != nil {
		t.Errorf("msg = %#v, want nil", msg)
	}
	notices := rec.Notices()
	if len(notices) != 1 || notices[0].Message != "Coluna obrigatória em falta: Matrícula" {
		t.Errorf("notices = %+v", notices)
	}

	// the file is kept for a retry
	if msg := a.RetryPreview(client.Veiculos)(); msg != nil {
		t.Errorf("retry msg = %#v", msg)
	}
	if len(api.files) != 2 {
		t.Errorf("uploads = %d, want 2", len(api.files))
	}
}

func TestActions_RetryWithoutFile(t *testing.T) {
	a, _ := newActions(t, &stubAPI{})
	if msg, ok := a.RetryPreview(client.Motoristas)().(WdMsg); !ok || msg == "" {
		t.Errorf("msg = %#v, want WdMsg", msg)
	}
}

func TestActions_Reset(t *testing.T) {
	a, _ := newActions(t, &stubAPI{})
	if _, ok := a.Reset(client.Motoristas)().(DoneMsg); !ok {
		t.Error("want DoneMsg")
	}
	if _, ok := a.Reset(client.Tipo("barcos"))().(ErrMsg); !ok {
		t.Error("want ErrMsg for unknown type")
	}
}
