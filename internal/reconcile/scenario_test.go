package reconcile

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/prefs"
)

// backend is a scripted exchange API that records every request.
type backend struct {
	mu       sync.Mutex
	requests []string
	preview  string
}

func (b *backend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.RequestURI())
		b.mu.Unlock()
	}
	mux.HandleFunc("GET /api/exportacao/campos", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		io.WriteString(w, `{"motoristas":[{"id":"nome","label":"Nome","default":true},{"id":"nif","label":"NIF","default":true},{"id":"telefone","label":"Telefone","default":false}],"veiculos":[{"id":"matricula","label":"Matrícula","default":true},{"id":"cor","label":"Cor","default":false}]}`)
	})
	mux.HandleFunc("GET /api/exportacao/{tipo}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		io.WriteString(w, "\ufeffNome;NIF\nAna;123456789\n")
	})
	mux.HandleFunc("POST /api/exportacao/importar/veiculos/preview", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("preview without file: %v", err)
		}
		b.mu.Lock()
		body := b.preview
		b.mu.Unlock()
		io.WriteString(w, body)
	})
	mux.HandleFunc("POST /api/exportacao/importar/veiculos/confirmar", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("confirm without idempotency key")
		}
		io.WriteString(w, `{"tipo":"veiculos","atualizados":2,"erros":[]}`)
	})
	return mux
}

func (b *backend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

const scenarioBPreview = `{"registos_para_atualizar":2,"linhas_ignoradas":1,"preview":[` +
	`{"matricula":"AA-00-AA","marca_modelo":"Fiat Punto","alteracoes":[{"campo":"Cor","valor_atual":"Azul","valor_novo":"Vermelho"}]},` +
	`{"matricula":"BB-11-BB","marca_modelo":"Renault Clio","alteracoes":[{"campo":"Km Atual","valor_atual":"1000","valor_novo":"2000"}]}]}`

func newScenario(t *testing.T, b *backend) (*Controller, *Recorder, string) {
	t.Helper()
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	api, err := client.New(srv.URL, client.StaticToken("token"))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	dir := t.TempDir()
	rec := &Recorder{}
	c := NewController(api, rec, prefs.NewMemoryStore(prefs.Preferences{Delimitador: ";", DownloadDir: dir}))
	if err := c.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	return c, rec, dir
}

func TestScenarioA_ExportDrivers(t *testing.T) {
	b := &backend{}
	c, _, dir := newScenario(t, b)

	if got := c.SelectedIDs(client.Motoristas); len(got) != 2 || got[0] != "nome" || got[1] != "nif" {
		t.Fatalf("initial selection = %v, want [nome nif]", got)
	}

	path, err := c.Export(context.Background(), client.Motoristas)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	calls := b.calls()[1:] // after the catalog
	if len(calls) != 1 || calls[0] != "GET /api/exportacao/motoristas?campos=nome,nif&delimitador=%3B" {
		t.Errorf("requests = %v", calls)
	}

	want := "motoristas_" + time.Now().Format("2006-01-02") + ".csv"
	if filepath.Base(path) != want {
		t.Errorf("downloaded %s, want %s", filepath.Base(path), want)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("download dir has %d entries, want 1", len(entries))
	}
}

func TestScenarioBC_PreviewThenCommit(t *testing.T) {
	b := &backend{preview: scenarioBPreview}
	c, rec, _ := newScenario(t, b)
	ctx := context.Background()
	file := client.File{Name: "file.csv", Data: []byte("Matrícula;Cor\nAA-00-AA;Vermelho\n")}

	// B
	if _, err := c.SelectFile(ctx, client.Veiculos, file); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	n, _ := rec.Last()
	if n.Message != "2 registo(s) para atualizar, 1 ignorado(s)" || n.Level != Success {
		t.Errorf("notice = %+v", n)
	}
	if !c.CanConfirm(client.Veiculos) {
		t.Fatal("confirm should be enabled")
	}
	pv := c.State(client.Veiculos).(Previewed)
	if rec0 := pv.Preview.Preview[0]; rec0.Matricula != "AA-00-AA" || rec0.MarcaModelo != "Fiat Punto" || rec0.Alteracoes[0].ValorNovo != "Vermelho" {
		t.Errorf("preview[0] = %+v", rec0)
	}

	// C
	res, err := c.Confirm(ctx, client.Veiculos)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Atualizados != 2 {
		t.Errorf("atualizados = %d", res.Atualizados)
	}
	n, _ = rec.Last()
	if n.Level != Success || n.Message != "2 registo(s) atualizado(s)" {
		t.Errorf("notice = %+v", n)
	}
	if _, ok := c.State(client.Veiculos).(Committed); !ok {
		t.Errorf("state = %s", StateName(c.State(client.Veiculos)))
	}

	// File and preview are gone: nothing further without a new upload.
	if _, err := c.Confirm(ctx, client.Veiculos); err != ErrCommitNotAllowed {
		t.Errorf("second confirm err = %v", err)
	}
	if _, err := c.RetryPreview(ctx, client.Veiculos); err != ErrNoFile {
		t.Errorf("retry err = %v", err)
	}
	confirms := 0
	for _, call := range b.calls() {
		if call == "POST /api/exportacao/importar/veiculos/confirmar" {
			confirms++
		}
	}
	if confirms != 1 {
		t.Errorf("confirm requests = %d, want 1", confirms)
	}
}

func TestScenarioD_NoChanges(t *testing.T) {
	b := &backend{preview: `{"registos_para_atualizar":0,"linhas_ignoradas":0,"preview":[]}`}
	c, rec, _ := newScenario(t, b)

	if _, err := c.SelectFile(context.Background(), client.Veiculos, client.File{Name: "igual.csv", Data: []byte("Matrícula\n")}); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	n, _ := rec.Last()
	if n.Level != Info || n.Message != "Nenhuma alteração detectada" {
		t.Errorf("notice = %+v, want info", n)
	}
	if c.CanConfirm(client.Veiculos) {
		t.Error("confirm must stay disabled")
	}
}
