package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/config"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/core"
	_ "github.com/paulodiramos/tvdefleetonline-sub002/internal/core/entities"
	webmw "github.com/paulodiramos/tvdefleetonline-sub002/internal/web/middleware"
)

// fakeExchange records calls and returns canned results.
type fakeExchange struct {
	mu sync.Mutex

	exportReq   core.ExportRequest
	exportBody  string
	exportErr   error
	allSel      map[string][]string
	allDelim    rune
	importReq   core.ImportRequest
	partner     string
	preview     *core.ImportPreview
	result      *core.ImportResult
	importErr   error
	historyTipo string
	history     []core.ImportSummary
}

func (f *fakeExchange) Catalog() core.Catalog { return core.CurrentCatalog() }

func (f *fakeExchange) Export(ctx context.Context, w io.Writer, req core.ExportRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exportReq = req
	if _, err := core.MustGet(req.Tipo); err != nil {
		return err
	}
	io.WriteString(w, f.exportBody)
	return f.exportErr
}

func (f *fakeExchange) ExportAll(ctx context.Context, w io.Writer, sel map[string][]string, delim rune, day time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allSel, f.allDelim = sel, delim
	if _, err := core.ValidateExportAll(sel); err != nil {
		return err
	}
	io.WriteString(w, "PK")
	return nil
}

func (f *fakeExchange) PreviewImport(ctx context.Context, req core.ImportRequest) (*core.ImportPreview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.importReq, f.partner = req, core.PartnerFromContext(ctx)
	return f.preview, f.importErr
}

func (f *fakeExchange) CommitImport(ctx context.Context, req core.ImportRequest) (*core.ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.importReq, f.partner = req, core.PartnerFromContext(ctx)
	return f.result, f.importErr
}

func (f *fakeExchange) ListImports(ctx context.Context, tipo string, limit int) ([]core.ImportSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyTipo = tipo
	if tipo != "" {
		if _, err := core.MustGet(tipo); err != nil {
			return nil, err
		}
	}
	return f.history, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	env := map[string]string{"DATABASE_URL": "postgres://frota@localhost/frota"}
	cfg, err := config.LoadFrom(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	cfg.Rate.Enabled = false
	return cfg
}

var fixedDay = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, ex *fakeExchange, cfg *config.Config) *Server {
	t.Helper()
	s := NewServer(ex, core.NewImportLimiter(2, 50*time.Millisecond), cfg)
	s.now = func() time.Time { return fixedDay }
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

// multipartRequest builds an import upload.
func multipartRequest(t *testing.T, path, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		io.WriteString(fw, content)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// ----------------------------------------------------------------------------
// Catalog and export
// ----------------------------------------------------------------------------

func TestCatalog(t *testing.T) {
	s := newTestServer(t, &fakeExchange{}, testConfig(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/exportacao/campos", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var cat map[string][]core.FieldDescriptor
	if err := json.NewDecoder(rec.Body).Decode(&cat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cat[core.TipoMotoristas]) == 0 || len(cat[core.TipoVeiculos]) == 0 {
		t.Errorf("catalog = %v", cat)
	}
	if cat[core.TipoMotoristas][0].ID != "nome" {
		t.Errorf("first driver field = %s, want nome", cat[core.TipoMotoristas][0].ID)
	}
}

func TestExport(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantIDs   []string
		wantDelim rune
	}{
		{"comma separated", "/api/exportacao/motoristas?campos=nome,nif&delimitador=%3B", []string{"nome", "nif"}, ';'},
		{"repeated params", "/api/exportacao/motoristas?campos=nome&campos=nif&delimitador=,", []string{"nome", "nif"}, ','},
		{"page form names", "/api/exportacao/motoristas?campos_motoristas=email&campos_veiculos=marca", []string{"email"}, ';'},
		{"default delimiter", "/api/exportacao/motoristas?campos=nif", []string{"nif"}, ';'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExchange{exportBody: "\ufeffNome;NIF\n"}
			s := newTestServer(t, ex, testConfig(t))

			rec := serve(s, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d body %s", rec.Code, rec.Body)
			}
			if strings.Join(ex.exportReq.FieldIDs, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("field ids = %v, want %v", ex.exportReq.FieldIDs, tt.wantIDs)
			}
			if ex.exportReq.Delimiter != tt.wantDelim {
				t.Errorf("delimiter = %q, want %q", ex.exportReq.Delimiter, tt.wantDelim)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
				t.Errorf("Content-Type = %s", ct)
			}
			want := `attachment; filename="motoristas_2024-05-01.csv"`
			if cd := rec.Header().Get("Content-Disposition"); cd != want {
				t.Errorf("Content-Disposition = %s, want %s", cd, want)
			}
			if rec.Body.String() != ex.exportBody {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestExport_Errors(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		exportErr  error
		wantStatus int
		wantCode   string
	}{
		{"invalid delimiter", "/api/exportacao/motoristas?campos=nome&delimitador=%7C", nil, http.StatusBadRequest, "VAL007"},
		{"empty selection", "/api/exportacao/motoristas", core.ErrEmptySelection, http.StatusBadRequest, "VAL005"},
		{"unknown field", "/api/exportacao/veiculos?campos=asas", core.ErrUnknownField, http.StatusBadRequest, "VAL006"},
		{"unknown entity", "/api/exportacao/clientes?campos=nome", nil, http.StatusNotFound, "IMP001"},
		{"failure after partial write", "/api/exportacao/motoristas?campos=nome", errors.New("connection reset by peer"), http.StatusInternalServerError, "DB003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExchange{exportBody: "Nome\nAna\n", exportErr: tt.exportErr}
			s := newTestServer(t, ex, testConfig(t))

			rec := serve(s, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Header().Get("Content-Disposition") != "" {
				t.Error("error response must not be an attachment")
			}
			body := decodeError(t, rec)
			if body.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", body.Code, tt.wantCode)
			}
			if body.Detail == "" || body.Error == "" {
				t.Errorf("error body missing message: %+v", body)
			}
		})
	}
}

func TestExportAll(t *testing.T) {
	ex := &fakeExchange{}
	s := newTestServer(t, ex, testConfig(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet,
		"/api/exportacao/completa?campos_motoristas=nome,nif&campos_veiculos=&delimitador=,", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="exportacao_2024-05-01.zip"` {
		t.Errorf("Content-Disposition = %s", cd)
	}
	if got := strings.Join(ex.allSel[core.TipoMotoristas], ","); got != "nome,nif" {
		t.Errorf("motoristas selection = %s", got)
	}
	if len(ex.allSel[core.TipoVeiculos]) != 0 {
		t.Errorf("veiculos selection = %v, want empty", ex.allSel[core.TipoVeiculos])
	}
	if ex.allDelim != ',' {
		t.Errorf("delimiter = %q", ex.allDelim)
	}
}

func TestExportAll_EmptySelections(t *testing.T) {
	s := newTestServer(t, &fakeExchange{}, testConfig(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/exportacao/completa?delimitador=%3B", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "VAL005" {
		t.Errorf("code = %s, want VAL005", body.Code)
	}
}

// ----------------------------------------------------------------------------
// Import preview and confirm
// ----------------------------------------------------------------------------

func TestPreview(t *testing.T) {
	ex := &fakeExchange{preview: &core.ImportPreview{
		RegistosParaAtualizar: 2,
		LinhasIgnoradas:       1,
		Preview: []core.ChangeRecord{{
			Matricula:   "AA-00-AA",
			MarcaModelo: "Fiat Punto",
			Alteracoes:  []core.FieldChange{{Campo: "Cor", ValorAtual: "Azul", ValorNovo: "Vermelho"}},
		}},
	}}
	s := newTestServer(t, ex, testConfig(t))

	req := multipartRequest(t, "/api/exportacao/importar/veiculos/preview", "file.csv", "Matrícula,Cor\nAA-00-AA,Vermelho\n",
		map[string]string{"delimitador": ",", "mapeamento": `{"Côr":"cor"}`})
	rec := serve(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}

	got := ex.importReq
	if got.Tipo != core.TipoVeiculos || got.FileName != "file.csv" || got.Delimiter != ',' {
		t.Errorf("request = %+v", got)
	}
	if !strings.HasPrefix(string(got.Data), "Matrícula,Cor") {
		t.Errorf("data = %q", got.Data)
	}
	if got.Mapping["Côr"] != "cor" {
		t.Errorf("mapping = %v", got.Mapping)
	}

	var preview core.ImportPreview
	if err := json.NewDecoder(rec.Body).Decode(&preview); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if preview.RegistosParaAtualizar != 2 || preview.LinhasIgnoradas != 1 || preview.Preview[0].Matricula != "AA-00-AA" {
		t.Errorf("preview = %+v", preview)
	}
}

func TestPreview_Errors(t *testing.T) {
	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		maxSize    int64
		importErr  error
		wantStatus int
		wantCode   string
	}{
		{
			name: "no file",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/exportacao/importar/motoristas/preview", "", "", map[string]string{"delimitador": ";"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE004",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/exportacao/importar/motoristas/preview", strings.NewReader("NIF\n1"))
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE004",
		},
		{
			name: "unknown entity",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/exportacao/importar/clientes/preview", "a.csv", "x", nil)
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "IMP001",
		},
		{
			name: "invalid delimiter",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/exportacao/importar/motoristas/preview", "a.csv", "NIF", map[string]string{"delimitador": "\t"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VAL007",
		},
		{
			name: "invalid mapping",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/exportacao/importar/motoristas/preview", "a.csv", "NIF", map[string]string{"mapeamento": "[1,2"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VAL008",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/exportacao/importar/motoristas/preview", "a.csv", strings.Repeat("1;Ana\n", 200), nil)
			},
			maxSize:    256,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "FILE001",
		},
		{
			name: "missing key column",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/exportacao/importar/motoristas/preview", "a.csv", "Nome\nAna", nil)
			},
			importErr:  core.ErrMissingKeyColumn,
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE006",
		},
		{
			name: "database down",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/exportacao/importar/motoristas/preview", "a.csv", "NIF\n1", nil)
			},
			importErr:  errors.New("dial tcp: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "DB003",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			if tt.maxSize > 0 {
				cfg.Upload.MaxFileSize = tt.maxSize
			}
			ex := &fakeExchange{preview: &core.ImportPreview{}, importErr: tt.importErr}
			s := newTestServer(t, ex, cfg)

			rec := serve(s, tt.req(t))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if body := decodeError(t, rec); body.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", body.Code, tt.wantCode)
			}
		})
	}
}

func TestPreview_LimiterBusy(t *testing.T) {
	ex := &fakeExchange{preview: &core.ImportPreview{}}
	s := newTestServer(t, ex, testConfig(t))
	for s.limiter.TryAcquire() {
	}
	defer func() {
		for s.limiter.Status().Active > 0 {
			s.limiter.Release()
		}
	}()

	rec := serve(s, multipartRequest(t, "/api/exportacao/importar/motoristas/preview", "a.csv", "NIF\n1", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "IMP002" {
		t.Errorf("code = %s, want IMP002", body.Code)
	}
}

func TestConfirm(t *testing.T) {
	ex := &fakeExchange{result: &core.ImportResult{Tipo: core.TipoMotoristas, Atualizados: 2}}
	s := newTestServer(t, ex, testConfig(t))

	req := multipartRequest(t, "/api/exportacao/importar/motoristas/confirmar", "m.csv", "NIF;Nome\n1;Ana\n", map[string]string{"delimitador": ";"})
	req.Header.Set("Idempotency-Key", "abc123")
	rec := serve(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	if ex.importReq.IdempotencyKey != "abc123" {
		t.Errorf("idempotency key = %q", ex.importReq.IdempotencyKey)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw["erros"]) != "[]" {
		t.Errorf("erros = %s, want []", raw["erros"])
	}
	if string(raw["atualizados"]) != "2" || string(raw["tipo"]) != `"motoristas"` {
		t.Errorf("result = %v", raw)
	}
	if s.limiter.Status().Active != 0 {
		t.Error("import slot not released")
	}
}

// ----------------------------------------------------------------------------
// HTMX partials
// ----------------------------------------------------------------------------

func TestPreview_HTMX(t *testing.T) {
	tests := []struct {
		name        string
		preview     *core.ImportPreview
		wantText    string
		wantConfirm bool
	}{
		{
			name: "changes",
			preview: &core.ImportPreview{RegistosParaAtualizar: 2, LinhasIgnoradas: 1, Preview: []core.ChangeRecord{{
				Matricula: "AA-00-AA", MarcaModelo: "Fiat <Punto>",
				Alteracoes: []core.FieldChange{{Campo: "Cor", ValorAtual: "Azul", ValorNovo: "Vermelho"}},
			}}},
			wantText:    "2 registo(s) para atualizar, 1 ignorado(s)",
			wantConfirm: true,
		},
		{
			name:     "no changes",
			preview:  &core.ImportPreview{Preview: []core.ChangeRecord{}},
			wantText: "Nenhuma alteração detectada",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeExchange{preview: tt.preview}, testConfig(t))
			req := multipartRequest(t, "/api/exportacao/importar/veiculos/preview", "v.csv", "Matrícula\nAA-00-AA", nil)
			req.Header.Set("HX-Request", "true")

			rec := serve(s, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			html := rec.Body.String()
			if !strings.Contains(html, tt.wantText) {
				t.Errorf("missing %q in %s", tt.wantText, html)
			}
			if got := strings.Contains(html, "/confirmar"); got != tt.wantConfirm {
				t.Errorf("confirm button present = %v, want %v", got, tt.wantConfirm)
			}
			if strings.Contains(html, "<Punto>") {
				t.Error("values must be escaped")
			}
			if tt.wantConfirm {
				digest := core.FileDigest([]byte("Matrícula\nAA-00-AA"))
				for _, want := range []string{"hx-headers=", "Idempotency-Key", "ficheiro_sha256", digest} {
					if !strings.Contains(html, want) {
						t.Errorf("confirm button missing %s", want)
					}
				}
			}
		})
	}
}

func TestPreview_HTMXKeyPerPreview(t *testing.T) {
	preview := &core.ImportPreview{RegistosParaAtualizar: 1, Preview: []core.ChangeRecord{{
		NIF: "1", Nome: "Ana", Alteracoes: []core.FieldChange{{Campo: "Nome", ValorAtual: "A", ValorNovo: "Ana"}},
	}}}
	s := newTestServer(t, &fakeExchange{preview: preview}, testConfig(t))

	bodies := make([]string, 2)
	for i := range bodies {
		req := multipartRequest(t, "/api/exportacao/importar/motoristas/preview", "m.csv", "NIF;Nome\n1;Ana", nil)
		req.Header.Set("HX-Request", "true")
		bodies[i] = serve(s, req).Body.String()
	}
	if bodies[0] == bodies[1] {
		t.Error("two previews of the same file rendered the same idempotency key")
	}
}

func TestConfirm_PreviewDigest(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"matching file", nil, http.StatusOK, ""},
		{"file changed", core.ErrFileChanged, http.StatusConflict, "IMP005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExchange{result: &core.ImportResult{Tipo: core.TipoMotoristas}, importErr: tt.err}
			s := newTestServer(t, ex, testConfig(t))

			req := multipartRequest(t, "/api/exportacao/importar/motoristas/confirmar", "m.csv", "NIF;Nome\n1;Ana\n",
				map[string]string{"ficheiro_sha256": "abc"})
			rec := serve(s, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ex.importReq.PreviewDigest != "abc" {
				t.Errorf("digest = %q, want abc", ex.importReq.PreviewDigest)
			}
			if tt.wantCode != "" {
				if body := decodeError(t, rec); body.Code != tt.wantCode {
					t.Errorf("code = %s, want %s", body.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestEmptyPartial(t *testing.T) {
	s := newTestServer(t, &fakeExchange{}, testConfig(t))
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/parcial/vazio", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
}

func TestErrorPartial_HTMX(t *testing.T) {
	s := newTestServer(t, &fakeExchange{}, testConfig(t))
	req := multipartRequest(t, "/api/exportacao/importar/motoristas/preview", "", "", nil)
	req.Header.Set("HX-Request", "true")

	rec := serve(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for htmx swap", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "FILE004") {
		t.Errorf("body = %s", rec.Body)
	}
	if rec.Header().Get("X-Error-Status") == "" {
		t.Error("missing X-Error-Status header")
	}
}

func TestIndexPage(t *testing.T) {
	s := newTestServer(t, &fakeExchange{}, testConfig(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	html := rec.Body.String()
	for _, want := range []string{
		`name="campos_motoristas" value="nif" checked`,
		`name="campos_veiculos" value="ano">`,
		`formaction="/api/exportacao/veiculos"`,
		`hx-post="/api/exportacao/importar/motoristas/preview"`,
		`hx-get="/parcial/vazio" hx-trigger="change" hx-target="#resultado-motoristas"`,
		`<input type="reset" value="Limpar"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %s", want)
		}
	}
	if strings.Contains(html, `action="/sessao"`) {
		t.Error("sign-in form shown with auth disabled")
	}
	if csp := rec.Header().Get("Content-Security-Policy"); csp == "" {
		t.Error("missing CSP header")
	}
}

// ----------------------------------------------------------------------------
// History, health, auth, rate limiting
// ----------------------------------------------------------------------------

func TestHistory(t *testing.T) {
	ex := &fakeExchange{}
	s := newTestServer(t, ex, testConfig(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/exportacao/importacoes?tipo=veiculos", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ex.historyTipo != core.TipoVeiculos {
		t.Errorf("tipo = %q", ex.historyTipo)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/exportacao/importacoes?tipo=barcos", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown tipo status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeExchange{}, testConfig(t))
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"max_concurrent":2`) {
		t.Errorf("status = %d body %s", rec.Code, rec.Body)
	}
}

func signToken(t *testing.T, secret string, claims webmw.PartnerClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestBearerAuth(t *testing.T) {
	const secret = "segredo-de-teste"
	valid := signToken(t, secret, webmw.PartnerClaims{
		ParceiroID: "parceiro-7",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	expired := signToken(t, secret, webmw.PartnerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	forged := signToken(t, "outro", webmw.PartnerClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"forged", "Bearer " + forged, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Security.JWTSecret = secret
			ex := &fakeExchange{preview: &core.ImportPreview{}}
			s := newTestServer(t, ex, cfg)

			req := multipartRequest(t, "/api/exportacao/importar/motoristas/preview", "a.csv", "NIF\n1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(s, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && ex.partner != "parceiro-7" {
				t.Errorf("partner = %q, want parceiro-7", ex.partner)
			}
		})
	}

	// The page itself stays public.
	cfg := testConfig(t)
	cfg.Security.JWTSecret = secret
	s := newTestServer(t, &fakeExchange{}, cfg)
	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusOK {
		t.Errorf("index status = %d, want 200", rec.Code)
	}
}

func TestSession(t *testing.T) {
	const secret = "segredo-de-teste"
	valid := signToken(t, secret, webmw.PartnerClaims{
		ParceiroID: "parceiro-7",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	newSession := func(token string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/sessao", strings.NewReader("token="+token))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	t.Run("sign-in form shown without session", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Security.JWTSecret = secret
		s := newTestServer(t, &fakeExchange{}, cfg)

		rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
		if !strings.Contains(rec.Body.String(), `action="/sessao"`) {
			t.Error("sign-in form missing")
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Security.JWTSecret = secret
		s := newTestServer(t, &fakeExchange{}, cfg)

		rec := serve(s, newSession("abc"))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Token inválido ou expirado") {
			t.Error("error message missing")
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Error("cookie set for an invalid token")
		}
	})

	t.Run("cookie authorizes the page forms", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Security.JWTSecret = secret
		ex := &fakeExchange{preview: &core.ImportPreview{}}
		s := newTestServer(t, ex, cfg)

		rec := serve(s, newSession(valid))
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
			t.Fatalf("status = %d location = %q", rec.Code, rec.Header().Get("Location"))
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Name != webmw.SessionCookie || !cookies[0].HttpOnly {
			t.Fatalf("cookies = %v", cookies)
		}

		index := httptest.NewRequest(http.MethodGet, "/", nil)
		index.AddCookie(cookies[0])
		if strings.Contains(serve(s, index).Body.String(), `action="/sessao"`) {
			t.Error("sign-in form shown with a valid session")
		}

		req := multipartRequest(t, "/api/exportacao/importar/motoristas/preview", "a.csv", "NIF\n1", nil)
		req.AddCookie(cookies[0])
		if rec := serve(s, req); rec.Code != http.StatusOK {
			t.Fatalf("preview status = %d, want 200", rec.Code)
		}
		if ex.partner != "parceiro-7" {
			t.Errorf("partner = %q, want parceiro-7", ex.partner)
		}
	})

	t.Run("auth disabled", func(t *testing.T) {
		s := newTestServer(t, &fakeExchange{}, testConfig(t))
		if rec := serve(s, newSession("")); rec.Code != http.StatusSeeOther {
			t.Errorf("status = %d, want 303", rec.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 2
	s := newTestServer(t, &fakeExchange{}, cfg)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/exportacao/campos", nil)
		req.RemoteAddr = "198.51.100.7:5000"
		last = serve(s, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	other := httptest.NewRequest(http.MethodGet, "/api/exportacao/campos", nil)
	other.RemoteAddr = "198.51.100.8:5000"
	if rec := serve(s, other); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}
}
