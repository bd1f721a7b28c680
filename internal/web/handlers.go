package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/core"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/logging"
	webmw "github.com/paulodiramos/tvdefleetonline-sub002/internal/web/middleware"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/web/templates"
)

func (s *Server) pageData() templates.PageData {
	catalog := s.exchange.Catalog()

	data := templates.PageData{Delimiter: string(s.defaultDelimiter)}
	for _, def := range core.All() {
		data.Entities = append(data.Entities, templates.EntityView{
			Tipo:   def.Tipo,
			Label:  def.Label,
			Fields: catalog[def.Tipo],
		})
	}
	return data
}

// handleIndex renders the exchange page. With auth enabled and no valid
// session it also shows the sign-in form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := s.pageData()
	sec := s.cfg.Security
	data.SignIn = sec.JWTSecret != "" && !webmw.HasSession(r, sec.JWTSecret, sec.JWTIssuer)

	templ.Handler(templates.Page(data)).ServeHTTP(w, r)
}

// handleSession exchanges the posted API token for a session cookie, so the
// page forms can reach the protected API.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sec := s.cfg.Security
	if sec.JWTSecret == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	token := strings.TrimSpace(r.PostFormValue("token"))
	claims, err := webmw.ParseToken(token, []byte(sec.JWTSecret), sec.JWTIssuer)
	if err != nil {
		logging.FromContext(r.Context()).Warn("session: invalid token", "error", err)
		data := s.pageData()
		data.SignIn = true
		data.SignInError = "Token inválido ou expirado"
		templ.Handler(templates.Page(data), templ.WithStatus(http.StatusUnauthorized)).ServeHTTP(w, r)
		return
	}

	webmw.SetSession(w, r, token, claims)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleEmptyPartial clears an HTMX target.
func (s *Server) handleEmptyPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
}

// handleHealth reports liveness and the import limiter state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"imports":  s.limiter.Status(),
		"entities": len(core.All()),
	})
}

// handleCatalog returns the exportable fields of every entity.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.exchange.Catalog())
}

// fieldIDs collects ids from every occurrence of each named parameter,
// splitting comma-separated values and keeping order.
func fieldIDs(r *http.Request, names ...string) []string {
	var ids []string
	q := r.URL.Query()
	for _, name := range names {
		for _, v := range q[name] {
			for _, id := range strings.Split(v, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
		}
	}
	return ids
}

func (s *Server) delimiter(value string) (rune, error) {
	return core.ParseDelimiter(value, s.defaultDelimiter)
}

// sendFile writes a fully built download.
func sendFile(w http.ResponseWriter, contentType, name string, body *bytes.Buffer) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(http.StatusOK)
	body.WriteTo(w)
}

// handleExport streams one entity as CSV. The file is built in memory first
// so a failure can still be reported with an error status.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	tipo := chi.URLParam(r, "tipo")

	delim, err := s.delimiter(r.URL.Query().Get("delimitador"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = s.exchange.Export(r.Context(), &buf, core.ExportRequest{
		Tipo:      tipo,
		FieldIDs:  fieldIDs(r, "campos", "campos_"+tipo),
		Delimiter: delim,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sendFile(w, "text/csv; charset=utf-8", core.ExportFileName(tipo, s.now()), &buf)
}

// handleExportAll returns a ZIP with one CSV per entity selected.
func (s *Server) handleExportAll(w http.ResponseWriter, r *http.Request) {
	delim, err := s.delimiter(r.URL.Query().Get("delimitador"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	selections := make(map[string][]string)
	for _, def := range core.All() {
		selections[def.Tipo] = fieldIDs(r, "campos_"+def.Tipo)
	}

	day := s.now()
	var buf bytes.Buffer
	if err := s.exchange.ExportAll(r.Context(), &buf, selections, delim, day); err != nil {
		s.respondError(w, r, err)
		return
	}

	sendFile(w, "application/zip", core.ArchiveFileName(day), &buf)
}

// handleHistory lists recent import commits, optionally for one entity.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := core.DefaultHistoryLimit
	if v := r.URL.Query().Get("limite"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	items, err := s.exchange.ListImports(r.Context(), r.URL.Query().Get("tipo"), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if items == nil {
		items = []core.ImportSummary{}
	}
	writeJSON(w, http.StatusOK, items)
}
