package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/core"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/logging"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/web/templates"
)

// multipartMemory is the part of a multipart form kept in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// readImportRequest parses the multipart body shared by preview and confirm:
// file, delimitador, an optional mapeamento JSON object and, on confirm, the
// ficheiro_sha256 digest of the previewed file.
func (s *Server) readImportRequest(w http.ResponseWriter, r *http.Request) (core.ImportRequest, error) {
	req := core.ImportRequest{Tipo: chi.URLParam(r, "tipo")}
	if _, err := core.MustGet(req.Tipo); err != nil {
		return req, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, fmt.Errorf("file too large: %w", err)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return req, core.ErrNoFile
		}
		return req, fmt.Errorf("read form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return req, core.ErrNoFile
	}
	defer file.Close()

	if req.Data, err = io.ReadAll(file); err != nil {
		return req, fmt.Errorf("read file: %w", err)
	}
	req.FileName = header.Filename

	if req.Delimiter, err = s.delimiter(r.FormValue("delimitador")); err != nil {
		return req, err
	}

	if raw := r.FormValue("mapeamento"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Mapping); err != nil {
			return req, fmt.Errorf("invalid mapping: %w", err)
		}
	}

	req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	req.PreviewDigest = r.FormValue("ficheiro_sha256")
	return req, nil
}

// withImportSlot runs fn holding an import slot and bounded by the upload
// timeout.
func (s *Server) withImportSlot(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Upload.Timeout)
	defer cancel()
	return fn(ctx)
}

// handlePreview analyses an uploaded file and returns the changes a commit
// would apply. Nothing is written.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, err := s.readImportRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var preview *core.ImportPreview
	err = s.withImportSlot(r.Context(), func(ctx context.Context) error {
		var err error
		preview, err = s.exchange.PreviewImport(ctx, req)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if isHTMX(r) {
		commit := templates.Commit{Digest: core.FileDigest(req.Data), Key: uuid.NewString()}
		s.render(w, r, templates.PreviewTable(req.Tipo, preview, commit))
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleConfirm applies the changes in the uploaded file.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	req, err := s.readImportRequest(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var result *core.ImportResult
	err = s.withImportSlot(r.Context(), func(ctx context.Context) error {
		var err error
		result, err = s.exchange.CommitImport(ctx, req)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if result.Erros == nil {
		result.Erros = []string{}
	}

	if isHTMX(r) {
		s.render(w, r, templates.ImportResult(result))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// render writes an HTML fragment.
func (s *Server) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render fragment", "error", err)
	}
}
