// Package reconcile drives the export and import reconciliation workflow of
// one user session: field selection, downloads, and the per-entity import
// pipeline (upload → preview → confirm).
//
// Each entity type has its own pipeline; the two are independent and may be
// in flight at the same time. The controller lock is never held across a
// network call. A response that arrives after Reset is discarded.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/prefs"
)

var (
	ErrEmptySelection   = errors.New("no fields selected")
	ErrCommitNotAllowed = errors.New("commit not allowed in current state")
	ErrBusy             = errors.New("operation already in progress")
	ErrNoFile           = errors.New("no file selected")
	ErrUnknownField     = errors.New("unknown field")
	ErrDiscarded        = errors.New("response discarded after reset")
)

// API is the part of the exchange API the controller uses. *client.Client
// implements it.
type API interface {
	Catalog(ctx context.Context) (client.Catalog, error)
	Export(ctx context.Context, tipo client.Tipo, ids []string, delim client.Delimiter) (io.ReadCloser, error)
	ExportAll(ctx context.Context, sel map[client.Tipo][]string, delim client.Delimiter) (io.ReadCloser, error)
	Preview(ctx context.Context, tipo client.Tipo, file client.File, delim client.Delimiter, mapping map[string]string) (*client.ImportPreview, error)
	Confirm(ctx context.Context, tipo client.Tipo, file client.File, delim client.Delimiter, mapping map[string]string) (*client.ImportResult, error)
}

// pipeline is the state of one entity type.
type pipeline struct {
	state     State
	gen       uint64
	exporting bool
	selection *Selection
}

// Controller coordinates both entity pipelines, the shared delimiter and
// the preferences store.
type Controller struct {
	api      API
	notifier Notifier
	store    prefs.Store
	now      func() time.Time

	mu           sync.Mutex
	prefs        prefs.Preferences
	pipelines    map[client.Tipo]*pipeline
	exportingAll bool
}

// NewController loads preferences from store. A store that fails to load
// leaves the defaults in place.
func NewController(api API, notifier Notifier, store prefs.Store) *Controller {
	if store == nil {
		store = prefs.NewMemoryStore(prefs.Defaults())
	}
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}

	p, err := store.Load()
	if err != nil {
		slog.Warn("load preferences, using defaults", "error", err)
		p = prefs.Defaults()
	}

	c := &Controller{
		api:       api,
		notifier:  notifier,
		store:     store,
		now:       time.Now,
		prefs:     p,
		pipelines: make(map[client.Tipo]*pipeline, len(client.Tipos)),
	}
	for _, t := range client.Tipos {
		c.pipelines[t] = &pipeline{state: Idle{}, selection: NewSelection(nil)}
	}
	return c
}

func (c *Controller) pipeline(tipo client.Tipo) (*pipeline, error) {
	p, ok := c.pipelines[tipo]
	if !ok {
		return nil, fmt.Errorf("%w: %q", client.ErrUnknownTipo, tipo)
	}
	return p, nil
}

func (c *Controller) notify(tipo client.Tipo, level Level, msg string) {
	c.notifier.Notify(Notice{Tipo: tipo, Level: level, Message: msg})
}

// userMessage prefers the server detail over the generic text.
func userMessage(err error, generic string) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return generic
}

// ----------------------------------------------------------------------------
// Catalog and selection
// ----------------------------------------------------------------------------

// LoadCatalog fetches the field catalog and resets every selection to the
// catalog defaults. On failure every catalog is empty, so nothing can be
// exported, and one error notice is shown.
func (c *Controller) LoadCatalog(ctx context.Context) error {
	cat, err := c.api.Catalog(ctx)
	if err != nil {
		slog.Error("load catalog", "error", err)
		cat = client.Catalog{}
	}

	c.mu.Lock()
	for _, t := range client.Tipos {
		c.pipelines[t].selection = NewSelection(cat[t])
	}
	c.mu.Unlock()

	if err != nil {
		c.notify("", Error, userMessage(err, "Não foi possível carregar os campos disponíveis"))
		return err
	}
	return nil
}

// Fields returns the catalog fields of tipo.
func (c *Controller) Fields(tipo client.Tipo) []client.FieldDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.pipeline(tipo)
	if err != nil {
		return nil
	}
	return p.selection.Fields()
}

// SelectedIDs returns the selection of tipo in order.
func (c *Controller) SelectedIDs(tipo client.Tipo) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.pipeline(tipo)
	if err != nil {
		return nil
	}
	return p.selection.IDs()
}

func (c *Controller) withSelection(tipo client.Tipo, fn func(*Selection) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.pipeline(tipo)
	if err != nil {
		return err
	}
	return fn(p.selection)
}

// Toggle adds or removes one field of tipo.
func (c *Controller) Toggle(tipo client.Tipo, id string) error {
	return c.withSelection(tipo, func(s *Selection) error { return s.Toggle(id) })
}

// SelectAll selects every field of tipo.
func (c *Controller) SelectAll(tipo client.Tipo) error {
	return c.withSelection(tipo, func(s *Selection) error { s.SelectAll(); return nil })
}

// SelectNone clears the selection of tipo.
func (c *Controller) SelectNone(tipo client.Tipo) error {
	return c.withSelection(tipo, func(s *Selection) error { s.SelectNone(); return nil })
}

// ----------------------------------------------------------------------------
// Preferences
// ----------------------------------------------------------------------------

// Delimiter is the delimiter used by the next request.
func (c *Controller) Delimiter() client.Delimiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return client.Delimiter(c.prefs.Delimitador)
}

// SetDelimiter changes the shared delimiter and saves it. Requests already
// dispatched keep the delimiter they were sent with.
func (c *Controller) SetDelimiter(d client.Delimiter) error {
	if !d.Valid() {
		return fmt.Errorf("%w: %q", client.ErrInvalidDelimiter, d)
	}
	return c.updatePrefs(func(p *prefs.Preferences) { p.Delimitador = string(d) })
}

// Mapping returns the column mapping saved for tipo.
func (c *Controller) Mapping(tipo client.Tipo) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mappingLocked(tipo)
}

func (c *Controller) mappingLocked(tipo client.Tipo) map[string]string {
	src := c.prefs.Mapeamentos[string(tipo)]
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// SetMapping saves the header → field id mapping used for tipo's imports.
// An empty mapping removes it.
func (c *Controller) SetMapping(tipo client.Tipo, mapping map[string]string) error {
	if !tipo.Valid() {
		return fmt.Errorf("%w: %q", client.ErrUnknownTipo, tipo)
	}
	return c.updatePrefs(func(p *prefs.Preferences) {
		if len(mapping) == 0 {
			delete(p.Mapeamentos, string(tipo))
			return
		}
		if p.Mapeamentos == nil {
			p.Mapeamentos = make(map[string]map[string]string)
		}
		cp := make(map[string]string, len(mapping))
		for k, v := range mapping {
			cp[k] = v
		}
		p.Mapeamentos[string(tipo)] = cp
	})
}

// DownloadDir is where exports are saved.
func (c *Controller) DownloadDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prefs.DownloadDir == "" {
		return "."
	}
	return c.prefs.DownloadDir
}

// SetDownloadDir changes and saves the download directory.
func (c *Controller) SetDownloadDir(dir string) error {
	return c.updatePrefs(func(p *prefs.Preferences) { p.DownloadDir = dir })
}

func (c *Controller) updatePrefs(fn func(*prefs.Preferences)) error {
	c.mu.Lock()
	fn(&c.prefs)
	snapshot := c.prefs.Clone()
	c.mu.Unlock()

	if err := c.store.Save(snapshot); err != nil {
		slog.Warn("save preferences", "error", err)
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Export
// ----------------------------------------------------------------------------

// Export downloads tipo with the current selection and delimiter and returns
// the saved path. An empty selection is rejected without a request.
func (c *Controller) Export(ctx context.Context, tipo client.Tipo) (string, error) {
	c.mu.Lock()
	p, err := c.pipeline(tipo)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	ids := p.selection.IDs()
	if len(ids) == 0 {
		c.mu.Unlock()
		c.notify(tipo, Warning, "Selecione pelo menos um campo para exportar")
		return "", ErrEmptySelection
	}
	if p.exporting {
		c.mu.Unlock()
		return "", ErrBusy
	}
	p.exporting = true
	delim := client.Delimiter(c.prefs.Delimitador)
	dl := Downloader{Dir: c.prefs.DownloadDir}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		p.exporting = false
		c.mu.Unlock()
	}()

	name := ExportFileName(tipo, c.now())
	path, err := c.download(name, dl, func() (io.ReadCloser, error) {
		return c.api.Export(ctx, tipo, ids, delim)
	})
	if err != nil {
		slog.Error("export", "tipo", tipo, "error", err)
		c.notify(tipo, Error, userMessage(err, "Erro ao exportar dados"))
		return "", err
	}
	c.notify(tipo, Success, "Ficheiro exportado: "+name)
	return path, nil
}

// ExportAll downloads the ZIP with every entity type. At least one selection
// must be non-empty; empty selections are sent empty.
func (c *Controller) ExportAll(ctx context.Context) (string, error) {
	c.mu.Lock()
	sel := make(map[client.Tipo][]string, len(client.Tipos))
	total := 0
	for _, t := range client.Tipos {
		sel[t] = c.pipelines[t].selection.IDs()
		total += len(sel[t])
	}
	if total == 0 {
		c.mu.Unlock()
		c.notify("", Warning, "Selecione pelo menos um campo de motoristas ou veículos")
		return "", ErrEmptySelection
	}
	if c.exportingAll {
		c.mu.Unlock()
		return "", ErrBusy
	}
	c.exportingAll = true
	delim := client.Delimiter(c.prefs.Delimitador)
	dl := Downloader{Dir: c.prefs.DownloadDir}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.exportingAll = false
		c.mu.Unlock()
	}()

	name := ArchiveFileName(c.now())
	path, err := c.download(name, dl, func() (io.ReadCloser, error) {
		return c.api.ExportAll(ctx, sel, delim)
	})
	if err != nil {
		slog.Error("export all", "error", err)
		c.notify("", Error, userMessage(err, "Erro ao exportar dados"))
		return "", err
	}
	c.notify("", Success, "Ficheiro exportado: "+name)
	return path, nil
}

func (c *Controller) download(name string, dl Downloader, fetch func() (io.ReadCloser, error)) (string, error) {
	body, err := fetch()
	if err != nil {
		return "", err
	}
	defer body.Close()
	return dl.Save(name, body)
}

// ----------------------------------------------------------------------------
// Import pipeline
// ----------------------------------------------------------------------------

// State returns the import state of tipo.
func (c *Controller) State(tipo client.Tipo) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.pipeline(tipo)
	if err != nil {
		return Idle{}
	}
	return p.state
}

// CanConfirm reports whether the confirm action is enabled for tipo.
func (c *Controller) CanConfirm(tipo client.Tipo) bool {
	return CanConfirm(c.State(tipo))
}

// Busy reports whether tipo has a request in flight.
func (c *Controller) Busy(tipo client.Tipo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.pipeline(tipo)
	if err != nil {
		return false
	}
	return p.exporting || InFlight(p.state)
}

// SelectFile uploads file for preview. Any previous preview or result of
// tipo is dropped first; the new preview replaces it entirely.
func (c *Controller) SelectFile(ctx context.Context, tipo client.Tipo, file client.File) (*client.ImportPreview, error) {
	c.mu.Lock()
	p, err := c.pipeline(tipo)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if InFlight(p.state) {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	p.gen++
	gen := p.gen
	p.state = Uploading{File: file}
	delim := client.Delimiter(c.prefs.Delimitador)
	mapping := c.mappingLocked(tipo)
	c.mu.Unlock()

	preview, err := c.api.Preview(ctx, tipo, file, delim, mapping)

	c.mu.Lock()
	if p.gen != gen {
		c.mu.Unlock()
		return nil, ErrDiscarded
	}
	if err != nil {
		p.state = Idle{File: &file}
		c.mu.Unlock()
		slog.Warn("import preview", "tipo", tipo, "file", file.Name, "error", err)
		c.notify(tipo, Error, userMessage(err, "Erro ao analisar ficheiro"))
		return nil, err
	}
	p.state = Previewed{File: file, Preview: *preview, Key: client.NewIdempotencyKey()}
	c.mu.Unlock()

	if preview.RegistosParaAtualizar == 0 {
		c.notify(tipo, Info, "Nenhuma alteração detectada")
	} else {
		c.notify(tipo, Success, fmt.Sprintf("%d registo(s) para atualizar, %d ignorado(s)",
			preview.RegistosParaAtualizar, preview.LinhasIgnoradas))
	}
	return preview, nil
}

// RetryPreview re-sends the file kept after a failed upload, or the file of
// the current preview.
func (c *Controller) RetryPreview(ctx context.Context, tipo client.Tipo) (*client.ImportPreview, error) {
	c.mu.Lock()
	p, err := c.pipeline(tipo)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	var file *client.File
	switch s := p.state.(type) {
	case Idle:
		file = s.File
	case Previewed:
		file = &s.File
	case Uploading, Committing:
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.mu.Unlock()

	if file == nil {
		return nil, ErrNoFile
	}
	return c.SelectFile(ctx, tipo, *file)
}

// Confirm commits the previewed file. It is allowed only from Previewed
// with at least one record to update; otherwise no request is sent. The
// original file is re-sent, never the diff.
func (c *Controller) Confirm(ctx context.Context, tipo client.Tipo) (*client.ImportResult, error) {
	c.mu.Lock()
	p, err := c.pipeline(tipo)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	pv, ok := p.state.(Previewed)
	if !ok || pv.Preview.RegistosParaAtualizar <= 0 {
		busy := InFlight(p.state)
		c.mu.Unlock()
		if busy {
			return nil, ErrBusy
		}
		return nil, ErrCommitNotAllowed
	}
	gen := p.gen
	p.state = Committing{File: pv.File, Preview: pv.Preview, Key: pv.Key}
	delim := client.Delimiter(c.prefs.Delimitador)
	mapping := c.mappingLocked(tipo)
	c.mu.Unlock()

	result, err := c.api.Confirm(client.WithIdempotencyKey(ctx, pv.Key), tipo, pv.File, delim, mapping)

	// A reset during the commit leaves the pipeline idle, but the outcome
	// is still reported: the server may have written.
	c.mu.Lock()
	current := p.gen == gen
	if current {
		if err != nil {
			p.state = pv
		} else {
			p.state = Committed{Result: *result}
		}
	}
	c.mu.Unlock()

	if err != nil {
		slog.Error("import commit", "tipo", tipo, "file", pv.File.Name, "error", err)
		c.notify(tipo, Error, userMessage(err, "Erro ao importar dados"))
		return nil, err
	}

	if len(result.Erros) == 0 {
		c.notify(tipo, Success, fmt.Sprintf("%d registo(s) atualizado(s)", result.Atualizados))
	} else {
		c.notify(tipo, Warning, fmt.Sprintf("%d registo(s) atualizado(s), %d erro(s)",
			result.Atualizados, len(result.Erros)))
	}
	return result, nil
}

// Reset clears file, preview and result of tipo only. A preview in flight
// is discarded when it arrives; a commit in flight still reports its
// outcome but leaves the pipeline idle.
func (c *Controller) Reset(tipo client.Tipo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := c.pipeline(tipo)
	if err != nil {
		return err
	}
	p.gen++
	p.state = Idle{}
	return nil
}
