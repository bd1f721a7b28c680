// Package handler turns reconcile.Controller operations into bubbletea
// commands. Each command runs the operation off the UI goroutine and
// reports back with one message.
package handler

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/reconcile"
)

type WdMsg string
type DoneMsg string
type ErrMsg struct{ Err error }

// CatalogMsg reports that the field catalog was loaded (or degraded).
type CatalogMsg struct{ Err error }

// PreviewMsg carries a fresh import preview.
type PreviewMsg struct {
	Tipo    client.Tipo
	Preview *client.ImportPreview
}

// CommitMsg carries the result of a confirmed import.
type CommitMsg struct {
	Tipo   client.Tipo
	Result *client.ImportResult
}

// ExportMsg carries the path of a saved download.
type ExportMsg struct{ Path string }

// Actions builds commands against one controller. No timeout is applied:
// requests end when the server answers.
type Actions struct {
	Ctrl *reconcile.Controller
}

// settled turns a controller error into a message. The controller
// notifies the user of every outcome it handles, so only errors it raised
// before doing anything are reported here.
func settled(err error) tea.Msg {
	switch {
	case errors.Is(err, reconcile.ErrNoFile):
		return WdMsg("Nenhum ficheiro para analisar")
	case errors.Is(err, client.ErrUnknownTipo):
		return ErrMsg{Err: err}
	}
	return nil
}

func (a *Actions) run(fn func(ctx context.Context) (tea.Msg, error)) tea.Cmd {
	return func() tea.Msg {
		msg, err := fn(context.Background())
		if err != nil {
			return settled(err)
		}
		return msg
	}
}

// LoadCatalog fetches the field catalog.
func (a *Actions) LoadCatalog() tea.Cmd {
	return func() tea.Msg {
		return CatalogMsg{Err: a.Ctrl.LoadCatalog(context.Background())}
	}
}

// Export downloads the selected columns of tipo.
func (a *Actions) Export(tipo client.Tipo) tea.Cmd {
	return a.run(func(ctx context.Context) (tea.Msg, error) {
		path, err := a.Ctrl.Export(ctx, tipo)
		if err != nil {
			return nil, err
		}
		return ExportMsg{Path: path}, nil
	})
}

// ExportAll downloads both entity types as one archive.
func (a *Actions) ExportAll() tea.Cmd {
	return a.run(func(ctx context.Context) (tea.Msg, error) {
		path, err := a.Ctrl.ExportAll(ctx)
		if err != nil {
			return nil, err
		}
		return ExportMsg{Path: path}, nil
	})
}

// Preview reads path and uploads it for a preview of tipo.
func (a *Actions) Preview(tipo client.Tipo, path string) tea.Cmd {
	return a.run(func(ctx context.Context) (tea.Msg, error) {
		file, err := LoadFile(path)
		if err != nil {
			return ErrMsg{Err: err}, nil
		}
		pv, err := a.Ctrl.SelectFile(ctx, tipo, file)
		if err != nil {
			return nil, err
		}
		return PreviewMsg{Tipo: tipo, Preview: pv}, nil
	})
}

// RetryPreview re-sends the file kept for tipo.
func (a *Actions) RetryPreview(tipo client.Tipo) tea.Cmd {
	return a.run(func(ctx context.Context) (tea.Msg, error) {
		pv, err := a.Ctrl.RetryPreview(ctx, tipo)
		if err != nil {
			return nil, err
		}
		return PreviewMsg{Tipo: tipo, Preview: pv}, nil
	})
}

// Confirm commits the previewed file of tipo.
func (a *Actions) Confirm(tipo client.Tipo) tea.Cmd {
	return a.run(func(ctx context.Context) (tea.Msg, error) {
		res, err := a.Ctrl.Confirm(ctx, tipo)
		if err != nil {
			return nil, err
		}
		return CommitMsg{Tipo: tipo, Result: res}, nil
	})
}

// Reset clears the import pipeline of tipo.
func (a *Actions) Reset(tipo client.Tipo) tea.Cmd {
	return func() tea.Msg {
		if err := a.Ctrl.Reset(tipo); err != nil {
			return ErrMsg{Err: err}
		}
		return DoneMsg("Importação de " + tipo.Label() + " limpa")
	}
}
