// Package application is the terminal front end of the reconciliation
// workflow: one menu per entity type, a field picker for exports and a file
// picker that leads to the import preview.
package application

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/handler"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/reconcile"
)

type mode int

const (
	modeMenu mode = iota
	modeFields
	modeFiles
	modePath
)

// maxLog is the number of notices kept on screen.
const maxLog = 6

// Model is the bubbletea model. It is used through a pointer so the menu
// closures see the same value the program updates.
type Model struct {
	ctrl      *reconcile.Controller
	actions   *handler.Actions
	notices   *handler.Notices
	importDir string

	menu   *Menu
	cursor int
	mode   mode
	tipo   client.Tipo

	fieldCursor int
	files       []string
	fileCursor  int
	input       string

	status    string
	statusErr bool
	log       []reconcile.Notice
	height    int
}

// New builds the model. notices must be the notifier the controller was
// created with; importDir is listed by the file picker.
func New(ctrl *reconcile.Controller, notices *handler.Notices, importDir string) *Model {
	m := &Model{
		ctrl:      ctrl,
		actions:   &handler.Actions{Ctrl: ctrl},
		notices:   notices,
		importDir: importDir,
	}
	m.menu = buildMenuTree(m)
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.actions.LoadCatalog(), m.notices.Wait())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.mode {
		case modeFields:
			return m, m.updateFields(msg)
		case modeFiles:
			return m, m.updateFiles(msg)
		case modePath:
			return m, m.updatePath(msg)
		}
		return m, m.updateMenu(msg)

	case handler.NoticeMsg:
		m.log = append(m.log, reconcile.Notice(msg))
		if len(m.log) > maxLog {
			m.log = m.log[len(m.log)-maxLog:]
		}
		return m, m.notices.Wait()

	case handler.CatalogMsg:
		if msg.Err == nil {
			m.setStatus("Campos carregados", false)
		}
		return m, nil

	case handler.ExportMsg:
		m.setStatus("Guardado em "+msg.Path, false)
		return m, nil

	case handler.PreviewMsg, handler.CommitMsg:
		m.status = ""
		return m, nil

	case handler.WdMsg:
		m.setStatus(string(msg), false)
		return m, nil

	case handler.DoneMsg:
		m.setStatus(string(msg), false)
		return m, nil

	case handler.ErrMsg:
		m.setStatus(fmt.Sprintf("Erro: %v", msg.Err), true)
		return m, nil
	}

	return m, nil
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

/* ----------------------------------------
	MENU
---------------------------------------- */

func (m *Model) updateMenu(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.menu.Items)-1 {
			m.cursor++
		}
	case "esc", "backspace", "left", "h":
		if m.menu.Parent != nil {
			m.enter(m.menu.Parent)
		}
	case "q":
		if m.menu.Parent == nil {
			return tea.Quit
		}
	case "enter", " ", "right", "l":
		item := m.menu.Items[m.cursor]
		if !item.enabled() {
			return nil
		}
		if item.Submenu != nil {
			m.enter(item.Submenu)
			return nil
		}
		if item.Action != nil {
			m.status = ""
			return item.Action()
		}
	}
	return nil
}

func (m *Model) enter(menu *Menu) {
	m.menu = menu
	m.cursor = 0
}

func (m *Model) toggleDelimiter() tea.Cmd {
	next := client.Comma
	if m.ctrl.Delimiter() == client.Comma {
		next = client.Semicolon
	}
	return errCmd(m.ctrl.SetDelimiter(next))
}

// errCmd reports err on the status line; nil needs no command.
func errCmd(err error) tea.Cmd {
	if err == nil {
		return nil
	}
	return func() tea.Msg { return handler.ErrMsg{Err: err} }
}

/* ----------------------------------------
	FIELD PICKER
---------------------------------------- */

func (m *Model) openFields(tipo client.Tipo) tea.Cmd {
	m.mode = modeFields
	m.tipo = tipo
	m.fieldCursor = 0
	return nil
}

func (m *Model) updateFields(msg tea.KeyMsg) tea.Cmd {
	fields := m.ctrl.Fields(m.tipo)

	switch msg.String() {
	case "up", "k":
		if m.fieldCursor > 0 {
			m.fieldCursor--
		}
	case "down", "j":
		if m.fieldCursor < len(fields)-1 {
			m.fieldCursor++
		}
	case " ", "enter", "x":
		if m.fieldCursor < len(fields) {
			return errCmd(m.ctrl.Toggle(m.tipo, fields[m.fieldCursor].ID))
		}
	case "a":
		return errCmd(m.ctrl.SelectAll(m.tipo))
	case "n":
		return errCmd(m.ctrl.SelectNone(m.tipo))
	case "e":
		if m.ctrl.Busy(m.tipo) {
			return nil
		}
		return m.actions.Export(m.tipo)
	case "esc", "backspace", "left", "h", "q":
		m.mode = modeMenu
	}
	return nil
}

/* ----------------------------------------
	FILE PICKER
---------------------------------------- */

func (m *Model) openFiles(tipo client.Tipo) tea.Cmd {
	m.tipo = tipo
	m.fileCursor = 0
	m.mode = modeFiles

	files, err := handler.ImportFiles(m.importDir)
	if err != nil {
		m.files = nil
		m.mode = modePath
		m.input = ""
		return func() tea.Msg { return handler.ErrMsg{Err: err} }
	}
	m.files = files
	return nil
}

func (m *Model) updateFiles(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.fileCursor > 0 {
			m.fileCursor--
		}
	case "down", "j":
		if m.fileCursor < len(m.files)-1 {
			m.fileCursor++
		}
	case "p", "/":
		m.mode = modePath
		m.input = ""
	case "enter":
		if m.fileCursor >= len(m.files) {
			return nil
		}
		return m.submit(m.files[m.fileCursor])
	case "esc", "backspace", "left", "h", "q":
		m.mode = modeMenu
	}
	return nil
}

func (m *Model) updatePath(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeMenu
	case tea.KeyEnter:
		if m.input == "" {
			return nil
		}
		return m.submit(m.input)
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	}
	return nil
}

func (m *Model) submit(path string) tea.Cmd {
	m.mode = modeMenu
	if m.ctrl.Busy(m.tipo) {
		return nil
	}
	m.setStatus("A analisar "+path+"...", false)
	return m.actions.Preview(m.tipo, path)
}
