package application

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
)

/* ----------------------------------------
	MENU TREE
---------------------------------------- */

type MenuItem struct {
	Label   string
	Submenu *Menu
	Action  func() tea.Cmd
	// Status is appended to the label when set.
	Status func() string
	// Enabled greys the item out and ignores enter when it returns false.
	Enabled func() bool
}

type Menu struct {
	Title  string
	Tipo   client.Tipo
	Items  []MenuItem
	Parent *Menu
}

func (i MenuItem) enabled() bool {
	return i.Enabled == nil || i.Enabled()
}

/* ----------------------------------------
	MENU TREE DEFINITION
---------------------------------------- */

func linkParents(menu *Menu, parent *Menu) {
	menu.Parent = parent

	for i := range menu.Items {
		item := &menu.Items[i]

		if item.Label == labelBack {
			item.Submenu = parent
			continue
		}

		if item.Submenu != nil {
			linkParents(item.Submenu, menu)
		}
	}
}

const labelBack = "Voltar"

func buildMenuTree(m *Model) *Menu {
	root := &Menu{
		Title: "Exportação / Importação",
		Items: []MenuItem{
			{Label: "Motoristas ->", Submenu: loadEntityMenu(m, client.Motoristas)},
			{Label: "Veículos ->", Submenu: loadEntityMenu(m, client.Veiculos)},
			{Label: "Exportar tudo (ZIP)", Action: m.actions.ExportAll},
			{
				Label:  "Delimitador",
				Status: func() string { return delimiterLabel(m.ctrl.Delimiter()) },
				Action: m.toggleDelimiter,
			},
			{Label: "Sair", Action: func() tea.Cmd { return tea.Quit }},
		},
	}

	linkParents(root, nil)

	return root
}

/* ----------------------------------------
	LOAD MENUS
---------------------------------------- */

func loadEntityMenu(m *Model, tipo client.Tipo) *Menu {
	idle := func() bool { return !m.ctrl.Busy(tipo) }

	return &Menu{
		Title: tipo.Label(),
		Tipo:  tipo,
		Items: []MenuItem{
			{
				Label:  "Campos a exportar ->",
				Status: func() string { return selectionLabel(len(m.ctrl.SelectedIDs(tipo)), len(m.ctrl.Fields(tipo))) },
				Action: func() tea.Cmd { return m.openFields(tipo) },
			},
			{
				Label:   "Exportar CSV",
				Action:  func() tea.Cmd { return m.actions.Export(tipo) },
				Enabled: idle,
			},
			{
				Label:   "Importar ficheiro ->",
				Action:  func() tea.Cmd { return m.openFiles(tipo) },
				Enabled: idle,
			},
			{
				Label:   "Repetir pré-visualização",
				Action:  func() tea.Cmd { return m.actions.RetryPreview(tipo) },
				Enabled: idle,
			},
			{
				Label:   "Confirmar importação",
				Action:  func() tea.Cmd { return m.actions.Confirm(tipo) },
				Enabled: func() bool { return m.ctrl.CanConfirm(tipo) },
			},
			{
				Label:  "Limpar importação",
				Action: func() tea.Cmd { return m.actions.Reset(tipo) },
			},
			{Label: labelBack},
		},
	}
}

func delimiterLabel(d client.Delimiter) string {
	if d == client.Comma {
		return "vírgula (,)"
	}
	return "ponto e vírgula (;)"
}
