package application

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/client"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/reconcile"
)

// previewRows is the number of change records shown when the window size
// is unknown.
const previewRows = 12

func selectionLabel(selected, total int) string {
	return fmt.Sprintf("%d/%d", selected, total)
}

func (m *Model) View() string {
	var b strings.Builder

	switch m.mode {
	case modeFields:
		m.viewFields(&b)
	case modeFiles:
		m.viewFiles(&b)
	case modePath:
		fmt.Fprintf(&b, "%s - caminho do ficheiro\n\n> %s_\n\n", m.tipo.Label(), m.input)
		b.WriteString("enter analisar · esc cancelar\n")
	default:
		m.viewMenu(&b)
	}

	if m.status != "" {
		prefix := ""
		if m.statusErr {
			prefix = "! "
		}
		fmt.Fprintf(&b, "\n%s%s\n", prefix, m.status)
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, n := range m.log {
			b.WriteString(noticeLine(n))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func noticeLine(n reconcile.Notice) string {
	if n.Tipo != "" {
		return fmt.Sprintf("[%s] %s: %s", n.Level, n.Tipo.Label(), n.Message)
	}
	return fmt.Sprintf("[%s] %s", n.Level, n.Message)
}

func (m *Model) viewMenu(b *strings.Builder) {
	fmt.Fprintf(b, "%s\n\n", m.menu.Title)

	for i, item := range m.menu.Items {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		label := item.Label
		if item.Status != nil {
			label += ": " + item.Status()
		}
		if !item.enabled() {
			label = "(" + label + ")"
		}
		fmt.Fprintf(b, "%s%s\n", cursor, label)
	}

	if m.menu.Tipo != "" {
		b.WriteString("\n")
		m.viewPipeline(b, m.menu.Tipo)
	}
}

func (m *Model) viewPipeline(b *strings.Builder, tipo client.Tipo) {
	switch s := m.ctrl.State(tipo).(type) {
	case reconcile.Idle:
		if s.File != nil {
			fmt.Fprintf(b, "Ficheiro %s por analisar\n", s.File.Name)
		}
	case reconcile.Uploading:
		fmt.Fprintf(b, "A analisar %s...\n", s.File.Name)
	case reconcile.Committing:
		fmt.Fprintf(b, "A importar %s...\n", s.File.Name)
	case reconcile.Previewed:
		fmt.Fprintf(b, "%s: %d registo(s) para atualizar, %d ignorado(s)\n",
			s.File.Name, s.Preview.RegistosParaAtualizar, s.Preview.LinhasIgnoradas)
		m.viewPreview(b, tipo, s.Preview)
	case reconcile.Committed:
		fmt.Fprintf(b, "%d registo(s) atualizado(s)\n", s.Result.Atualizados)
		for _, e := range s.Result.Erros {
			fmt.Fprintf(b, "  - %s\n", e)
		}
	}
}

func (m *Model) viewPreview(b *strings.Builder, tipo client.Tipo, pv client.ImportPreview) {
	limit := previewRows
	if m.height > 0 {
		limit = max(3, m.height-len(m.menu.Items)-maxLog-8)
	}

	lines := 0
	for i, rec := range pv.Preview {
		if lines >= limit {
			fmt.Fprintf(b, "  ... mais %d registo(s)\n", len(pv.Preview)-i)
			break
		}
		fmt.Fprintf(b, "  %s  %s\n", rec.Key(tipo), rec.Name(tipo))
		lines++
		for _, ch := range rec.Alteracoes {
			fmt.Fprintf(b, "      %s: %s -> %s\n", ch.Campo, orDash(ch.ValorAtual), ch.ValorNovo)
			lines++
		}
	}
	for _, e := range pv.Erros {
		fmt.Fprintf(b, "  ! %s\n", e)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (m *Model) viewFields(b *strings.Builder) {
	fmt.Fprintf(b, "%s - campos a exportar\n\n", m.tipo.Label())

	fields := m.ctrl.Fields(m.tipo)
	if len(fields) == 0 {
		b.WriteString("  Nenhum campo disponível\n")
	}
	selected := make(map[string]bool)
	for _, id := range m.ctrl.SelectedIDs(m.tipo) {
		selected[id] = true
	}
	for i, f := range fields {
		cursor := "  "
		if i == m.fieldCursor {
			cursor = "> "
		}
		check := "[ ]"
		if selected[f.ID] {
			check = "[x]"
		}
		fmt.Fprintf(b, "%s%s %s\n", cursor, check, f.Label)
	}

	fmt.Fprintf(b, "\nespaço marcar · a todos · n nenhum · e exportar · esc voltar  (delimitador %s)\n",
		delimiterLabel(m.ctrl.Delimiter()))
}

func (m *Model) viewFiles(b *strings.Builder) {
	fmt.Fprintf(b, "%s - importar de %s\n\n", m.tipo.Label(), m.importDir)

	if len(m.files) == 0 {
		b.WriteString("  Nenhum ficheiro .csv ou .xlsx\n")
	}
	for i, f := range m.files {
		cursor := "  "
		if i == m.fileCursor {
			cursor = "> "
		}
		fmt.Fprintf(b, "%s%s\n", cursor, filepath.Base(f))
	}
	b.WriteString("\nenter analisar · p outro caminho · esc voltar\n")
}
