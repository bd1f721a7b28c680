package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/logging"
)

// keyBatchSize bounds the keys sent in one current-row lookup.
const keyBatchSize = 1000

// columnBinding ties a file column to the field it updates.
type columnBinding struct {
	index int
	field FieldSpec
	order int // position in the entity catalog
}

// importLayout is the resolved header of an import file.
type importLayout struct {
	headerLine int
	key        columnBinding
	columns    []columnBinding // updatable columns in catalog order
}

// columnValue is one SET clause of a record update.
type columnValue struct {
	Column string
	Value  any
}

// recordUpdate is the change set computed for one existing record.
type recordUpdate struct {
	Line   int
	Key    string
	Sets   []columnValue
	Record ChangeRecord
}

// ImportPlan is the analysed import: what a preview shows and what a commit
// would write.
type ImportPlan struct {
	Preview ImportPreview
	Updates []recordUpdate
}

// currentLoader fetches stored values by business key. The returned map is
// keyed by business key, then by field ID.
type currentLoader func(ctx context.Context, def EntityDefinition, keys []string) (map[string]map[string]any, error)

// parsedCell is an incoming value after validation.
type parsedCell struct {
	binding columnBinding
	value   any
	display string
}

type candidateRow struct {
	line  int
	key   string
	cells []parsedCell
}

// resolveLayout matches header cells to fields: an explicit mapping first,
// then the field ID, then the field label. Matching ignores case, accents
// and '_' versus ' '. Unmatched columns are ignored; the key column is
// required.
func resolveLayout(def EntityDefinition, headerLine int, header []string, mapping map[string]string) (importLayout, error) {
	layout := importLayout{headerLine: headerLine, key: columnBinding{index: -1}}

	mapped := make(map[string]string, len(mapping))
	for h, id := range mapping {
		mapped[NormalizeHeader(h)] = id
	}

	byID := make(map[string]int, len(def.Fields))
	byLabel := make(map[string]int, len(def.Fields))
	for i, f := range def.Fields {
		byID[NormalizeHeader(f.ID)] = i
		byLabel[NormalizeHeader(f.Label)] = i
	}

	bound := make(map[string]bool)
	for col, cell := range header {
		h := NormalizeHeader(cell)
		if h == "" {
			continue
		}

		pos := -1
		if id, ok := mapped[h]; ok {
			// An explicit mapping to "" or to an unknown field skips the column.
			for i, f := range def.Fields {
				if f.ID == id {
					pos = i
					break
				}
			}
			if pos < 0 {
				continue
			}
		} else if i, ok := byID[h]; ok {
			pos = i
		} else if i, ok := byLabel[h]; ok {
			pos = i
		} else {
			continue
		}

		field := def.Fields[pos]
		if bound[field.ID] {
			continue
		}
		bound[field.ID] = true

		binding := columnBinding{index: col, field: field, order: pos}
		switch {
		case field.ID == def.KeyField:
			layout.key = binding
		case !field.ReadOnly:
			layout.columns = append(layout.columns, binding)
		}
	}

	if layout.key.index < 0 {
		return importLayout{}, fmt.Errorf("%w: %s", ErrMissingKeyColumn, def.Key().Label)
	}

	sort.Slice(layout.columns, func(i, j int) bool {
		return layout.columns[i].order < layout.columns[j].order
	})
	return layout, nil
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

// buildPlan analyses decoded rows against stored records. It never writes.
//
// Rows are ignored, with a message in Erros, when the key is empty, the key
// repeats an earlier row, a value fails to parse, or no record has the key.
// Empty cells never clear stored values.
func buildPlan(ctx context.Context, def EntityDefinition, rows []sourceRow, mapping map[string]string, load currentLoader) (*ImportPlan, error) {
	headerAt := -1
	for i, r := range rows {
		if !isEmptyRow(r.Cells) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrEmptyFile
	}

	layout, err := resolveLayout(def, rows[headerAt].Line, rows[headerAt].Cells, mapping)
	if err != nil {
		return nil, err
	}

	keyLabel := layout.key.field.Label
	plan := &ImportPlan{Preview: ImportPreview{Preview: []ChangeRecord{}}}
	ignore := func(format string, args ...any) {
		plan.Preview.LinhasIgnoradas++
		plan.Preview.Erros = append(plan.Preview.Erros, fmt.Sprintf(format, args...))
	}

	seen := make(map[string]int)
	var candidates []candidateRow
	var keys []string

rowLoop:
	for _, r := range rows[headerAt+1:] {
		if isEmptyRow(r.Cells) {
			continue
		}

		key := CleanCell(cellAt(r.Cells, layout.key.index))
		if layout.key.field.Normalizer != nil {
			key = layout.key.field.Normalizer(key)
		}
		if key == "" {
			ignore("Linha %d: %s em falta", r.Line, keyLabel)
			continue
		}

		// The first row with a key claims it, even when that row is rejected.
		if first, dup := seen[key]; dup {
			ignore("Linha %d: %s %s repetido (linha %d)", r.Line, keyLabel, key, first)
			continue
		}
		seen[key] = r.Line

		cand := candidateRow{line: r.Line, key: key}
		for _, b := range layout.columns {
			raw := cellAt(r.Cells, b.index)
			if CleanCell(raw) == "" {
				continue
			}
			value, display, err := ParseCell(b.field, raw)
			if err != nil {
				ignore("Linha %d: valor inválido para %s (%s)", r.Line, b.field.Label, CleanCell(raw))
				continue rowLoop
			}
			cand.cells = append(cand.cells, parsedCell{binding: b, value: value, display: display})
		}

		candidates = append(candidates, cand)
		keys = append(keys, key)
	}

	current := make(map[string]map[string]any, len(keys))
	for start := 0; start < len(keys); start += keyBatchSize {
		end := min(start+keyBatchSize, len(keys))
		batch, err := load(ctx, def, keys[start:end])
		if err != nil {
			return nil, fmt.Errorf("load current %s: %w", def.Tipo, err)
		}
		for k, v := range batch {
			current[k] = v
		}
	}

	for _, cand := range candidates {
		stored, ok := current[cand.key]
		if !ok {
			ignore("Linha %d: %s %s não existe", cand.line, keyLabel, cand.key)
			continue
		}

		upd := recordUpdate{Line: cand.line, Key: cand.key, Record: def.changeRecord(cand.key, stored)}
		for _, c := range cand.cells {
			before := FormatValue(stored[c.binding.field.ID])
			if before == c.display {
				continue
			}
			upd.Record.Alteracoes = append(upd.Record.Alteracoes, FieldChange{
				Campo:      c.binding.field.Label,
				ValorAtual: before,
				ValorNovo:  c.display,
			})
			upd.Sets = append(upd.Sets, columnValue{Column: c.binding.field.DBColumn(), Value: c.value})
		}

		if len(upd.Sets) == 0 {
			continue
		}
		plan.Updates = append(plan.Updates, upd)
		plan.Preview.Preview = append(plan.Preview.Preview, upd.Record)
	}

	plan.Preview.RegistosParaAtualizar = len(plan.Updates)
	return plan, nil
}

// changeRecord builds the record header shown in a preview from stored values.
func (d EntityDefinition) changeRecord(key string, stored map[string]any) ChangeRecord {
	parts := make([]string, 0, len(d.DisplayFields))
	for _, id := range d.DisplayFields {
		if s := FormatValue(stored[id]); s != "" {
			parts = append(parts, s)
		}
	}
	display := strings.Join(parts, " ")

	rec := ChangeRecord{Alteracoes: []FieldChange{}}
	if d.Tipo == TipoVeiculos {
		rec.Matricula, rec.MarcaModelo = key, display
	} else {
		rec.NIF, rec.Nome = key, display
	}
	return rec
}

// loadCurrent selects every catalog field for the given keys.
func loadCurrent(q DBTX) currentLoader {
	return func(ctx context.Context, def EntityDefinition, keys []string) (map[string]map[string]any, error) {
		cols := make([]string, len(def.Fields))
		for i, f := range def.Fields {
			cols[i] = pgx.Identifier{f.DBColumn()}.Sanitize()
		}
		keyCol := pgx.Identifier{def.Key().DBColumn()}.Sanitize()

		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)",
			strings.Join(cols, ", "), pgx.Identifier{def.Table}.Sanitize(), keyCol)

		rows, err := q.Query(ctx, query, keys)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		out := make(map[string]map[string]any, len(keys))
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return nil, err
			}
			rec := make(map[string]any, len(def.Fields))
			for i, f := range def.Fields {
				rec[f.ID] = vals[i]
			}
			out[FormatValue(rec[def.KeyField])] = rec
		}
		return out, rows.Err()
	}
}

// PreviewImport analyses an import file without writing anything.
func (s *Service) PreviewImport(ctx context.Context, req ImportRequest) (*ImportPreview, error) {
	start := time.Now()
	def, err := MustGet(req.Tipo)
	if err != nil {
		return nil, err
	}

	rows, err := decodeRows(req.FileName, req.Data, req.Delimiter)
	if err != nil {
		return nil, err
	}

	plan, err := buildPlan(ctx, def, rows, req.Mapping, loadCurrent(s.pool))
	if err != nil {
		return nil, err
	}

	preview := plan.Preview
	if s.previewMax > 0 && len(preview.Preview) > s.previewMax {
		preview.Preview = preview.Preview[:s.previewMax]
	}

	logging.WithFields(ctx, "tipo", req.Tipo, "ficheiro", req.FileName).Info("import preview computed",
		"registos_para_atualizar", preview.RegistosParaAtualizar,
		"linhas_ignoradas", preview.LinhasIgnoradas,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &preview, nil
}
