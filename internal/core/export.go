package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zip"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/logging"
)

// ExportDateLayout dates export file names: motoristas_2024-05-01.csv.
const ExportDateLayout = "2006-01-02"

// ExportFileName returns the CSV name for one entity on the given day.
func ExportFileName(tipo string, day time.Time) string {
	return fmt.Sprintf("%s_%s.csv", tipo, day.Format(ExportDateLayout))
}

// ArchiveFileName returns the combined export name for the given day.
func ArchiveFileName(day time.Time) string {
	return fmt.Sprintf("exportacao_%s.zip", day.Format(ExportDateLayout))
}

// SelectFields validates requested field IDs and returns the matching specs
// in catalog order. Duplicates collapse.
func SelectFields(def EntityDefinition, ids []string) ([]FieldSpec, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := def.Field(id); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, id)
		}
		want[id] = true
	}
	if len(want) == 0 {
		return nil, ErrEmptySelection
	}

	out := make([]FieldSpec, 0, len(want))
	for _, f := range def.Fields {
		if want[f.ID] {
			out = append(out, f)
		}
	}
	return out, nil
}

// rowSource yields stored rows as values aligned with the selected fields.
type rowSource func(yield func([]any) error) error

// writeCSV writes a BOM, a header of labels and one line per row.
func writeCSV(w io.Writer, fields []FieldSpec, delimiter rune, rows rowSource) (int, error) {
	if _, err := w.Write(utf8BOM); err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	cw.Comma = delimiter

	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Label
	}
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	count := 0
	record := make([]string, len(fields))
	err := rows(func(vals []any) error {
		for i := range fields {
			record[i] = FormatValue(vals[i])
		}
		count++
		return cw.Write(record)
	})
	if err != nil {
		return count, err
	}

	cw.Flush()
	return count, cw.Error()
}

// queryRows streams the selected columns of every stored record, ordered by
// business key.
func queryRows(ctx context.Context, q DBTX, def EntityDefinition, fields []FieldSpec) rowSource {
	return func(yield func([]any) error) error {
		cols := make([]string, len(fields))
		for i, f := range fields {
			cols[i] = pgx.Identifier{f.DBColumn()}.Sanitize()
		}
		query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
			strings.Join(cols, ", "),
			pgx.Identifier{def.Table}.Sanitize(),
			pgx.Identifier{def.Key().DBColumn()}.Sanitize(),
		)

		rows, err := q.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("query %s: %w", def.Table, err)
		}
		defer rows.Close()

		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return err
			}
			if err := yield(vals); err != nil {
				return err
			}
		}
		return rows.Err()
	}
}

// ExportRequest selects what an export contains.
type ExportRequest struct {
	Tipo      string
	FieldIDs  []string
	Delimiter rune
}

// Export writes one entity as CSV. Field validation happens before any byte
// is written, so callers can still answer with an error status.
func (s *Service) Export(ctx context.Context, w io.Writer, req ExportRequest) error {
	def, err := MustGet(req.Tipo)
	if err != nil {
		return err
	}
	fields, err := SelectFields(def, req.FieldIDs)
	if err != nil {
		return err
	}

	n, err := writeCSV(w, fields, req.Delimiter, queryRows(ctx, s.pool, def, fields))
	if err != nil {
		return fmt.Errorf("export %s: %w", req.Tipo, err)
	}

	s.recordExport(ctx, req.Tipo, n, len(fields))
	return nil
}

// ValidateExportAll checks a combined export selection. Empty selections are
// allowed per entity but not for every entity.
func ValidateExportAll(selections map[string][]string) (map[string][]FieldSpec, error) {
	out := make(map[string][]FieldSpec)
	for tipo, ids := range selections {
		def, err := MustGet(tipo)
		if err != nil {
			return nil, err
		}
		fields, err := SelectFields(def, ids)
		if errors.Is(err, ErrEmptySelection) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[tipo] = fields
	}
	if len(out) == 0 {
		return nil, ErrEmptySelection
	}
	return out, nil
}

// ExportAll writes a ZIP holding one CSV per entity with a non-empty
// selection, named for day.
func (s *Service) ExportAll(ctx context.Context, w io.Writer, selections map[string][]string, delimiter rune, day time.Time) error {
	chosen, err := ValidateExportAll(selections)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, def := range All() {
		fields, ok := chosen[def.Tipo]
		if !ok {
			continue
		}
		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     ExportFileName(def.Tipo, day),
			Method:   zip.Deflate,
			Modified: day,
		})
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", def.Tipo, err)
		}
		n, err := writeCSV(entry, fields, delimiter, queryRows(ctx, s.pool, def, fields))
		if err != nil {
			return fmt.Errorf("export %s: %w", def.Tipo, err)
		}
		s.recordExport(ctx, def.Tipo, n, len(fields))
	}
	return zw.Close()
}

func (s *Service) recordExport(ctx context.Context, tipo string, rows, fields int) {
	logging.FromContext(ctx).Info("export written", "tipo", tipo, "rows", rows, "fields", fields)
	if _, err := s.LogAudit(ctx, s.queries(), AuditLogParams{
		Action:       ActionExport,
		EntityType:   tipo,
		RowsAffected: rows,
		Details:      map[string]any{"campos": fields},
	}); err != nil {
		logging.FromContext(ctx).Warn("audit export failed", "tipo", tipo, "error", err)
	}
}
