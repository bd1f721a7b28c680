package core

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgtype"

	db "github.com/paulodiramos/tvdefleetonline-sub002/internal/database"
)

// DefaultHistoryLimit is the number of commits returned by ListImports.
const DefaultHistoryLimit = 50

// ListImports returns the most recent import commits, newest first. An empty
// tipo lists every entity.
func (s *Service) ListImports(ctx context.Context, tipo string, limit int) ([]ImportSummary, error) {
	if tipo != "" {
		if _, err := MustGet(tipo); err != nil {
			return nil, err
		}
	}
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}

	rows, err := s.queries().ListImportCommits(ctx, db.ListImportCommitsParams{
		Tipo:  pgtype.Text{String: tipo, Valid: tipo != ""},
		Limit: int32(limit),
	})
	if err != nil {
		return nil, err
	}

	out := make([]ImportSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, importSummary(r))
	}
	return out, nil
}

func importSummary(r db.ImportCommit) ImportSummary {
	var erros []string
	if len(r.Erros) > 0 {
		_ = json.Unmarshal(r.Erros, &erros)
	}
	return ImportSummary{
		ID:          pgUUIDString(r.ID),
		Tipo:        r.Tipo,
		Ficheiro:    r.FileName,
		Atualizados: int(r.Atualizados),
		NErros:      len(erros),
		Data:        r.CreatedAt.Time,
	}
}
