package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	db "github.com/paulodiramos/tvdefleetonline-sub002/internal/database"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/logging"
)

// CommitImport re-analyses the file and applies every planned update in one
// transaction. Each record runs under its own savepoint, so a failing record
// is reported in Erros without undoing the others.
//
// With an idempotency key, a key the same partner recorded within the key
// TTL returns the stored result and writes nothing.
func (s *Service) CommitImport(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	def, err := MustGet(req.Tipo)
	if err != nil {
		return nil, err
	}

	if req.PreviewDigest != "" && req.PreviewDigest != FileDigest(req.Data) {
		return nil, ErrFileChanged
	}

	rows, err := decodeRows(req.FileName, req.Data, req.Delimiter)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	return s.commitTx(ctx, tx, def, rows, req, loadCurrent(tx))
}

// FileDigest identifies the content of an uploaded file.
func FileDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// commitTx runs a commit inside tx and commits it.
func (s *Service) commitTx(ctx context.Context, tx pgx.Tx, def EntityDefinition, rows []sourceRow, req ImportRequest, load currentLoader) (*ImportResult, error) {
	start := time.Now()
	log := logging.WithFields(ctx, "tipo", def.Tipo, "ficheiro", req.FileName)
	q := db.New(tx)
	partner := PartnerFromContext(ctx)

	if req.IdempotencyKey != "" {
		stored, found, err := s.replayable(ctx, q, partner, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if found {
			if _, err := s.LogAudit(ctx, q, AuditLogParams{
				Action:     ActionImportReplay,
				EntityType: def.Tipo,
				ImportID:   pgUUIDString(stored.ID),
			}); err != nil {
				return nil, fmt.Errorf("audit replay: %w", err)
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("commit: %w", err)
			}
			log.Info("import commit replayed", "import_id", pgUUIDString(stored.ID))
			return storedResult(stored), nil
		}
	}

	plan, err := buildPlan(ctx, def, rows, req.Mapping, load)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Tipo: def.Tipo, Erros: append([]string{}, plan.Preview.Erros...)}
	keyLabel := def.Key().Label

	for i, upd := range plan.Updates {
		if i%100 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		if err := applyUpdate(ctx, tx, def, upd); err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			result.Erros = append(result.Erros, fmt.Sprintf("Linha %d: %s %s não atualizado: %s",
				upd.Line, keyLabel, upd.Key, MapError(err).Message))
			log.Warn("record update failed", "key", upd.Key, "error", err)
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("release savepoint: %w", err)
		}
		result.Atualizados++
	}

	errosJSON, err := json.Marshal(result.Erros)
	if err != nil {
		return nil, fmt.Errorf("encode erros: %w", err)
	}

	importID := uuid.New()
	if _, err := q.InsertImportCommit(ctx, db.InsertImportCommitParams{
		ID:             pgtype.UUID{Bytes: importID, Valid: true},
		Tipo:           def.Tipo,
		IdempotencyKey: ToPgText(req.IdempotencyKey),
		FileName:       req.FileName,
		Atualizados:    int32(result.Atualizados),
		Erros:          errosJSON,
		ParceiroID:     ToPgText(partner),
	}); err != nil {
		return nil, fmt.Errorf("record import: %w", err)
	}

	if _, err := s.LogAudit(ctx, q, AuditLogParams{
		Action:       ActionImportCommit,
		EntityType:   def.Tipo,
		RowsAffected: result.Atualizados,
		ImportID:     importID.String(),
		Details: map[string]any{
			"ficheiro":         req.FileName,
			"linhas_ignoradas": plan.Preview.LinhasIgnoradas,
			"erros":            len(result.Erros),
		},
	}); err != nil {
		return nil, fmt.Errorf("audit import: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	log.Info("import committed",
		"import_id", importID.String(),
		"atualizados", result.Atualizados,
		"erros", len(result.Erros),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// replayable locks key for partner and returns the commit recorded under it.
// A key older than the TTL is released first and reports not found.
func (s *Service) replayable(ctx context.Context, q *db.Queries, partner, key string) (db.ImportCommit, bool, error) {
	if err := q.LockImportKey(ctx, partner, key); err != nil {
		return db.ImportCommit{}, false, fmt.Errorf("lock import key: %w", err)
	}
	if _, err := q.ExpireImportKey(ctx, db.ExpireImportKeyParams{
		ParceiroID:     partner,
		IdempotencyKey: key,
		TTLSeconds:     s.keyTTL.Seconds(),
	}); err != nil {
		return db.ImportCommit{}, false, fmt.Errorf("expire import key: %w", err)
	}

	stored, err := q.GetImportCommitByKey(ctx, db.GetImportCommitByKeyParams{
		ParceiroID:     partner,
		IdempotencyKey: key,
	})
	switch {
	case err == nil:
		return stored, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return db.ImportCommit{}, false, nil
	}
	return db.ImportCommit{}, false, fmt.Errorf("lookup import key: %w", err)
}

// updateStatement builds the UPDATE for one record. The key is the last
// parameter.
func updateStatement(def EntityDefinition, upd recordUpdate) (string, []any) {
	sets := make([]string, 0, len(upd.Sets)+1)
	args := make([]any, 0, len(upd.Sets)+1)
	for i, cv := range upd.Sets {
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{cv.Column}.Sanitize(), i+1))
		args = append(args, cv.Value)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, upd.Key)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		pgx.Identifier{def.Table}.Sanitize(),
		strings.Join(sets, ", "),
		pgx.Identifier{def.Key().DBColumn()}.Sanitize(),
		len(args),
	)
	return query, args
}

func applyUpdate(ctx context.Context, tx pgx.Tx, def EntityDefinition, upd recordUpdate) error {
	query, args := updateStatement(def, upd)
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record not found")
	}
	return nil
}

func storedResult(c db.ImportCommit) *ImportResult {
	result := &ImportResult{Tipo: c.Tipo, Atualizados: int(c.Atualizados), Erros: []string{}}
	if len(c.Erros) > 0 {
		_ = json.Unmarshal(c.Erros, &result.Erros)
	}
	return result
}
