package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const lockImportKey = `-- name: LockImportKey :exec
SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))
`

// LockImportKey serialises commits sharing a partner and idempotency key
// until the surrounding transaction ends.
func (q *Queries) LockImportKey(ctx context.Context, parceiroID, key string) error {
	_, err := q.db.Exec(ctx, lockImportKey, parceiroID, key)
	return err
}

const expireImportKey = `-- name: ExpireImportKey :execrows
UPDATE import_commits
SET idempotency_key = NULL
WHERE COALESCE(parceiro_id, '') = $1
  AND idempotency_key = $2
  AND created_at < now() - make_interval(secs => $3::float8)
`

type ExpireImportKeyParams struct {
	ParceiroID     string
	IdempotencyKey string
	TTLSeconds     float64
}

// ExpireImportKey releases a key older than the TTL so it can be recorded
// again.
func (q *Queries) ExpireImportKey(ctx context.Context, arg ExpireImportKeyParams) (int64, error) {
	result, err := q.db.Exec(ctx, expireImportKey, arg.ParceiroID, arg.IdempotencyKey, arg.TTLSeconds)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getImportCommitByKey = `-- name: GetImportCommitByKey :one
SELECT id, tipo, idempotency_key, file_name, atualizados, erros, parceiro_id, created_at
FROM import_commits
WHERE COALESCE(parceiro_id, '') = $1
  AND idempotency_key = $2
`

type GetImportCommitByKeyParams struct {
	ParceiroID     string
	IdempotencyKey string
}

func (q *Queries) GetImportCommitByKey(ctx context.Context, arg GetImportCommitByKeyParams) (ImportCommit, error) {
	row := q.db.QueryRow(ctx, getImportCommitByKey, arg.ParceiroID, arg.IdempotencyKey)
	var i ImportCommit
	err := row.Scan(
		&i.ID,
		&i.Tipo,
		&i.IdempotencyKey,
		&i.FileName,
		&i.Atualizados,
		&i.Erros,
		&i.ParceiroID,
		&i.CreatedAt,
	)
	return i, err
}

const insertImportCommit = `-- name: InsertImportCommit :one
INSERT INTO import_commits (id, tipo, idempotency_key, file_name, atualizados, erros, parceiro_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, tipo, idempotency_key, file_name, atualizados, erros, parceiro_id, created_at
`

type InsertImportCommitParams struct {
	ID             pgtype.UUID
	Tipo           string
	IdempotencyKey pgtype.Text
	FileName       string
	Atualizados    int32
	Erros          []byte
	ParceiroID     pgtype.Text
}

func (q *Queries) InsertImportCommit(ctx context.Context, arg InsertImportCommitParams) (ImportCommit, error) {
	row := q.db.QueryRow(ctx, insertImportCommit,
		arg.ID,
		arg.Tipo,
		arg.IdempotencyKey,
		arg.FileName,
		arg.Atualizados,
		arg.Erros,
		arg.ParceiroID,
	)
	var i ImportCommit
	err := row.Scan(
		&i.ID,
		&i.Tipo,
		&i.IdempotencyKey,
		&i.FileName,
		&i.Atualizados,
		&i.Erros,
		&i.ParceiroID,
		&i.CreatedAt,
	)
	return i, err
}

const listImportCommits = `-- name: ListImportCommits :many
SELECT id, tipo, idempotency_key, file_name, atualizados, erros, parceiro_id, created_at
FROM import_commits
WHERE ($1::text IS NULL OR tipo = $1)
ORDER BY created_at DESC
LIMIT $2
`

type ListImportCommitsParams struct {
	Tipo  pgtype.Text
	Limit int32
}

func (q *Queries) ListImportCommits(ctx context.Context, arg ListImportCommitsParams) ([]ImportCommit, error) {
	rows, err := q.db.Query(ctx, listImportCommits, arg.Tipo, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportCommit
	for rows.Next() {
		var i ImportCommit
		if err := rows.Scan(
			&i.ID,
			&i.Tipo,
			&i.IdempotencyKey,
			&i.FileName,
			&i.Atualizados,
			&i.Erros,
			&i.ParceiroID,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
