package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertAuditLog = `-- name: InsertAuditLog :one
INSERT INTO audit_log (
    id, action, severity, entity_type, parceiro_id, ip_address, user_agent,
    row_key, rows_affected, details, import_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, action, severity, entity_type, parceiro_id, ip_address, user_agent,
    row_key, rows_affected, details, import_id, created_at
`

type InsertAuditLogParams struct {
	ID           pgtype.UUID
	Action       string
	Severity     string
	EntityType   string
	ParceiroID   pgtype.Text
	IpAddress    pgtype.Text
	UserAgent    pgtype.Text
	RowKey       pgtype.Text
	RowsAffected pgtype.Int4
	Details      []byte
	ImportID     pgtype.UUID
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (AuditLog, error) {
	row := q.db.QueryRow(ctx, insertAuditLog,
		arg.ID,
		arg.Action,
		arg.Severity,
		arg.EntityType,
		arg.ParceiroID,
		arg.IpAddress,
		arg.UserAgent,
		arg.RowKey,
		arg.RowsAffected,
		arg.Details,
		arg.ImportID,
	)
	var i AuditLog
	err := row.Scan(
		&i.ID,
		&i.Action,
		&i.Severity,
		&i.EntityType,
		&i.ParceiroID,
		&i.IpAddress,
		&i.UserAgent,
		&i.RowKey,
		&i.RowsAffected,
		&i.Details,
		&i.ImportID,
		&i.CreatedAt,
	)
	return i, err
}

const archiveOldAuditLogs = `-- name: ArchiveOldAuditLogs :execrows
WITH moved AS (
    DELETE FROM audit_log
    WHERE id IN (
        SELECT id FROM audit_log
        WHERE created_at < now() - make_interval(days => $1::int)
        ORDER BY created_at
        LIMIT $2::int
    )
    RETURNING id, action, severity, entity_type, parceiro_id, ip_address, user_agent,
        row_key, rows_affected, details, import_id, created_at
)
INSERT INTO audit_log_archive (
    id, action, severity, entity_type, parceiro_id, ip_address, user_agent,
    row_key, rows_affected, details, import_id, created_at
)
SELECT id, action, severity, entity_type, parceiro_id, ip_address, user_agent,
    row_key, rows_affected, details, import_id, created_at
FROM moved
`

type ArchiveOldAuditLogsParams struct {
	Days      int32
	BatchSize int32
}

// ArchiveOldAuditLogs moves one batch of entries older than Days into
// audit_log_archive and returns how many rows moved.
func (q *Queries) ArchiveOldAuditLogs(ctx context.Context, arg ArchiveOldAuditLogsParams) (int64, error) {
	result, err := q.db.Exec(ctx, archiveOldAuditLogs, arg.Days, arg.BatchSize)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const purgeOldArchives = `-- name: PurgeOldArchives :execrows
DELETE FROM audit_log_archive
WHERE created_at < now() - make_interval(years => $1::int)
`

func (q *Queries) PurgeOldArchives(ctx context.Context, years int32) (int64, error) {
	result, err := q.db.Exec(ctx, purgeOldArchives, years)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
