package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type ImportCommit struct {
	ID             pgtype.UUID
	Tipo           string
	IdempotencyKey pgtype.Text
	FileName       string
	Atualizados    int32
	Erros          []byte
	ParceiroID     pgtype.Text
	CreatedAt      pgtype.Timestamptz
}

type AuditLog struct {
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
	CreatedAt    pgtype.Timestamptz
}
