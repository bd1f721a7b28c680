package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	db "github.com/paulodiramos/tvdefleetonline-sub002/internal/database"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionExport       AuditAction = "export"
	ActionImportCommit AuditAction = "import_commit"
	ActionImportReplay AuditAction = "import_replay"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID           string         `json:"id"`
	Action       AuditAction    `json:"action"`
	Severity     AuditSeverity  `json:"severity"`
	EntityType   string         `json:"entityType"`
	ParceiroID   string         `json:"parceiroId,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	RowKey       string         `json:"rowKey,omitempty"`
	RowsAffected int            `json:"rowsAffected,omitempty"`
	ImportID     string         `json:"importId,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// AuditLogParams contains parameters for creating an audit log entry.
// Partner, IP address and user agent come from the context.
type AuditLogParams struct {
	Action       AuditAction
	EntityType   string
	RowKey       string
	RowsAffected int
	ImportID     string
	Details      map[string]any
}

func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionImportCommit:
		return SeverityHigh
	case ActionExport:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// LogAudit writes an audit entry through q, so a commit can record its entry
// inside its own transaction.
func (s *Service) LogAudit(ctx context.Context, q *db.Queries, params AuditLogParams) (*AuditEntry, error) {
	var details []byte
	if params.Details != nil {
		var err error
		if details, err = json.Marshal(params.Details); err != nil {
			details = nil
		}
	}

	row, err := q.InsertAuditLog(ctx, db.InsertAuditLogParams{
		ID:           pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Action:       string(params.Action),
		Severity:     string(determineSeverity(params.Action)),
		EntityType:   params.EntityType,
		ParceiroID:   ToPgText(PartnerFromContext(ctx)),
		IpAddress:    ToPgText(GetIPAddressFromContext(ctx)),
		UserAgent:    ToPgText(GetUserAgentFromContext(ctx)),
		RowKey:       ToPgText(params.RowKey),
		RowsAffected: pgtype.Int4{Int32: int32(params.RowsAffected), Valid: params.RowsAffected > 0},
		Details:      details,
		ImportID:     toPgUUID(params.ImportID),
	})
	if err != nil {
		return nil, err
	}
	return dbAuditLogToEntry(row), nil
}

func toPgUUID(s string) pgtype.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgUUIDString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

func dbAuditLogToEntry(row db.AuditLog) *AuditEntry {
	entry := &AuditEntry{
		ID:           pgUUIDString(row.ID),
		Action:       AuditAction(row.Action),
		Severity:     AuditSeverity(row.Severity),
		EntityType:   row.EntityType,
		ParceiroID:   row.ParceiroID.String,
		IPAddress:    row.IpAddress.String,
		UserAgent:    row.UserAgent.String,
		RowKey:       row.RowKey.String,
		RowsAffected: int(row.RowsAffected.Int32),
		ImportID:     pgUUIDString(row.ImportID),
		CreatedAt:    row.CreatedAt.Time,
	}
	if len(row.Details) > 0 {
		_ = json.Unmarshal(row.Details, &entry.Details)
	}
	return entry
}
