// Package core provides the fleet data exchange logic.
//
// # Entity Registry
//
// Entities are registered at init time by internal/core/entities using
// [Register]. Each [EntityDefinition] lists its fields in catalog order,
// names the business key (NIF for drivers, matrícula for vehicles) and the
// fields that describe a record in a preview.
//
// # Export
//
// [Service.Export] writes a UTF-8 CSV with a BOM and a header of field
// labels; [Service.ExportAll] wraps one CSV per entity in a ZIP. Values go
// through [FormatValue] so exported files re-import without differences.
//
// # Import Reconciliation
//
// Imports only update existing records:
//
//  1. [Service.PreviewImport] decodes the file (CSV in UTF-8 or
//     Windows-1252, or XLSX), matches header cells to fields and diffs every
//     non-empty cell against the stored record. Nothing is written.
//  2. [Service.CommitImport] recomputes the same plan inside a transaction
//     and applies one UPDATE per record under a savepoint.
//
// Rows with an empty, repeated or unknown key, or an unparseable value, are
// ignored and explained in the result's erros list.
//
// # Error Handling
//
// Technical errors are mapped to Portuguese messages with support codes by
// [MapError].
//
// # Audit Logging
//
// Exports (low) and commits (high) are recorded in audit_log. The archive
// scheduler moves old entries to audit_log_archive on a cron schedule.
package core
