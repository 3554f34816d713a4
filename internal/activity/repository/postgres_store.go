package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/calybase/calybase-backend/internal/activity/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          UUID PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	session_id  TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	user_email  TEXT NOT NULL,
	action      TEXT NOT NULL,
	category    TEXT NOT NULL,
	details     JSONB NOT NULL DEFAULT '{}',
	metadata    JSONB NOT NULL DEFAULT '{}',
	version     TEXT NOT NULL,
	platform    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_log_ts_idx ON audit_log (ts DESC);
`

const insertEntry = `
	INSERT INTO audit_log (
		id, ts, session_id, user_id, user_email, action, category,
		details, metadata, version, platform
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

// PostgresStore keeps audit entries in the audit_log table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the audit_log table and its index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create audit_log schema: %w", err)
	}
	return nil
}

// Write inserts the batch in a single transaction.
func (s *PostgresStore) Write(ctx context.Context, entries []domain.Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertEntry)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		details, jerr := marshalJSONB(e.Details)
		if jerr != nil {
			return fmt.Errorf("encode details: %w", jerr)
		}
		metadata, jerr := marshalJSONB(e.Metadata)
		if jerr != nil {
			return fmt.Errorf("encode metadata: %w", jerr)
		}

		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}

		if _, err = stmt.ExecContext(ctx,
			id, e.Timestamp.UTC(), e.SessionID, e.UserID, e.UserEmail, e.Action, e.Category,
			details, metadata, e.System.Version, e.System.Platform,
		); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

// Query returns entries newest first, bounded by q.
func (s *PostgresStore) Query(ctx context.Context, q domain.Query) ([]domain.Entry, error) {
	var (
		conds []string
		args  []interface{}
	)
	if !q.From.IsZero() {
		args = append(args, q.From)
		conds = append(conds, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		conds = append(conds, fmt.Sprintf("ts <= $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, ts, session_id, user_id, user_email, action, category,
		details, metadata, version, platform FROM audit_log`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY ts DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var (
			e                 domain.Entry
			details, metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.SessionID, &e.UserID, &e.UserEmail,
			&e.Action, &e.Category, &details, &metadata, &e.System.Version, &e.System.Platform); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("decode details of %s: %w", e.ID, err)
		}
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}

func marshalJSONB(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}
