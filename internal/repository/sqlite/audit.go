package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

var _ repository.AuditRepository = (*AuditStore)(nil)

// AuditStore is append-only apart from Purge.
type AuditStore struct {
	conn *sql.DB
}

func (s *AuditStore) Insert(ctx context.Context, entry *model.AuditLog) error {
	entry.ID = xid.New().String()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, action, entity_type, entity_id, details, ip_address, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, nullString(entry.UserID), entry.Action, entry.EntityType, entry.EntityID,
		string(entry.Details), entry.IPAddress, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting audit entry %s: %w", entry.Action, err)
	}
	return nil
}

// List returns entries newest first. Since and Until are inclusive bounds.
func (s *AuditStore) List(ctx context.Context, f repository.AuditFilter) ([]model.AuditLog, int, error) {
	where := []string{"1 = 1"}
	args := []any{}
	if f.Action != "" {
		where = append(where, "a.action = ?")
		args = append(args, f.Action)
	}
	if f.UserID != "" {
		where = append(where, "a.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.EntityType != "" {
		where = append(where, "a.entity_type = ?")
		args = append(args, f.EntityType)
	}
	// julianday normalizes both sides so fractional seconds compare correctly.
	if f.Since != nil {
		where = append(where, "julianday(a.created_at) >= julianday(?)")
		args = append(args, f.Since.UTC())
	}
	if f.Until != nil {
		where = append(where, "julianday(a.created_at) <= julianday(?)")
		args = append(args, f.Until.UTC())
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_logs a WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting audit entries: %w", err)
	}

	query := `SELECT a.id, a.user_id, COALESCE(u.username, ''), a.action, a.entity_type,
	                 a.entity_id, a.details, a.ip_address, a.created_at
	          FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id
	          WHERE ` + cond + ` ORDER BY a.created_at DESC, a.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, max(f.Offset, 0))
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditLog, 0)
	for rows.Next() {
		var (
			e       model.AuditLog
			userID  sql.NullString
			details string
		)
		if err := rows.Scan(&e.ID, &userID, &e.Username, &e.Action, &e.EntityType,
			&e.EntityID, &details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning audit row: %w", err)
		}
		e.UserID = stringPtr(userID)
		if details != "" {
			e.Details = json.RawMessage(details)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating audit entries: %w", err)
	}
	return entries, total, nil
}

// Purge deletes entries strictly older than before.
func (s *AuditStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM audit_logs WHERE julianday(created_at) < julianday(?)`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging audit entries: %w", err)
	}
	return result.RowsAffected()
}
