package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

var (
	_ repository.TemplateRepository = (*TemplateStore)(nil)
	_ repository.SettingsRepository = (*SettingsStore)(nil)
)

// TemplateStore holds admin customizations of email templates. Keys with
// no row fall back to the built-in defaults in the mail package.
type TemplateStore struct {
	conn *sql.DB
}

func (s *TemplateStore) List(ctx context.Context) ([]model.EmailTemplate, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT key, subject, body, description, updated_at FROM email_templates ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing email templates: %w", err)
	}
	defer rows.Close()

	templates := make([]model.EmailTemplate, 0)
	for rows.Next() {
		var t model.EmailTemplate
		if err := rows.Scan(&t.Key, &t.Subject, &t.Body, &t.Description, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning email template row: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *TemplateStore) Get(ctx context.Context, key string) (*model.EmailTemplate, error) {
	var t model.EmailTemplate
	err := s.conn.QueryRowContext(ctx,
		`SELECT key, subject, body, description, updated_at FROM email_templates WHERE key = ?`, key,
	).Scan(&t.Key, &t.Subject, &t.Body, &t.Description, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("email template", key)
		}
		return nil, fmt.Errorf("sqlite: getting email template %s: %w", key, err)
	}
	return &t, nil
}

func (s *TemplateStore) Upsert(ctx context.Context, t *model.EmailTemplate) error {
	t.UpdatedAt = now()
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO email_templates (key, subject, body, description, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   subject = excluded.subject, body = excluded.body,
		   description = excluded.description, updated_at = excluded.updated_at`,
		t.Key, t.Subject, t.Body, t.Description, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: saving email template %s: %w", t.Key, err)
	}
	return nil
}

// Delete drops the customization; NotFound when the key was never saved.
func (s *TemplateStore) Delete(ctx context.Context, key string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM email_templates WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("sqlite: deleting email template %s: %w", key, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("email template", key) })
}

// SettingsStore persists SystemSettings as one JSON document in row id=1.
// New fields pick up their defaults because the document is decoded on
// top of model.DefaultSettings.
type SettingsStore struct {
	conn *sql.DB
}

func (s *SettingsStore) Get(ctx context.Context) (*model.SystemSettings, error) {
	settings := model.DefaultSettings()

	var data string
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM system_settings WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return &settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading settings: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, fmt.Errorf("sqlite: decoding settings: %w", err)
	}
	return &settings, nil
}

func (s *SettingsStore) Save(ctx context.Context, settings *model.SystemSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("sqlite: encoding settings: %w", err)
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO system_settings (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), now())
	if err != nil {
		return fmt.Errorf("sqlite: saving settings: %w", err)
	}
	return nil
}
