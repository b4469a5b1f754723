package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

var _ repository.TagRepository = (*TagStore)(nil)

// TagStore exposes tags as their own resource. Tags are created implicitly
// when a snippet is saved, see replaceTags.
type TagStore struct {
	conn *sql.DB
}

func (s *TagStore) List(ctx context.Context, ownerID string) ([]model.Tag, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if ownerID == "" {
		rows, err = s.conn.QueryContext(ctx,
			`SELECT t.id, t.name, COUNT(st.snippet_id)
			 FROM tags t LEFT JOIN snippet_tags st ON st.tag_id = t.id
			 GROUP BY t.id, t.name
			 ORDER BY t.name`)
	} else {
		rows, err = s.conn.QueryContext(ctx,
			`SELECT t.id, t.name, COUNT(*)
			 FROM tags t
			 JOIN snippet_tags st ON st.tag_id = t.id
			 JOIN snippets s ON s.id = st.snippet_id
			 WHERE s.user_id = ?
			 GROUP BY t.id, t.name
			 ORDER BY t.name`, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tags: %w", err)
	}
	defer rows.Close()

	tags := make([]model.Tag, 0)
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.SnippetCount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *TagStore) GetByID(ctx context.Context, id string) (*model.Tag, error) {
	var t model.Tag
	err := s.conn.QueryRowContext(ctx,
		`SELECT t.id, t.name, (SELECT COUNT(*) FROM snippet_tags st WHERE st.tag_id = t.id)
		 FROM tags t WHERE t.id = ?`, id).Scan(&t.ID, &t.Name, &t.SnippetCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("tag", id)
		}
		return nil, fmt.Errorf("sqlite: getting tag %s: %w", id, err)
	}
	return &t, nil
}

// Delete detaches the tag from every snippet and removes it.
func (s *TagStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting tag %s: %w", id, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("tag", id) })
}

// DeleteOrphans removes tags no snippet references any more.
func (s *TagStore) DeleteOrphans(ctx context.Context) (int64, error) {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM tags WHERE NOT EXISTS (SELECT 1 FROM snippet_tags st WHERE st.tag_id = tags.id)`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting orphan tags: %w", err)
	}
	return result.RowsAffected()
}
