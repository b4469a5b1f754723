package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

var _ repository.CategoryRepository = (*CategoryStore)(nil)

type CategoryStore struct {
	conn *sql.DB
}

const categorySelect = `
	SELECT c.id, c.name, c.color, c.description, c.created_at, c.updated_at,
	       (SELECT COUNT(*) FROM snippets s WHERE s.category_id = c.id)
	FROM categories c`

func scanCategory(row rowScanner) (*model.Category, error) {
	var c model.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Color, &c.Description, &c.CreatedAt, &c.UpdatedAt, &c.SnippetCount); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CategoryStore) Create(ctx context.Context, c *model.Category) error {
	c.ID = xid.New().String()
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO categories (id, name, color, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Color, c.Description, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			e := apperror.Conflict("category", c.Name)
			e.Field = "name"
			return e
		}
		return fmt.Errorf("sqlite: creating category %q: %w", c.Name, err)
	}
	return nil
}

func (s *CategoryStore) GetByID(ctx context.Context, id string) (*model.Category, error) {
	c, err := scanCategory(s.conn.QueryRowContext(ctx, categorySelect+` WHERE c.id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("category", id)
		}
		return nil, fmt.Errorf("sqlite: getting category %s: %w", id, err)
	}
	return c, nil
}

// GetByName matches case-insensitively through the column collation.
func (s *CategoryStore) GetByName(ctx context.Context, name string) (*model.Category, error) {
	c, err := scanCategory(s.conn.QueryRowContext(ctx, categorySelect+` WHERE c.name = ?`, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("category", name)
		}
		return nil, fmt.Errorf("sqlite: getting category %q: %w", name, err)
	}
	return c, nil
}

func (s *CategoryStore) List(ctx context.Context) ([]model.Category, error) {
	rows, err := s.conn.QueryContext(ctx, categorySelect+` ORDER BY c.name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing categories: %w", err)
	}
	defer rows.Close()

	categories := make([]model.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning category row: %w", err)
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

func (s *CategoryStore) Update(ctx context.Context, c *model.Category) error {
	c.UpdatedAt = now()
	result, err := s.conn.ExecContext(ctx,
		`UPDATE categories SET name = ?, color = ?, description = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Color, c.Description, c.UpdatedAt, c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			e := apperror.Conflict("category", c.Name)
			e.Field = "name"
			return e
		}
		return fmt.Errorf("sqlite: updating category %s: %w", c.ID, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("category", c.ID) })
}

// Delete leaves the category's snippets uncategorized (ON DELETE SET NULL).
func (s *CategoryStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting category %s: %w", id, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("category", id) })
}
