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

var _ repository.FolderRepository = (*FolderStore)(nil)

type FolderStore struct {
	conn *sql.DB
}

const folderSelect = `
	SELECT f.id, f.user_id, f.parent_id, f.name, f.created_at, f.updated_at,
	       (SELECT COUNT(*) FROM snippets s WHERE s.folder_id = f.id)
	FROM folders f`

func scanFolder(row rowScanner) (*model.Folder, error) {
	var (
		f      model.Folder
		parent sql.NullString
	)
	if err := row.Scan(&f.ID, &f.UserID, &parent, &f.Name, &f.CreatedAt, &f.UpdatedAt, &f.SnippetCount); err != nil {
		return nil, err
	}
	f.ParentID = stringPtr(parent)
	return &f, nil
}

func (s *FolderStore) Create(ctx context.Context, folder *model.Folder) error {
	folder.ID = xid.New().String()
	folder.CreatedAt = now()
	folder.UpdatedAt = folder.CreatedAt

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO folders (id, user_id, parent_id, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		folder.ID, folder.UserID, nullString(folder.ParentID), folder.Name,
		folder.CreatedAt, folder.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating folder %q: %w", folder.Name, err)
	}
	return nil
}

func (s *FolderStore) GetByID(ctx context.Context, id string) (*model.Folder, error) {
	f, err := scanFolder(s.conn.QueryRowContext(ctx, folderSelect+` WHERE f.id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("folder", id)
		}
		return nil, fmt.Errorf("sqlite: getting folder %s: %w", id, err)
	}
	return f, nil
}

// ListByUser returns the user's folders flat, ordered by name. The client
// assembles the tree from ParentID.
func (s *FolderStore) ListByUser(ctx context.Context, userID string) ([]model.Folder, error) {
	rows, err := s.conn.QueryContext(ctx,
		folderSelect+` WHERE f.user_id = ? ORDER BY f.name COLLATE NOCASE`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing folders: %w", err)
	}
	defer rows.Close()

	folders := make([]model.Folder, 0)
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning folder row: %w", err)
		}
		folders = append(folders, *f)
	}
	return folders, rows.Err()
}

func (s *FolderStore) Update(ctx context.Context, folder *model.Folder) error {
	folder.UpdatedAt = now()
	result, err := s.conn.ExecContext(ctx,
		`UPDATE folders SET name = ?, parent_id = ?, updated_at = ? WHERE id = ?`,
		folder.Name, nullString(folder.ParentID), folder.UpdatedAt, folder.ID)
	if err != nil {
		return fmt.Errorf("sqlite: updating folder %s: %w", folder.ID, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("folder", folder.ID) })
}

// Delete removes the folder and, through the parent_id cascade, every
// descendant. Snippets inside fall back to having no folder.
func (s *FolderStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting folder %s: %w", id, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("folder", id) })
}
