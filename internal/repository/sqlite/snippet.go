package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/xid"
	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

var _ repository.SnippetRepository = (*SnippetStore)(nil)

// SnippetStore reads and writes snippets together with their tags,
// versions and favorites.
type SnippetStore struct {
	conn *sql.DB
}

// snippetSelect joins the author and category so list and detail views
// come back in one round trip. The favorite flag is computed for the
// viewer bound to the first placeholder.
const snippetSelect = `
	SELECT s.id, s.user_id, s.title, s.description, s.code, s.language,
	       s.category_id, s.folder_id, s.team_id, s.visibility, s.status,
	       s.rejection_reason, s.has_executable_code, s.version_major, s.version_minor,
	       s.view_count, s.created_at, s.updated_at,
	       COALESCE(u.username, ''), COALESCE(c.name, ''),
	       EXISTS (SELECT 1 FROM favorites f WHERE f.snippet_id = s.id AND f.user_id = ?)
	FROM snippets s
	LEFT JOIN users u ON u.id = s.user_id
	LEFT JOIN categories c ON c.id = s.category_id`

func scanSnippet(row rowScanner) (*model.Snippet, error) {
	var (
		s                          model.Snippet
		categoryID, folderID, team sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.Title, &s.Description, &s.Code, &s.Language,
		&categoryID, &folderID, &team, &s.Visibility, &s.Status,
		&s.RejectionReason, &s.HasExecutableCode, &s.VersionMajor, &s.VersionMinor,
		&s.ViewCount, &s.CreatedAt, &s.UpdatedAt,
		&s.AuthorName, &s.CategoryName, &s.IsFavorite,
	)
	if err != nil {
		return nil, err
	}
	s.CategoryID = stringPtr(categoryID)
	s.FolderID = stringPtr(folderID)
	s.TeamID = stringPtr(team)
	s.Tags = []string{}
	return &s, nil
}

// Create inserts the snippet row, links its tags (creating missing tags)
// and writes the first version row, all in one transaction.
func (s *SnippetStore) Create(ctx context.Context, snippet *model.Snippet, version *model.SnippetVersion) error {
	snippet.ID = xid.New().String()
	snippet.CreatedAt = now()
	snippet.UpdatedAt = snippet.CreatedAt

	return withTx(ctx, s.conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snippets (id, user_id, title, description, code, language,
				category_id, folder_id, team_id, visibility, status, rejection_reason,
				has_executable_code, version_major, version_minor, view_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			snippet.ID, snippet.UserID, snippet.Title, snippet.Description, snippet.Code, snippet.Language,
			nullString(snippet.CategoryID), nullString(snippet.FolderID), nullString(snippet.TeamID),
			snippet.Visibility, snippet.Status, snippet.RejectionReason,
			snippet.HasExecutableCode, snippet.VersionMajor, snippet.VersionMinor,
			snippet.CreatedAt, snippet.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating snippet: %w", err)
		}

		if err := replaceTags(ctx, tx, snippet.ID, snippet.Tags); err != nil {
			return err
		}

		if version != nil {
			version.SnippetID = snippet.ID
			if err := insertVersion(ctx, tx, version); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves a single snippet with tags. viewerID only drives the
// IsFavorite flag; access control happens in the service layer.
func (s *SnippetStore) GetByID(ctx context.Context, id, viewerID string) (*model.Snippet, error) {
	snippet, err := scanSnippet(s.conn.QueryRowContext(ctx,
		snippetSelect+` WHERE s.id = ?`, viewerID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}

	tags, err := loadTags(ctx, s.conn, []string{snippet.ID})
	if err != nil {
		return nil, err
	}
	if t, ok := tags[snippet.ID]; ok {
		snippet.Tags = t
	}
	return snippet, nil
}

// List applies the filter and returns one page plus the unpaged total.
func (s *SnippetStore) List(ctx context.Context, f repository.SnippetFilter) ([]model.Snippet, int, error) {
	cond, args := snippetWhere(f)

	var total int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snippets s WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting snippets: %w", err)
	}

	query := snippetSelect + ` WHERE ` + cond + ` ORDER BY ` + snippetOrder(f.Sort)
	queryArgs := append([]any{f.ViewerID}, args...)
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		queryArgs = append(queryArgs, f.Limit, max(f.Offset, 0))
	}

	rows, err := s.conn.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing snippets: %w", err)
	}

	snippets := make([]model.Snippet, 0)
	ids := make([]string, 0)
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, *sn)
		ids = append(ids, sn.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}
	// Close before the tag query: in-memory databases run on one connection.
	rows.Close()

	tags, err := loadTags(ctx, s.conn, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range snippets {
		if t, ok := tags[snippets[i].ID]; ok {
			snippets[i].Tags = t
		}
	}
	return snippets, total, nil
}

// snippetWhere builds the WHERE clause (without the keyword) for f.
func snippetWhere(f repository.SnippetFilter) (string, []any) {
	where := []string{}
	args := []any{}

	if !f.ViewerIsAdmin {
		visible := `(s.visibility = 'PUBLIC' AND s.status = 'APPROVED')`
		if f.ViewerID != "" {
			visible = `(s.user_id = ? OR ` + visible + ` OR (s.visibility = 'TEAM' AND s.status = 'APPROVED'
				AND s.team_id IN (SELECT team_id FROM team_members WHERE user_id = ?)))`
			args = append(args, f.ViewerID, f.ViewerID)
		}
		where = append(where, visible)
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		// instr over fold() instead of LIKE: case-insensitive for any
		// script, and no wildcards to escape.
		q = foldCase(q)
		where = append(where, `(instr(fold(s.title), ?) > 0 OR instr(fold(s.description), ?) > 0
			OR instr(fold(s.code), ?) > 0 OR EXISTS (
				SELECT 1 FROM snippet_tags st JOIN tags t ON t.id = st.tag_id
				WHERE st.snippet_id = s.id AND instr(fold(t.name), ?) > 0))`)
		args = append(args, q, q, q, q)
	}
	if f.Language != "" {
		where = append(where, "s.language = ?")
		args = append(args, f.Language)
	}
	if f.CategoryID != "" {
		where = append(where, "s.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.Tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM snippet_tags st JOIN tags t ON t.id = st.tag_id
			WHERE st.snippet_id = s.id AND t.name = ?)`)
		args = append(args, strings.ToLower(f.Tag))
	}
	if f.RootFolder {
		where = append(where, "s.folder_id IS NULL")
	} else if f.FolderID != "" {
		where = append(where, "s.folder_id = ?")
		args = append(args, f.FolderID)
	}
	if f.TeamID != "" {
		where = append(where, "s.team_id = ?")
		args = append(args, f.TeamID)
	}
	if f.OwnerID != "" {
		where = append(where, "s.user_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		where = append(where, "s.status = ?")
		args = append(args, f.Status)
	}
	if f.FavoritesOnly {
		where = append(where, `EXISTS (SELECT 1 FROM favorites fv WHERE fv.snippet_id = s.id AND fv.user_id = ?)`)
		args = append(args, f.ViewerID)
	}

	if len(where) == 0 {
		return "1 = 1", args
	}
	return strings.Join(where, " AND "), args
}

func snippetOrder(sort string) string {
	switch sort {
	case repository.SortCreated:
		return "s.created_at DESC, s.id DESC"
	case repository.SortTitle:
		return "s.title COLLATE NOCASE ASC, s.id DESC"
	case repository.SortViews:
		return "s.view_count DESC, s.updated_at DESC"
	default:
		return "s.updated_at DESC, s.id DESC"
	}
}

// Update saves every editable column, replaces tags and optionally appends
// a version row, all in one transaction.
func (s *SnippetStore) Update(ctx context.Context, snippet *model.Snippet, version *model.SnippetVersion) error {
	snippet.UpdatedAt = now()

	return withTx(ctx, s.conn, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE snippets
			 SET title = ?, description = ?, code = ?, language = ?, category_id = ?,
			     folder_id = ?, team_id = ?, visibility = ?, status = ?, rejection_reason = ?,
			     has_executable_code = ?, version_major = ?, version_minor = ?, updated_at = ?
			 WHERE id = ?`,
			snippet.Title, snippet.Description, snippet.Code, snippet.Language,
			nullString(snippet.CategoryID), nullString(snippet.FolderID), nullString(snippet.TeamID),
			snippet.Visibility, snippet.Status, snippet.RejectionReason,
			snippet.HasExecutableCode, snippet.VersionMajor, snippet.VersionMinor, snippet.UpdatedAt,
			snippet.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
		}
		if err := checkAffected(result, func() error { return apperror.NotFound("snippet", snippet.ID) }); err != nil {
			return err
		}

		if err := replaceTags(ctx, tx, snippet.ID, snippet.Tags); err != nil {
			return err
		}

		if version != nil {
			version.SnippetID = snippet.ID
			if err := insertVersion(ctx, tx, version); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a snippet; versions, tag links and favorites cascade.
func (s *SnippetStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("snippet", id) })
}

// SetStatus is the approval workflow's only write. It does not touch
// updated_at so moderation does not reorder the owner's list.
func (s *SnippetStore) SetStatus(ctx context.Context, id string, status model.Status, reason string) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE snippets SET status = ?, rejection_reason = ? WHERE id = ?`,
		status, reason, id)
	if err != nil {
		return fmt.Errorf("sqlite: setting status on snippet %s: %w", id, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("snippet", id) })
}

func (s *SnippetStore) IncrementViews(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE snippets SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing views on %s: %w", id, err)
	}
	return nil
}

// ToggleFavorite flips the favorite flag and returns the new state.
func (s *SnippetStore) ToggleFavorite(ctx context.Context, userID, snippetID string) (bool, error) {
	var favorite bool
	err := withTx(ctx, s.conn, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM favorites WHERE user_id = ? AND snippet_id = ?`, userID, snippetID)
		if err != nil {
			return fmt.Errorf("sqlite: removing favorite: %w", err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			favorite = false
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO favorites (user_id, snippet_id, created_at) VALUES (?, ?, ?)`,
			userID, snippetID, now()); err != nil {
			return fmt.Errorf("sqlite: adding favorite: %w", err)
		}
		favorite = true
		return nil
	})
	return favorite, err
}

// =========================================================================
// VERSIONS
// =========================================================================

func insertVersion(ctx context.Context, q queryer, v *model.SnippetVersion) error {
	v.ID = xid.New().String()
	v.CreatedAt = now()
	_, err := q.ExecContext(ctx,
		`INSERT INTO snippet_versions (id, snippet_id, major, minor, title, code, change_note, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SnippetID, v.Major, v.Minor, v.Title, v.Code, v.ChangeNote, v.CreatedBy, v.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("snippet version", v.Label())
		}
		return fmt.Errorf("sqlite: inserting version %s of %s: %w", v.Label(), v.SnippetID, err)
	}
	return nil
}

// ListVersions returns the history newest first.
func (s *SnippetStore) ListVersions(ctx context.Context, snippetID string) ([]model.SnippetVersion, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, snippet_id, major, minor, title, code, change_note, created_by, created_at
		 FROM snippet_versions WHERE snippet_id = ?
		 ORDER BY major DESC, minor DESC`, snippetID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing versions of %s: %w", snippetID, err)
	}
	defer rows.Close()

	versions := make([]model.SnippetVersion, 0)
	for rows.Next() {
		var v model.SnippetVersion
		if err := rows.Scan(&v.ID, &v.SnippetID, &v.Major, &v.Minor, &v.Title, &v.Code,
			&v.ChangeNote, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning version row: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating versions: %w", err)
	}
	return versions, nil
}

func (s *SnippetStore) GetVersion(ctx context.Context, snippetID, versionID string) (*model.SnippetVersion, error) {
	var v model.SnippetVersion
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, snippet_id, major, minor, title, code, change_note, created_by, created_at
		 FROM snippet_versions WHERE snippet_id = ? AND id = ?`, snippetID, versionID,
	).Scan(&v.ID, &v.SnippetID, &v.Major, &v.Minor, &v.Title, &v.Code, &v.ChangeNote, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("snippet version", versionID)
		}
		return nil, fmt.Errorf("sqlite: getting version %s: %w", versionID, err)
	}
	return &v, nil
}

// =========================================================================
// TAGS
// =========================================================================

// replaceTags makes the snippet's tag set exactly names, creating tags that
// do not exist yet. Names are expected to be normalized by the caller.
func replaceTags(ctx context.Context, tx *sql.Tx, snippetID string, names []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM snippet_tags WHERE snippet_id = ?`, snippetID); err != nil {
		return fmt.Errorf("sqlite: clearing tags of %s: %w", snippetID, err)
	}
	for _, name := range names {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
			xid.New().String(), name); err != nil {
			return fmt.Errorf("sqlite: ensuring tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO snippet_tags (snippet_id, tag_id)
			 SELECT ?, id FROM tags WHERE name = ?`, snippetID, name); err != nil {
			return fmt.Errorf("sqlite: linking tag %q: %w", name, err)
		}
	}
	return nil
}

// tagBatch caps the ids bound in one IN (...) list. SQLite refuses
// statements with more than 32766 variables.
const tagBatch = 500

// loadTags returns tag names keyed by snippet id, sorted by name.
func loadTags(ctx context.Context, q queryer, snippetIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(snippetIDs))
	for start := 0; start < len(snippetIDs); start += tagBatch {
		end := min(start+tagBatch, len(snippetIDs))
		if err := loadTagBatch(ctx, q, snippetIDs[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loadTagBatch(ctx context.Context, q queryer, ids []string, out map[string][]string) error {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx,
		`SELECT st.snippet_id, t.name FROM snippet_tags st
		 JOIN tags t ON t.id = st.tag_id
		 WHERE st.snippet_id IN (`+placeholders(len(args))+`)
		 ORDER BY t.name`, args...)
	if err != nil {
		return fmt.Errorf("sqlite: loading tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		out[id] = append(out[id], name)
	}
	return rows.Err()
}
