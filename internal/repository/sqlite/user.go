package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

// UserStore reads and writes the users table.
type UserStore struct {
	conn *sql.DB
}

const userColumns = `id, username, email, password_hash, role, active, github_id, avatar_url,
	github_token, gitea_url, gitea_token, created_at, updated_at, last_login_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		githubID  sql.NullInt64
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Active,
		&githubID, &u.AvatarURL, &u.GitHubToken, &u.GiteaURL, &u.GiteaToken,
		&u.CreatedAt, &u.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	u.LastLoginAt = timePtr(lastLogin)
	u.HasGitHubToken = u.GitHubToken != ""
	u.HasGiteaToken = u.GiteaToken != ""
	return &u, nil
}

// Create inserts a new user. The ID and timestamps are set on the passed struct.
// A duplicate username, email or GitHub account returns apperror.ErrConflict.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	var githubID sql.NullInt64
	if user.GitHubID != nil {
		githubID = sql.NullInt64{Int64: *user.GitHubID, Valid: true}
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, active, github_id,
			avatar_url, github_token, gitea_url, gitea_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.Active,
		githubID, user.AvatarURL, user.GitHubToken, user.GiteaURL, user.GiteaToken,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return conflictForUser(err, user)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}
	return nil
}

// conflictForUser names the column that collided so the API can point the
// client at the right form field.
func conflictForUser(err error, user *model.User) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		e := apperror.Conflict("email", user.Email)
		e.Field = "email"
		return e
	case strings.Contains(msg, "users.github_id"):
		return apperror.Conflict("github account", "an existing user")
	default:
		e := apperror.Conflict("username", user.Username)
		e.Field = "username"
		return e
	}
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetByLogin looks a user up by username or email, case-insensitively.
func (s *UserStore) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	u, err := scanUser(s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ? LIMIT 1`,
		login, login))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", login)
		}
		return nil, fmt.Errorf("sqlite: getting user by login: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	u, err := scanUser(s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
		}
		return nil, fmt.Errorf("sqlite: getting user by github_id %d: %w", githubID, err)
	}
	return u, nil
}

// Update saves every mutable profile column. The password hash has its own
// method so profile edits can never clobber it.
func (s *UserStore) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = now()

	var githubID sql.NullInt64
	if user.GitHubID != nil {
		githubID = sql.NullInt64{Int64: *user.GitHubID, Valid: true}
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE users
		 SET username = ?, email = ?, role = ?, active = ?, github_id = ?, avatar_url = ?,
		     github_token = ?, gitea_url = ?, gitea_token = ?, updated_at = ?
		 WHERE id = ?`,
		user.Username, user.Email, user.Role, user.Active, githubID, user.AvatarURL,
		user.GitHubToken, user.GiteaURL, user.GiteaToken, user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return conflictForUser(err, user)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	user.HasGitHubToken = user.GitHubToken != ""
	user.HasGiteaToken = user.GiteaToken != ""
	return checkAffected(result, func() error { return apperror.NotFound("user", user.ID) })
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, hash string) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: updating password for %s: %w", id, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("user", id) })
}

func (s *UserStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: touching login for %s: %w", id, err)
	}
	return nil
}

// Delete removes the user. Their snippets, folders, memberships and
// favorites go with them through ON DELETE CASCADE.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("user", id) })
}

// List returns one page of users plus the total count for the filter.
func (s *UserStore) List(ctx context.Context, f repository.UserFilter) ([]model.User, int, error) {
	where := []string{"1 = 1"}
	args := []any{}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, `(username LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\')`)
		p := likePattern(q)
		args = append(args, p, p)
	}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + cond + ` ORDER BY created_at ASC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, total, nil
}

func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting users: %w", err)
	}
	return n, nil
}

func (s *UserStore) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ? AND active = 1`, model.RoleAdmin).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting admins: %w", err)
	}
	return n, nil
}
