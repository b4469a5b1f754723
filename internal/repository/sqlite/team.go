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

var _ repository.TeamRepository = (*TeamStore)(nil)

type TeamStore struct {
	conn *sql.DB
}

const teamSelect = `
	SELECT t.id, t.name, t.description, t.owner_id, t.created_at, t.updated_at,
	       (SELECT COUNT(*) FROM team_members m WHERE m.team_id = t.id)
	FROM teams t`

func scanTeam(row rowScanner) (*model.Team, error) {
	var t model.Team
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt, &t.MemberCount); err != nil {
		return nil, err
	}
	return &t, nil
}

func teamConflict(name string) error {
	e := apperror.Conflict("team", name)
	e.Field = "name"
	return e
}

// Create inserts the team and makes OwnerID its first OWNER member.
func (s *TeamStore) Create(ctx context.Context, team *model.Team) error {
	team.ID = xid.New().String()
	team.CreatedAt = now()
	team.UpdatedAt = team.CreatedAt

	err := withTx(ctx, s.conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO teams (id, name, description, owner_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			team.ID, team.Name, team.Description, team.OwnerID, team.CreatedAt, team.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return teamConflict(team.Name)
			}
			return fmt.Errorf("sqlite: creating team %q: %w", team.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO team_members (team_id, user_id, role, created_at) VALUES (?, ?, ?, ?)`,
			team.ID, team.OwnerID, model.TeamRoleOwner, team.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: adding team owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	team.MemberCount = 1
	return nil
}

// GetByID returns the team with its member list.
func (s *TeamStore) GetByID(ctx context.Context, id string) (*model.Team, error) {
	team, err := scanTeam(s.conn.QueryRowContext(ctx, teamSelect+` WHERE t.id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("team", id)
		}
		return nil, fmt.Errorf("sqlite: getting team %s: %w", id, err)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT m.team_id, m.user_id, COALESCE(u.username, ''), m.role, m.created_at
		 FROM team_members m LEFT JOIN users u ON u.id = m.user_id
		 WHERE m.team_id = ?
		 ORDER BY m.role DESC, m.created_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing members of %s: %w", id, err)
	}
	defer rows.Close()

	team.Members = make([]model.TeamMember, 0)
	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Username, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning member row: %w", err)
		}
		team.Members = append(team.Members, m)
	}
	return team, rows.Err()
}

func (s *TeamStore) List(ctx context.Context, userID string) ([]model.Team, error) {
	query := teamSelect
	args := []any{}
	if userID != "" {
		query += ` WHERE t.id IN (SELECT team_id FROM team_members WHERE user_id = ?)`
		args = append(args, userID)
	}
	query += ` ORDER BY t.name COLLATE NOCASE`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing teams: %w", err)
	}
	defer rows.Close()

	teams := make([]model.Team, 0)
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning team row: %w", err)
		}
		teams = append(teams, *t)
	}
	return teams, rows.Err()
}

func (s *TeamStore) Update(ctx context.Context, team *model.Team) error {
	team.UpdatedAt = now()
	result, err := s.conn.ExecContext(ctx,
		`UPDATE teams SET name = ?, description = ?, owner_id = ?, updated_at = ? WHERE id = ?`,
		team.Name, team.Description, team.OwnerID, team.UpdatedAt, team.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return teamConflict(team.Name)
		}
		return fmt.Errorf("sqlite: updating team %s: %w", team.ID, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("team", team.ID) })
}

// Delete removes the team and its memberships. TEAM snippets keep their
// visibility but lose the team link, so only their owners can read them.
func (s *TeamStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting team %s: %w", id, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("team", id) })
}

func (s *TeamStore) GetMember(ctx context.Context, teamID, userID string) (*model.TeamMember, error) {
	var m model.TeamMember
	err := s.conn.QueryRowContext(ctx,
		`SELECT m.team_id, m.user_id, COALESCE(u.username, ''), m.role, m.created_at
		 FROM team_members m LEFT JOIN users u ON u.id = m.user_id
		 WHERE m.team_id = ? AND m.user_id = ?`, teamID, userID,
	).Scan(&m.TeamID, &m.UserID, &m.Username, &m.Role, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("team member", userID)
		}
		return nil, fmt.Errorf("sqlite: getting member %s of %s: %w", userID, teamID, err)
	}
	return &m, nil
}

// AddMember inserts the membership, or changes the role when the user is
// already a member.
func (s *TeamStore) AddMember(ctx context.Context, m *model.TeamMember) error {
	m.CreatedAt = now()
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO team_members (team_id, user_id, role, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(team_id, user_id) DO UPDATE SET role = excluded.role`,
		m.TeamID, m.UserID, m.Role, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: adding member %s to %s: %w", m.UserID, m.TeamID, err)
	}
	return nil
}

func (s *TeamStore) RemoveMember(ctx context.Context, teamID, userID string) error {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID)
	if err != nil {
		return fmt.Errorf("sqlite: removing member %s from %s: %w", userID, teamID, err)
	}
	return checkAffected(result, func() error { return apperror.NotFound("team member", userID) })
}

func (s *TeamStore) CountOwners(ctx context.Context, teamID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM team_members WHERE team_id = ? AND role = ?`,
		teamID, model.TeamRoleOwner).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting owners of %s: %w", teamID, err)
	}
	return n, nil
}
