package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

var _ repository.StatsRepository = (*StatsStore)(nil)

// StatsStore runs the read-only aggregates behind the admin dashboard.
type StatsStore struct {
	conn *sql.DB
}

func (s *StatsStore) Totals(ctx context.Context) (*model.Totals, error) {
	var t model.Totals
	err := s.conn.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM users),
		   (SELECT COUNT(*) FROM snippets),
		   (SELECT COUNT(*) FROM snippets WHERE status = ?),
		   (SELECT COUNT(*) FROM snippet_versions),
		   (SELECT COUNT(*) FROM teams)`, model.StatusPending,
	).Scan(&t.Users, &t.Snippets, &t.Pending, &t.Versions, &t.Teams)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading totals: %w", err)
	}
	return &t, nil
}

func (s *StatsStore) LanguageCounts(ctx context.Context) ([]model.NamedCount, error) {
	return s.namedCounts(ctx,
		`SELECT language, COUNT(*) AS n FROM snippets GROUP BY language ORDER BY n DESC, language`)
}

func (s *StatsStore) TopTags(ctx context.Context, limit int) ([]model.NamedCount, error) {
	return s.namedCounts(ctx,
		`SELECT t.name, COUNT(*) AS n FROM snippet_tags st JOIN tags t ON t.id = st.tag_id
		 GROUP BY t.name ORDER BY n DESC, t.name LIMIT ?`, limit)
}

func (s *StatsStore) namedCounts(ctx context.Context, query string, args ...any) ([]model.NamedCount, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: running aggregate: %w", err)
	}
	defer rows.Close()

	out := make([]model.NamedCount, 0)
	for rows.Next() {
		var nc model.NamedCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning aggregate row: %w", err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

// DailyCreated counts snippets created per UTC day on or after since.
// Days without snippets are omitted; the service fills the gaps.
func (s *StatsStore) DailyCreated(ctx context.Context, since time.Time) ([]model.DailyCount, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT date(created_at) AS day, COUNT(*) FROM snippets
		 WHERE date(created_at) >= ?
		 GROUP BY day ORDER BY day`, since.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting daily snippets: %w", err)
	}
	defer rows.Close()

	out := make([]model.DailyCount, 0)
	for rows.Next() {
		var dc model.DailyCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning daily row: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}
