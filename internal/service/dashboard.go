package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/codevault/internal/model"
	"github.com/sakif/codevault/internal/repository"
)

const (
	dashboardDays       = 30
	dashboardTopTags    = 10
	dashboardRecentLogs = 10
)

// DashboardService assembles the admin analytics page.
type DashboardService struct {
	stats   repository.StatsRepository
	audit   *AuditService
	license LicenseChecker
	now     func() time.Time
}

func NewDashboardService(stats repository.StatsRepository, audit *AuditService, license LicenseChecker) *DashboardService {
	return &DashboardService{stats: stats, audit: audit, license: license, now: time.Now}
}

// Stats runs the independent aggregate queries concurrently. The first
// failure cancels the others.
//
// WHY errgroup instead of a WaitGroup?
// Each query can fail, and a dashboard with half its numbers is worse than
// an error. errgroup.WithContext gives us "wait for all, return the first
// error, cancel the rest" in a few lines.
func (s *DashboardService) Stats(ctx context.Context, actor Actor) (*model.DashboardStats, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var (
		out   model.DashboardStats
		daily []model.DailyCount
	)
	since := s.now().UTC().AddDate(0, 0, -(dashboardDays - 1))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.stats.Totals(gctx)
		if err != nil {
			return fmt.Errorf("totals: %w", err)
		}
		out.Totals = *t
		return nil
	})
	g.Go(func() error {
		var err error
		out.Languages, err = s.stats.LanguageCounts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.TopTags, err = s.stats.TopTags(gctx, dashboardTopTags)
		return err
	})
	g.Go(func() error {
		var err error
		daily, err = s.stats.DailyCreated(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		out.RecentAudit, err = s.audit.Recent(gctx, dashboardRecentLogs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building dashboard: %w", err)
	}

	out.Daily = fillDays(daily, since, dashboardDays)
	out.License = map[string]any{"pro": s.license != nil && s.license.IsPro()}
	return &out, nil
}

// fillDays returns exactly n consecutive days starting at since, taking
// counts from sparse and zero elsewhere.
func fillDays(sparse []model.DailyCount, since time.Time, n int) []model.DailyCount {
	byDay := make(map[string]int, len(sparse))
	for _, d := range sparse {
		byDay[d.Day] = d.Count
	}
	out := make([]model.DailyCount, n)
	for i := range n {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		out[i] = model.DailyCount{Day: day, Count: byDay[day]}
	}
	return out
}
