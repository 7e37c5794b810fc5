package recurring

import (
	"context"
	"log/slog"
	"time"

	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/calendar"
)

// Worker keeps every active rule seeded a few weeks ahead.
type Worker struct {
	svc      *Service
	logger   *slog.Logger
	interval time.Duration
	weeks    int
	pageSize int
}

type WorkerConfig struct {
	Interval time.Duration
	Weeks    int
	PageSize int
}

func NewWorker(svc *Service, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Weeks <= 0 {
		cfg.Weeks = 2
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Worker{
		svc:      svc,
		logger:   logger,
		interval: cfg.Interval,
		weeks:    cfg.Weeks,
		pageSize: cfg.PageSize,
	}
}

func (w *Worker) Run(ctx context.Context) {
	w.runLogged(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runLogged(ctx)
		}
	}
}

func (w *Worker) runLogged(ctx context.Context) {
	report, rules, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error("recurring seed pass failed", "err", err, "rules", rules)
		return
	}
	w.logger.Info("recurring seed pass done",
		"rules", rules,
		"inserted", report.Inserted,
		"claimed", report.Claimed,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
}

// RunOnce seeds every active rule and returns the combined report and the
// number of rules visited. A failing rule never stops the pass.
func (w *Worker) RunOnce(ctx context.Context) (SeedReport, int, error) {
	var total SeedReport
	visited := 0
	today := calendar.Date(w.svc.now(), w.svc.loc)
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return total, visited, err
		}
		page, err := w.svc.rules.ListActivePage(ctx, after, w.pageSize, today)
		if err != nil {
			return total, visited, err
		}
		for _, rule := range page {
			total.add(w.svc.Seed(ctx, rule, w.weeks))
			visited++
		}
		if len(page) < w.pageSize {
			return total, visited, nil
		}
		after = page[len(page)-1].ID
	}
}
