package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/mohammad-safakhou/ebookqa/config"
	"github.com/mohammad-safakhou/ebookqa/internal/store"
)

// Janitor fails documents that have been stuck in processing, e.g. after a
// worker crash. It runs on a cron schedule inside the api process.
type Janitor struct {
	Store  *store.Store
	Cfg    config.IngestConfig
	Logger *log.Logger
}

func NewJanitor(st *store.Store, cfg config.IngestConfig, logger *log.Logger) *Janitor {
	if logger == nil {
		logger = log.New(log.Writer(), "[JANITOR] ", log.LstdFlags)
	}
	return &Janitor{Store: st, Cfg: cfg, Logger: logger}
}

// Run blocks until ctx is cancelled, sweeping on each cron tick.
func (j *Janitor) Run(ctx context.Context) {
	expr, err := cronexpr.Parse(j.Cfg.JanitorSchedule)
	if err != nil {
		j.Logger.Printf("invalid schedule %q, janitor disabled: %v", j.Cfg.JanitorSchedule, err)
		return
	}
	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			j.Logger.Printf("schedule %q yields no future runs, janitor stopped", j.Cfg.JanitorSchedule)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		j.Sweep(ctx)
	}
}

// Sweep performs one pass.
func (j *Janitor) Sweep(ctx context.Context) {
	n, err := j.Store.FailStuckDocuments(ctx, j.Cfg.StuckAfter)
	if err != nil {
		j.Logger.Printf("sweep failed: %v", err)
		return
	}
	if n > 0 {
		j.Logger.Printf("failed %d stuck document(s)", n)
	}
}
