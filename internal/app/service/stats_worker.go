package service

import (
	"context"
	"time"

	"github.com/qrtrail/qrtrail/internal/app/repository"
	infraprom "github.com/qrtrail/qrtrail/internal/infra/prometheus"
	"go.uber.org/zap"
)

// StatsWorker periodically refreshes the table-size gauges exposed to
// Prometheus.
type StatsWorker struct {
	logger   *zap.Logger
	codes    repository.CodeRepository
	scans    repository.ScanRepository
	metrics  *infraprom.Metrics
	interval time.Duration
	stopChan chan struct{}
}

// NewStatsWorker creates a stats worker with the given refresh interval.
func NewStatsWorker(logger *zap.Logger, codes repository.CodeRepository, scans repository.ScanRepository, metrics *infraprom.Metrics, interval time.Duration) *StatsWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StatsWorker{
		logger:   logger,
		codes:    codes,
		scans:    scans,
		metrics:  metrics,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic refresh.
func (w *StatsWorker) Start() {
	go w.run()
}

// Stop stops the periodic refresh.
func (w *StatsWorker) Stop() {
	close(w.stopChan)
}

func (w *StatsWorker) run() {
	w.refresh()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.refresh()
		case <-w.stopChan:
			w.logger.Info("stats worker stopped")
			return
		}
	}
}

func (w *StatsWorker) refresh() {
	ctx := context.Background()

	codes, err := w.codes.Count(ctx)
	if err != nil {
		w.logger.Error("failed to count codes", zap.Error(err))
		return
	}
	scans, err := w.scans.Count(ctx)
	if err != nil {
		w.logger.Error("failed to count scans", zap.Error(err))
		return
	}

	w.metrics.SetTotals(codes, scans)
}
