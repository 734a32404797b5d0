// Package dataset runs load cycles against the board and holds the most
// recent normalized snapshot for the query engine and dashboards.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/board"
	"github.com/intelliquery/backend/internal/join"
	"github.com/intelliquery/backend/internal/metrics"
	"github.com/intelliquery/backend/internal/normalize"
	"github.com/intelliquery/backend/internal/quality"
	"github.com/intelliquery/backend/internal/storage/models"
	"github.com/intelliquery/backend/pkg/config"
	"github.com/intelliquery/backend/pkg/logger"
)

var ErrNotLoaded = errors.New("dataset not loaded yet")

const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Fetcher supplies raw board items.
type Fetcher interface {
	FetchDeals(ctx context.Context) ([]board.Item, error)
	FetchWorkOrders(ctx context.Context) ([]board.Item, error)
}

// RunRecorder persists the outcome of each load cycle.
type RunRecorder interface {
	InsertLoadRun(run *models.LoadRun) error
}

// Snapshot is the result of one successful load. It is never modified after
// it is published.
type Snapshot struct {
	LoadID        string
	LoadedAt      time.Time
	SchemaVersion string
	Deals         []normalize.Deal
	WorkOrders    []normalize.WorkOrder
	Combined      []join.Combined
	Issues        []quality.Issue
	Report        quality.Report
}

type Loader struct {
	fetcher    Fetcher
	normalizer *normalize.Normalizer
	recorder   RunRecorder
	timeout    time.Duration

	// loadMu serializes load cycles; tracker is reused across them.
	loadMu  sync.Mutex
	tracker *quality.Tracker

	mu      sync.RWMutex
	current *Snapshot

	cron *cron.Cron
	now  func() time.Time
}

// NewLoader builds a Loader. recorder may be nil when load history is not
// kept.
func NewLoader(fetcher Fetcher, normalizer *normalize.Normalizer, recorder RunRecorder, cfg config.DatasetConfig) *Loader {
	timeout := time.Duration(cfg.LoadTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Loader{
		fetcher:    fetcher,
		normalizer: normalizer,
		recorder:   recorder,
		timeout:    timeout,
		tracker:    quality.NewTracker(),
		now:        time.Now,
	}
}

// Current returns the latest snapshot, or ErrNotLoaded before the first
// successful load.
func (l *Loader) Current() (*Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.current == nil {
		return nil, ErrNotLoaded
	}
	return l.current, nil
}

// Load fetches both boards, normalizes and joins them, and publishes the
// result as the current snapshot. A failed load leaves the previous
// snapshot in place.
func (l *Loader) Load(ctx context.Context, trigger string) (*Snapshot, error) {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	started := l.now()
	run := &models.LoadRun{
		ID:            uuid.New().String(),
		Trigger:       trigger,
		SchemaVersion: l.normalizer.Schema().Version,
		StartedAt:     started,
	}

	logger.Info("Dataset load started", zap.String("load_id", run.ID), zap.String("trigger", trigger))

	snapshot, err := l.build(ctx, run.ID)
	run.DurationMS = int(l.now().Sub(started).Milliseconds())

	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		metrics.DatasetLoads.WithLabelValues("failed", trigger).Inc()
		l.record(run)
		logger.Error("Dataset load failed", zap.String("load_id", run.ID), zap.Error(err))
		return nil, err
	}

	snapshot.LoadedAt = started
	run.Status = "success"
	run.DealCount = len(snapshot.Deals)
	run.WorkOrderCount = len(snapshot.WorkOrders)
	run.Issues = issueModels(run.ID, snapshot.Issues)
	l.record(run)

	l.mu.Lock()
	l.current = snapshot
	l.mu.Unlock()

	metrics.DatasetLoads.WithLabelValues("success", trigger).Inc()
	metrics.DatasetRows.WithLabelValues("deals").Set(float64(len(snapshot.Deals)))
	metrics.DatasetRows.WithLabelValues("work_orders").Set(float64(len(snapshot.WorkOrders)))
	bySeverity := make(map[quality.Severity]int)
	for _, issue := range snapshot.Issues {
		bySeverity[issue.Severity]++
	}
	for _, sev := range quality.Severities {
		metrics.DataQualityIssues.WithLabelValues(string(sev)).Set(float64(bySeverity[sev]))
	}

	logger.Info("Dataset load completed",
		zap.String("load_id", run.ID),
		zap.Int("deals", run.DealCount),
		zap.Int("work_orders", run.WorkOrderCount),
		zap.Int("quality_issues", len(snapshot.Issues)),
		zap.Int("duration_ms", run.DurationMS),
	)

	return snapshot, nil
}

func (l *Loader) build(ctx context.Context, loadID string) (*Snapshot, error) {
	dealItems, err := l.fetcher.FetchDeals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deals: %w", err)
	}

	orderItems, err := l.fetcher.FetchWorkOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch work orders: %w", err)
	}

	l.tracker.Clear()
	deals := l.normalizer.NormalizeDeals(dealItems, l.tracker)
	orders := l.normalizer.NormalizeWorkOrders(orderItems, l.tracker)
	combined := join.DealsAndOrders(deals, orders, l.tracker)

	return &Snapshot{
		LoadID:        loadID,
		SchemaVersion: l.normalizer.Schema().Version,
		Deals:         deals,
		WorkOrders:    orders,
		Combined:      combined,
		Issues:        l.tracker.Issues(),
		Report:        l.tracker.Report(),
	}, nil
}

func (l *Loader) record(run *models.LoadRun) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.InsertLoadRun(run); err != nil {
		logger.Warn("Failed to record load run", zap.String("load_id", run.ID), zap.Error(err))
	}
}

// Start schedules periodic reloads using a cron spec such as "@every 1h"
// or "0 */2 * * *". An empty spec disables scheduling.
func (l *Loader) Start(spec string) error {
	if spec == "" {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := l.Load(context.Background(), TriggerSchedule); err != nil {
			logger.Warn("Scheduled dataset refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	l.cron = c
	c.Start()
	logger.Info("Dataset refresh scheduled", zap.String("schedule", spec))
	return nil
}

// Stop halts scheduled reloads and waits for a running one to finish.
func (l *Loader) Stop() {
	if l.cron == nil {
		return
	}
	<-l.cron.Stop().Done()
	logger.Info("Dataset refresh stopped")
}

func issueModels(loadID string, issues []quality.Issue) []models.QualityIssue {
	out := make([]models.QualityIssue, len(issues))
	for i, issue := range issues {
		out[i] = models.QualityIssue{
			LoadID:     loadID,
			Dataset:    issue.Dataset,
			Kind:       string(issue.Kind),
			Column:     issue.Column,
			Count:      issue.Count,
			Percentage: issue.Percentage,
			Severity:   string(issue.Severity),
			Samples:    issue.Samples,
		}
	}
	return out
}
