package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/autoria-scraper/internal/models"
)

var ErrRunInProgress = errors.New("a run is already in progress")

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

type Pipeline interface {
	Run(ctx context.Context, start, stop int) (*models.RunStats, error)
}

// Run is the state of one API-triggered pipeline run.
type Run struct {
	ID          string           `json:"id"`
	Status      string           `json:"status"`
	StartPage   int              `json:"start_page"`
	StopPage    int              `json:"stop_page"`
	Stats       *models.RunStats `json:"stats,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// RunManager starts pipeline runs in the background, one at a time.
type RunManager struct {
	pipeline Pipeline
	ctx      context.Context
	logger   *slog.Logger

	mu     sync.Mutex
	latest *Run
	active bool
	wg     sync.WaitGroup
}

// NewRunManager ties background runs to ctx, so cancelling it stops them.
func NewRunManager(ctx context.Context, p Pipeline, logger *slog.Logger) *RunManager {
	return &RunManager{
		pipeline: p,
		ctx:      ctx,
		logger:   logger.With("component", "run_manager"),
	}
}

func (m *RunManager) Start(start, stop int) (*Run, error) {
	if err := models.ValidateRange(start, stop); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return nil, ErrRunInProgress
	}

	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		StartPage: start,
		StopPage:  stop,
		StartedAt: time.Now(),
	}
	m.latest = run
	m.active = true

	m.wg.Add(1)
	go m.execute(run)

	m.logger.Info("run started", "id", run.ID, "start_page", start, "stop_page", stop)
	snapshot := *run
	return &snapshot, nil
}

func (m *RunManager) execute(run *Run) {
	defer m.wg.Done()

	stats, err := m.pipeline.Run(m.ctx, run.StartPage, run.StopPage)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	run.CompletedAt = &now
	run.Stats = stats
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
		m.logger.Error("run failed", "id", run.ID, "error", err)
	} else {
		run.Status = RunStatusCompleted
		m.logger.Info("run completed", "id", run.ID)
	}
	m.active = false
}

// Latest returns a copy of the most recent run, or nil before the first one.
func (m *RunManager) Latest() *Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.latest == nil {
		return nil
	}
	snapshot := *m.latest
	return &snapshot
}

// Wait blocks until the current run, if any, has finished.
func (m *RunManager) Wait() {
	m.wg.Wait()
}
