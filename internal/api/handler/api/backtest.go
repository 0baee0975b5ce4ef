package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/newthinker/signalbench/internal/api/job"
	"github.com/newthinker/signalbench/internal/api/response"
	"github.com/newthinker/signalbench/internal/app"
	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/metrics"
	"github.com/newthinker/signalbench/internal/storage/results"
	"github.com/newthinker/signalbench/internal/strategy"
	"go.uber.org/zap"
)

const (
	// JobType labels backtest jobs in the store and in metrics.
	JobType = "backtest"

	defaultBacktestTimeout = 5 * time.Minute
	maxSymbols             = 50
)

// BatchRunner runs a batch of backtests.
type BatchRunner interface {
	RunBatch(ctx context.Context, req app.Request) (*app.Report, error)
}

// BacktestRequest is the request body for starting a backtest.
type BacktestRequest struct {
	Symbols     []string `json:"symbols"`
	Strategies  []string `json:"strategies,omitempty"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	StopLossPct *float64 `json:"stop_loss_pct,omitempty"`
}

// FailureView is one failed run in a job result.
type FailureView struct {
	Symbol   string               `json:"symbol"`
	Strategy string               `json:"strategy"`
	Error    response.ErrorDetail `json:"error"`
}

// BacktestResult is the result of a completed backtest job.
type BacktestResult struct {
	RunID    string               `json:"run_id"`
	Metrics  []results.MetricsRow `json:"metrics"`
	Failures []FailureView        `json:"failures"`
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobStore   *job.Store
	runner     BatchRunner
	strategies *strategy.Engine
	metrics    *metrics.Registry
	timeout    time.Duration
	logger     *zap.Logger
}

// NewBacktestHandler creates a new backtest handler. reg may be nil.
func NewBacktestHandler(
	jobStore *job.Store,
	runner BatchRunner,
	strategies *strategy.Engine,
	reg *metrics.Registry,
	timeout time.Duration,
	logger *zap.Logger,
) *BacktestHandler {
	if timeout <= 0 {
		timeout = defaultBacktestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestHandler{
		jobStore:   jobStore,
		runner:     runner,
		strategies: strategies,
		metrics:    reg,
		timeout:    timeout,
		logger:     logger,
	}
}

// Create validates the request and starts a backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, fmt.Errorf("decode body: %w", err)))
		return
	}

	req, err := h.parse(body)
	if err != nil {
		response.FromError(w, err)
		return
	}

	j, err := h.jobStore.Create(JobType)
	if err != nil {
		response.FromError(w, err)
		return
	}
	h.updateActive()

	go h.run(j.ID, req)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

func (h *BacktestHandler) parse(body BacktestRequest) (app.Request, error) {
	var req app.Request

	for _, s := range body.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			req.Symbols = append(req.Symbols, s)
		}
	}
	if len(req.Symbols) == 0 {
		return req, core.WrapError(core.ErrConfigMissing, errors.New("symbols required"))
	}
	if len(req.Symbols) > maxSymbols {
		return req, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("%d symbols, at most %d allowed", len(req.Symbols), maxSymbols))
	}

	start, err := time.Parse(time.DateOnly, body.Start)
	if err != nil {
		return req, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("start: %w", err))
	}
	end, err := time.Parse(time.DateOnly, body.End)
	if err != nil {
		return req, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("end: %w", err))
	}
	if end.Before(start) {
		return req, core.WrapError(core.ErrConfigInvalid, errors.New("end before start"))
	}
	req.Start, req.End = start, end

	if _, err := h.strategies.Resolve(body.Strategies); err != nil {
		return req, err
	}
	req.Strategies = body.Strategies
	req.StopLossPct = body.StopLossPct
	return req, nil
}

// run executes the batch and records the outcome on the job.
func (h *BacktestHandler) run(jobID string, req app.Request) {
	defer h.updateActive()

	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	report, err := h.runner.RunBatch(ctx, req)
	if err != nil {
		h.logger.Warn("backtest job failed", zap.String("job_id", jobID), zap.Error(err))
		var coreErr *core.Error
		if !errors.As(err, &coreErr) {
			coreErr = core.WrapError(core.ErrStrategyFailed, err)
		}
		h.jobStore.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = coreErr
		})
		return
	}

	result := BacktestResult{
		RunID:    report.RunID,
		Metrics:  report.Rows(),
		Failures: make([]FailureView, len(report.Failures)),
	}
	for i, f := range report.Failures {
		result.Failures[i] = FailureView{Symbol: f.Symbol, Strategy: f.Strategy, Error: response.Detail(f.Err)}
	}

	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = result
	})
}

func (h *BacktestHandler) updateActive() {
	if h.metrics != nil {
		h.metrics.SetJobsActive(JobType, h.jobStore.Active(JobType))
	}
}

// GetStatus returns the status of a backtest job.
func (h *BacktestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobStore.Get(mux.Vars(r)["id"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	resp := map[string]any{
		"job_id":     j.ID,
		"status":     j.Status,
		"progress":   j.Progress,
		"created_at": j.CreatedAt,
		"updated_at": j.UpdatedAt,
	}

	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = response.Detail(j.Error)
	}

	response.JSON(w, http.StatusOK, resp)
}

// List returns every known backtest job without results.
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobStore.List()
	for i := range jobs {
		jobs[i].Result = nil
	}
	response.List(w, jobs)
}
