package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"sitewatch/internal/orchestrator"
	"sitewatch/internal/types"
)

type triggerRunRequest struct {
	DebugMode     bool       `json:"debug_mode"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// handleTriggerRun executes a batch synchronously and returns its summary.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRunRequest
	if err := DecodeJSON(w, r, &req, true); err != nil {
		Error(w, r, err)
		return
	}

	opts := orchestrator.RunOptions{DebugMode: req.DebugMode}
	if req.ReferenceTime != nil {
		opts.ReferenceTime = req.ReferenceTime.UTC()
	}

	summary, err := s.runner.Run(r.Context(), opts)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "triggered run failed", "error", err)
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: summary})
}

// handleGetRun returns a stored summary from the run store, falling back to
// the dry-run store. ?dry_run=true reads only debug runs.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if !strings.HasPrefix(runID, types.PrefixRun) {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundRun, "run not found", nil))
		return
	}

	if dry, _ := strconv.ParseBool(r.URL.Query().Get("dry_run")); dry {
		if s.dryRuns == nil {
			Error(w, r, types.NewAppError(types.ErrCodeNotFoundRun, "dry runs are not stored", nil))
			return
		}
		s.writeRun(w, r, s.dryRuns, runID)
		return
	}

	summary, err := s.runs.GetRunSummary(r.Context(), runID)
	if types.IsCode(err, types.ErrCodeNotFoundRun) && s.dryRuns != nil {
		s.writeRun(w, r, s.dryRuns, runID)
		return
	}
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: summary})
}

func (s *Server) writeRun(w http.ResponseWriter, r *http.Request, reader RunReader, runID string) {
	summary, err := reader.GetRunSummary(r.Context(), runID)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: summary})
}

// handlePutThresholds replaces the weather settings stored for a jobsite or
// user id.
func (s *Server) handlePutThresholds(w http.ResponseWriter, r *http.Request) {
	targetID := strings.TrimSpace(chi.URLParam(r, "targetID"))
	if targetID == "" {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "target id is required", nil))
		return
	}

	var cfg types.ThresholdConfig
	if err := DecodeJSON(w, r, &cfg, false); err != nil {
		Error(w, r, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		Error(w, r, err)
		return
	}

	if err := s.thresholds.UpsertThresholds(r.Context(), targetID, cfg); err != nil {
		Error(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "weather settings updated", "target_id", targetID)
	JSON(w, r, http.StatusOK, APIResponse{Data: cfg})
}
