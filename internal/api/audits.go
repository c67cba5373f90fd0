package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/id/uuid"
	"github.com/JakeFAU/prelaunch-audit/internal/progress/sinks"
	"github.com/JakeFAU/prelaunch-audit/internal/report/excel"
)

const (
	storeTimeout   = 5 * time.Second
	maxRequestBody = 1 << 20
	maxRequestURLs = 200
)

type auditRequest struct {
	URL        string            `json:"url"`
	URLs       []string          `json:"urls"`
	ClinicName string            `json:"clinic_name"`
	Phone      string            `json:"phone"`
	NGRules    []audit.NGRule    `json:"ng_rules"`
	MasterData map[string]string `json:"master_data"`
	Username   string            `json:"username"`
	Password   string            `json:"password"`
}

type auditResponse struct {
	Run      audit.RunRecord     `json:"run"`
	Progress *sinks.Snapshot     `json:"progress,omitempty"`
	Results  []audit.CheckResult `json:"results,omitempty"`
}

func (s *Server) submitAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	request, err := s.toRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.submitter.Submit(r.Context(), request)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, audit.ErrNoTargets):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		case record.ID != "":
			// Recorded but not queued.
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("submit audit failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	w.Header().Set("Location", "/v1/audits/"+record.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": record.ID,
		"status": string(record.Status),
	})
}

// toRequest merges the request body over the configured site profile.
func (s *Server) toRequest(req auditRequest) (audit.Request, error) {
	start := strings.TrimSpace(req.URL)
	if start == "" && len(req.URLs) == 0 {
		return audit.Request{}, errors.New("url or urls required")
	}
	if len(req.URLs) > maxRequestURLs {
		return audit.Request{}, fmt.Errorf("at most %d urls allowed", maxRequestURLs)
	}
	targets := make([]string, 0, len(req.URLs)+1)
	if start != "" {
		targets = append(targets, start)
	}
	targets = append(targets, req.URLs...)
	for _, raw := range targets {
		if err := validateURL(raw); err != nil {
			return audit.Request{}, err
		}
	}

	profile := s.cfg.Profile.Clone()
	if start != "" {
		profile.StartURL = start
	}
	if req.ClinicName != "" {
		profile.ClinicName = req.ClinicName
	}
	if req.Phone != "" {
		profile.Phone = req.Phone
	}
	if len(req.NGRules) > 0 {
		profile.NGRules = append(profile.NGRules, req.NGRules...)
	}
	if len(req.MasterData) > 0 {
		if profile.MasterData == nil {
			profile.MasterData = make(map[string]string, len(req.MasterData))
		}
		for k, v := range req.MasterData {
			profile.MasterData[k] = v
		}
	}

	request := audit.Request{
		StartURL: start,
		URLs:     append([]string(nil), req.URLs...),
		Profile:  profile,
	}
	if req.Username != "" || req.Password != "" {
		request.Auth = &audit.BasicAuth{Username: req.Username, Password: req.Password}
	} else {
		request.Auth = s.cfg.SiteAuth()
	}
	return request, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q", raw)
	}
	return nil
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	record, ok := s.loadRun(ctx, w, runID)
	if !ok {
		return
	}
	resp := auditResponse{Run: record}
	if s.snapshots != nil {
		if snap, found := s.snapshots.Get(runID); found {
			resp.Progress = &snap
		}
	}
	if record.Status.Terminal() && r.URL.Query().Get("results") != "false" {
		results, err := s.runs.ListResults(ctx, runID)
		if err != nil {
			s.logger.Error("list results failed", zap.String("run_id", runID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load results")
			return
		}
		resp.Results = results
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	record, ok := s.loadRun(ctx, w, runID)
	if !ok {
		return
	}
	if record.Status != audit.RunStatusSucceeded {
		writeError(w, http.StatusConflict, fmt.Sprintf("run is %s; no report available", record.Status))
		return
	}
	results, err := s.runs.ListResults(ctx, runID)
	if err != nil {
		s.logger.Error("list results failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}
	var buf bytes.Buffer
	if err := excel.Render(&buf, results); err != nil {
		s.logger.Error("render report failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": excel.FileName(record.ClinicName)})
	w.Header().Set("Content-Type", excel.ContentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("write report failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (s *Server) runID(w http.ResponseWriter, r *http.Request) (string, bool) {
	runID := chi.URLParam(r, "run_id")
	if !uuid.Valid(runID) {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return "", false
	}
	return runID, true
}

func (s *Server) loadRun(ctx context.Context, w http.ResponseWriter, runID string) (audit.RunRecord, bool) {
	record, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return audit.RunRecord{}, false
		}
		s.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return audit.RunRecord{}, false
	}
	return record, true
}
