package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-mel/fieldqc-cli/internal/analysis"
	"github.com/meridian-mel/fieldqc-cli/internal/boundary"
	"github.com/meridian-mel/fieldqc-cli/internal/engine"
	"github.com/meridian-mel/fieldqc-cli/internal/model"
	"github.com/meridian-mel/fieldqc-cli/internal/store"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// qualityRunRequest is the POST /api/quality/run payload. Rows stays raw so
// a non-array value can be rejected with a 400 instead of a decode panic.
// Boundaries, when present, is a GeoJSON FeatureCollection overriding the
// server's configured boundary set for this request.
type qualityRunRequest struct {
	Source         string          `json:"source"`
	Rows           json.RawMessage `json:"rows"`
	Boundaries     json.RawMessage `json:"boundaries"`
	ClusterRadiusM *float64        `json:"cluster_radius_m"`
	Save           bool            `json:"save"`
}

type qualityRunResponse struct {
	RunID       string                      `json:"run_id,omitempty"`
	Total       int                         `json:"total"`
	Flagged     int                         `json:"flagged"`
	FlagCounts  map[model.Flag]int          `json:"flag_counts"`
	Submissions []model.ProcessedSubmission `json:"submissions"`
}

func (s *Server) handleQualityRun(w http.ResponseWriter, r *http.Request) {
	var req qualityRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var rows []model.RawSubmission
	if len(req.Rows) == 0 || json.Unmarshal(req.Rows, &rows) != nil || rows == nil {
		respondError(w, http.StatusBadRequest, "rows is not a sequence")
		return
	}

	opts := s.opts
	if req.ClusterRadiusM != nil && *req.ClusterRadiusM > 0 {
		opts.ClusterRadiusM = *req.ClusterRadiusM
	}

	boundaries := s.boundaries
	if len(req.Boundaries) > 0 && string(req.Boundaries) != "null" {
		parsed, err := boundary.ParseGeoJSON(req.Boundaries, boundary.Options{})
		if err != nil {
			respondError(w, http.StatusBadRequest, "boundaries is not a GeoJSON feature collection")
			return
		}
		boundaries = parsed
	}

	processed, err := engine.New(opts).Run(r.Context(), rows, boundaries)
	if err != nil {
		zap.L().Error("server: quality run failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "quality run failed")
		return
	}

	flagged := 0
	flagCounts := make(map[model.Flag]int)
	for _, p := range processed {
		if !p.Valid {
			flagged++
		}
		for _, f := range p.Flags {
			flagCounts[f]++
		}
	}

	resp := qualityRunResponse{
		Total:       len(processed),
		Flagged:     flagged,
		FlagCounts:  flagCounts,
		Submissions: processed,
	}

	if req.Save && s.store != nil {
		source := req.Source
		if source == "" {
			source = "api"
		}
		run, err := s.store.CreateRun(r.Context(), source, opts.ClusterRadiusM, len(boundaries))
		if err != nil {
			zap.L().Error("server: create run", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "persist run failed")
			return
		}
		if err := s.store.SaveProcessed(r.Context(), run.ID, processed); err != nil {
			zap.L().Error("server: save submissions", zap.String("run", run.ID), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "persist run failed")
			return
		}
		if err := s.store.CompleteRun(r.Context(), run.ID, len(processed), flagged); err != nil {
			zap.L().Error("server: complete run", zap.String("run", run.ID), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "persist run failed")
			return
		}
		resp.RunID = run.ID
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	runs, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		zap.L().Error("server: list runs", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if eris.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("server: get run", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}
	filter := store.ProcessedFilter{
		FlaggedOnly: r.URL.Query().Get("flagged") == "1" || r.URL.Query().Get("flagged") == "true",
		Flag:        model.Flag(r.URL.Query().Get("flag")),
		Limit:       queryInt(r, "limit", 0),
		Offset:      queryInt(r, "offset", 0),
	}

	subs, err := s.store.ListProcessed(r.Context(), chi.URLParam(r, "id"), filter)
	if err != nil {
		zap.L().Error("server: list submissions", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "list submissions failed")
		return
	}
	if subs == nil {
		subs = []model.ProcessedSubmission{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

// runRows loads the raw rows behind a stored run for the analysis endpoints.
func (s *Server) runRows(r *http.Request) ([]model.RawSubmission, int, string) {
	if s.store == nil {
		return nil, http.StatusServiceUnavailable, "no store configured"
	}
	runID := r.URL.Query().Get("run")
	if runID == "" {
		return nil, http.StatusBadRequest, "run query parameter is required"
	}

	subs, err := s.store.ListProcessed(r.Context(), runID, store.ProcessedFilter{})
	if err != nil {
		zap.L().Error("server: load run rows", zap.String("run", runID), zap.Error(err))
		return nil, http.StatusInternalServerError, "load run failed"
	}
	if len(subs) == 0 {
		return nil, http.StatusNotFound, "run has no submissions"
	}

	rows := make([]model.RawSubmission, len(subs))
	for i, sub := range subs {
		rows[i] = sub.Raw
	}
	return rows, 0, ""
}

func (s *Server) handleAnalysisSchema(w http.ResponseWriter, r *http.Request) {
	rows, status, msg := s.runRows(r)
	if msg != "" {
		respondError(w, status, msg)
		return
	}

	fields := analysis.InferFields(rows)
	respondJSON(w, http.StatusOK, map[string]any{
		"fields":              fields,
		"topbreak_candidates": analysis.TopBreakCandidates(fields),
	})
}

func (s *Server) handleAnalysisTable(w http.ResponseWriter, r *http.Request) {
	rows, status, msg := s.runRows(r)
	if msg != "" {
		respondError(w, status, msg)
		return
	}

	q := r.URL.Query()
	variable := q.Get("var")
	if variable == "" {
		respondError(w, http.StatusBadRequest, "var query parameter is required")
		return
	}
	topbreak := q.Get("top")

	stat := analysis.Stat(q.Get("stat"))
	if stat == "" {
		stat = analysis.StatCounts
	}
	if !analysis.ValidStat(stat) {
		respondError(w, http.StatusBadRequest, "unknown stat "+string(stat))
		return
	}

	opts := analysis.DefaultSeriesOptions()
	if limit := queryInt(r, "categories", 0); limit > 0 {
		opts.Limit = limit
	}
	if minCount := queryInt(r, "min_count", 0); minCount > 0 {
		opts.MinCount = minCount
	}
	opts.DropMissing = q.Get("keep_missing") == ""

	// No top-break: single-variable distribution.
	if topbreak == "" {
		dist, err := analysis.Distribute(rows, variable, opts)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, eris.Cause(err).Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"distribution": dist, "chart": dist.BarChart()})
		return
	}

	if isNumericVariable(rows, variable) {
		table, err := analysis.NumericCrosstab(rows, topbreak, variable, opts, queryInt(r, "bins", 10))
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, eris.Cause(err).Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"numeric": table, "chart": table.Chart})
		return
	}

	table, err := analysis.Crosstab(rows, topbreak, variable, opts)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, eris.Cause(err).Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"table": table, "chart": table.StackedBarChart(stat)})
}

func isNumericVariable(rows []model.RawSubmission, variable string) bool {
	for _, f := range analysis.InferFields(rows) {
		if f.Name == variable {
			return f.Type == analysis.FieldNumeric
		}
	}
	return false
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
