package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-mel/fieldqc-cli/internal/engine"
	"github.com/meridian-mel/fieldqc-cli/internal/model"
	"github.com/meridian-mel/fieldqc-cli/internal/store"
)

func testBoundaries() []model.Boundary {
	ring := model.Ring{
		{Lat: 6.5, Lng: 3.25},
		{Lat: 6.5, Lng: 3.45},
		{Lat: 6.7, Lng: 3.45},
		{Lat: 6.7, Lng: 3.25},
		{Lat: 6.5, Lng: 3.25},
	}
	return []model.Boundary{{
		State:    "Lagos",
		Name:     "Ikeja",
		Polygons: []model.Polygon{{Rings: []model.Ring{ring}}},
	}}
}

func testRow(id, phone string, lat, lng float64) map[string]any {
	return map[string]any{
		"submissionid": id,
		"start":        "2024-03-12 10:00:00",
		"end":          "2024-03-12 10:30:00",
		"latitude":     lat,
		"longitude":    lng,
		"phone":        phone,
		"enumerator":   "enum-" + id,
		"deviceid":     "device-" + id,
		"state":        "Lagos",
		"lga":          "Ikeja",
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(0, engine.DefaultOptions(), testBoundaries(), st)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	rec := doJSON(t, newTestServer(t).Handler(), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestQualityRun(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/quality/run", map[string]any{
		"rows": []map[string]any{
			testRow("s1", "08031110001", 6.6, 3.35),
			testRow("s2", "08031110001", 6.62, 3.37),
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp qualityRunResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, resp.Flagged, "shared phone flags both submissions")
	assert.Equal(t, map[model.Flag]int{model.FlagDuplicatePhone: 2}, resp.FlagCounts)
	assert.Empty(t, resp.RunID)
	require.Len(t, resp.Submissions, 2)
	assert.Contains(t, resp.Submissions[0].Flags, model.FlagDuplicatePhone)
	assert.Equal(t, model.GeoStatusWithinReported, resp.Submissions[0].GeofenceStatus)
}

func TestQualityRunBoundariesOverride(t *testing.T) {
	srv := newTestServer(t)

	// A boundary set that does not contain the submission coordinate.
	geojson := json.RawMessage(`{
	  "type": "FeatureCollection",
	  "features": [{
	    "type": "Feature",
	    "properties": {"statename": "Ogun", "lganame": "Abeokuta South"},
	    "geometry": {
	      "type": "Polygon",
	      "coordinates": [[[3.2, 7.0], [3.4, 7.0], [3.4, 7.2], [3.2, 7.2], [3.2, 7.0]]]
	    }
	  }]
	}`)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/quality/run", map[string]any{
		"rows":       []map[string]any{testRow("s1", "08031110001", 6.6, 3.35)},
		"boundaries": geojson,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp qualityRunResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Submissions, 1)
	assert.Equal(t, model.GeoStatusNotOnMap, resp.Submissions[0].GeofenceStatus)
	assert.Contains(t, resp.Submissions[0].Flags, model.FlagOutsideLGABoundary)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/quality/run", map[string]any{
		"rows":       []map[string]any{testRow("s1", "08031110001", 6.6, 3.35)},
		"boundaries": "not geojson",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQualityRunBadRows(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []string{
		`{}`,
		`{"rows": null}`,
		`{"rows": "not an array"}`,
		`{"rows": 42}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/quality/run", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}

func TestQualityRunRadiusOverride(t *testing.T) {
	srv := newTestServer(t)

	// Two submissions by the same enumerator roughly 2m apart.
	rows := []map[string]any{
		testRow("s1", "", 6.6, 3.35),
		testRow("s2", "", 6.6+1.8e-5, 3.35),
	}
	rows[1]["enumerator"] = "enum-s1"

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/quality/run",
		map[string]any{"rows": rows})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp qualityRunResponse
	decodeBody(t, rec, &resp)
	assert.Contains(t, resp.Submissions[0].Flags, model.FlagClusteredInterview)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/quality/run",
		map[string]any{"rows": rows, "cluster_radius_m": 1.0})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.NotContains(t, resp.Submissions[0].Flags, model.FlagClusteredInterview)
}

func TestQualityRunSave(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/quality/run", map[string]any{
		"source": "unit.csv",
		"save":   true,
		"rows": []map[string]any{
			testRow("s1", "08031110001", 6.6, 3.35),
			testRow("s2", "08031110001", 6.62, 3.37),
			testRow("s3", "08099990003", 6.61, 3.36),
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp qualityRunResponse
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.RunID)

	rec = doJSON(t, h, http.MethodGet, "/api/runs/"+resp.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run model.Run
	decodeBody(t, rec, &run)
	assert.Equal(t, "unit.csv", run.Source)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 2, run.Flagged)

	rec = doJSON(t, h, http.MethodGet, "/api/runs/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs []model.Run `json:"runs"`
	}
	decodeBody(t, rec, &list)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, resp.RunID, list.Runs[0].ID)
}

func TestGetRunNotFound(t *testing.T) {
	rec := doJSON(t, newTestServer(t).Handler(), http.MethodGet, "/api/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSubmissionsFiltered(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/quality/run", map[string]any{
		"save": true,
		"rows": []map[string]any{
			testRow("s1", "08031110001", 6.6, 3.35),
			testRow("s2", "08031110001", 6.62, 3.37),
			testRow("s3", "08099990003", 6.61, 3.36),
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp qualityRunResponse
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.RunID)

	var list struct {
		Submissions []model.ProcessedSubmission `json:"submissions"`
	}

	rec = doJSON(t, h, http.MethodGet, "/api/runs/"+resp.RunID+"/submissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &list)
	assert.Len(t, list.Submissions, 3)

	rec = doJSON(t, h, http.MethodGet, "/api/runs/"+resp.RunID+"/submissions?flagged=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &list)
	assert.Len(t, list.Submissions, 2)

	rec = doJSON(t, h, http.MethodGet,
		fmt.Sprintf("/api/runs/%s/submissions?flag=%s", resp.RunID, model.FlagDuplicatePhone), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &list)
	require.Len(t, list.Submissions, 2)
	assert.Equal(t, "s1", list.Submissions[0].SubmissionID)
}

// savedRun persists a small run with survey answers and returns its id.
func savedRun(t *testing.T, h http.Handler) string {
	t.Helper()
	rows := []map[string]any{
		testRow("s1", "08031110001", 6.6, 3.35),
		testRow("s2", "08031110002", 6.62, 3.37),
		testRow("s3", "08031110003", 6.61, 3.36),
		testRow("s4", "08031110004", 6.63, 3.38),
	}
	for i, sex := range []string{"Male", "Female", "Female", "Male"} {
		rows[i]["a7_sex"] = sex
		rows[i]["a8_age"] = fmt.Sprintf("%d", 20+i*9)
		rows[i]["h1_satisfied"] = []string{"Yes", "Yes", "No", "Yes"}[i]
	}

	rec := doJSON(t, h, http.MethodPost, "/api/quality/run",
		map[string]any{"save": true, "rows": rows})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp qualityRunResponse
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.RunID)
	return resp.RunID
}

func TestAnalysisSchema(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()
	runID := savedRun(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/analysis/schema?run="+runID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Fields []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
		TopbreakCandidates []string `json:"topbreak_candidates"`
	}
	decodeBody(t, rec, &resp)

	names := make(map[string]string)
	for _, f := range resp.Fields {
		names[f.Name] = f.Type
	}
	assert.Equal(t, "categorical", names["a7_sex"])
	assert.Equal(t, "numeric", names["a8_age"])
	assert.Contains(t, resp.TopbreakCandidates, "a7_sex")
}

func TestAnalysisSchemaMissingRun(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/analysis/schema", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/analysis/schema?run=missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalysisTableDistribution(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()
	runID := savedRun(t, h)

	rec := doJSON(t, h, http.MethodGet,
		"/api/analysis/table?run="+runID+"&var=h1_satisfied", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Distribution struct {
			Categories []string `json:"categories"`
			Counts     []int    `json:"counts"`
			N          int      `json:"n"`
		} `json:"distribution"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, []string{"Yes", "No"}, resp.Distribution.Categories)
	assert.Equal(t, []int{3, 1}, resp.Distribution.Counts)
	assert.Equal(t, 4, resp.Distribution.N)
}

func TestAnalysisTableCrosstab(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()
	runID := savedRun(t, h)

	rec := doJSON(t, h, http.MethodGet,
		"/api/analysis/table?run="+runID+"&var=h1_satisfied&top=a7_sex&stat=rowpct", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Table struct {
			N int `json:"n"`
		} `json:"table"`
		Chart struct {
			Kind string `json:"kind"`
		} `json:"chart"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 4, resp.Table.N)
	assert.Equal(t, "stacked_bar", resp.Chart.Kind)
}

func TestAnalysisTableNumeric(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()
	runID := savedRun(t, h)

	rec := doJSON(t, h, http.MethodGet,
		"/api/analysis/table?run="+runID+"&var=a8_age&top=a7_sex&bins=4", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Numeric struct {
			N         int `json:"n"`
			Summaries []struct {
				Category string `json:"category"`
				Count    int    `json:"count"`
			} `json:"summaries"`
		} `json:"numeric"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 4, resp.Numeric.N)
	require.Len(t, resp.Numeric.Summaries, 2)
}

func TestAnalysisTableBadRequests(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()
	runID := savedRun(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/analysis/table?run="+runID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "var is required")

	rec = doJSON(t, h, http.MethodGet,
		"/api/analysis/table?run="+runID+"&var=h1_satisfied&top=a7_sex&stat=median", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown stat")

	rec = doJSON(t, h, http.MethodGet,
		"/api/analysis/table?run="+runID+"&var=no_such_column", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestNoStoreConfigured(t *testing.T) {
	srv := New(0, engine.DefaultOptions(), nil, nil)
	h := srv.Handler()

	for _, path := range []string{
		"/api/runs/",
		"/api/runs/x",
		"/api/runs/x/submissions",
		"/api/analysis/schema?run=x",
	} {
		rec := doJSON(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}
