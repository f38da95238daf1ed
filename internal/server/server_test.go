package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/selimozcann/seasec/internal/anomaly"
	"github.com/selimozcann/seasec/internal/app"
	"github.com/selimozcann/seasec/internal/config"
	"github.com/selimozcann/seasec/internal/features"
	"github.com/selimozcann/seasec/internal/metrics"
	"github.com/selimozcann/seasec/internal/model"
	"github.com/selimozcann/seasec/internal/report"
)

func targetSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a><a href="/login">l</a>`)
		case "/login":
			fmt.Fprint(w, strings.Repeat(`<a href="/">x</a>`, 30)+`<form><input type="password"></form>`)
		default:
			fmt.Fprint(w, `<a href="/">home</a>`)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	cfg.Crawl.RateLimit = 0
	cfg.Model.Trees = 25
	cfg.Report.Renderers = nil

	log := zaptest.NewLogger(t)
	m := metrics.New()
	api := httptest.NewServer(New(app.FromConfig(cfg, log, m), m, log, 10*time.Second).Handler())
	t.Cleanup(api.Close)
	return api
}

func call(t *testing.T, method, url, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()
	api := newAPI(t)

	status, body := call(t, http.MethodGet, api.URL+"/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "", body["target_site"])

	status, body = call(t, http.MethodGet, api.URL+"/buzz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ding Dong!", body["message"])
}

func TestSetSiteValidation(t *testing.T) {
	t.Parallel()
	api := newAPI(t)

	status, body := call(t, http.MethodPost, api.URL+"/set_site", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing 'url'", body["error"])

	status, _ = call(t, http.MethodPost, api.URL+"/set_site", `{"url":"ftp://example.com"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, http.MethodPost, api.URL+"/set_site", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = call(t, http.MethodPost, api.URL+"/set_site", `{"url":"https://Example.com#x"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://example.com/", body["target_site"])
}

func TestErrorsBeforeData(t *testing.T) {
	t.Parallel()
	api := newAPI(t)

	status, body := call(t, http.MethodPost, api.URL+"/ingest/run", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["hint"])

	status, body = call(t, http.MethodPost, api.URL+"/learn/train", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "run ingestion before training", body["hint"])

	status, _ = call(t, http.MethodPost, api.URL+"/report/generate", "")
	assert.Equal(t, http.StatusConflict, status)

	status, _ = call(t, http.MethodGet, api.URL+"/report/latest/html", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, http.MethodGet, api.URL+"/report/latest/docx", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, http.MethodPost, api.URL+"/ingest/run?max_pages=abc", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestFullFlow(t *testing.T) {
	t.Parallel()
	site := targetSite(t)
	api := newAPI(t)

	status, _ := call(t, http.MethodPost, api.URL+"/set_site", fmt.Sprintf(`{"url":%q}`, site.URL))
	require.Equal(t, http.StatusOK, status)

	status, body := call(t, http.MethodPost, api.URL+"/ingest/run?max_pages=4", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 4, body["collected"])
	assert.Equal(t, site.URL+"/", body["target_site"])

	status, body = call(t, http.MethodPost, api.URL+"/learn/train", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 4, body["trained_on"])

	req, err := http.NewRequest(http.MethodPost, api.URL+"/report/generate", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var sum model.ReportSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, sum.TotalEvents)
	assert.Nil(t, sum.ReportPDFPath)

	resp, err = http.Get(api.URL + "/report/latest/csv")
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(raw), strings.Join(report.CSVHeader, ",")))

	resp, err = http.Get(api.URL + "/metrics")
	require.NoError(t, err)
	raw, err = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "seasec_train_total 1")
	assert.Contains(t, string(raw), "seasec_reports_total 1")
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{errors.Wrap(features.ErrInvalidEvent, "event 2"), http.StatusUnprocessableEntity},
		{errors.Mark(errors.New("missing"), anomaly.ErrModelNotTrained), http.StatusConflict},
		{anomaly.ErrEmptyTrainingSet, http.StatusBadRequest},
		{report.ErrEmptyReport, http.StatusBadRequest},
		{app.ErrNoTargetSite, http.StatusBadRequest},
		{report.ErrArtifactNotFound, http.StatusNotFound},
		{errors.Wrap(context.DeadlineExceeded, "crawl"), http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}
