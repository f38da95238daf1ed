package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/selimozcann/seasec/internal/anomaly"
	"github.com/selimozcann/seasec/internal/config"
	"github.com/selimozcann/seasec/internal/metrics"
	"github.com/selimozcann/seasec/internal/report"
	"github.com/selimozcann/seasec/internal/risk"
)

func testSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	html := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		links := ""
		for i := 0; i < 6; i++ {
			links += fmt.Sprintf(`<a href="/p%d">p%d</a>`, i, i)
		}
		html(w, links+`<a href="/login">login</a>`)
	})
	for i := 0; i < 6; i++ {
		mux.HandleFunc(fmt.Sprintf("/p%d", i), func(w http.ResponseWriter, r *http.Request) {
			html(w, `<a href="/">home</a><form><input name="q"></form>`)
		})
	}
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		links := ""
		for i := 0; i < 40; i++ {
			links += fmt.Sprintf(`<a href="/p%d">x</a>`, i%6)
		}
		html(w, links+`<form><input type="password"></form><form></form><form></form>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newService(t *testing.T) (*Service, config.Config) {
	t.Helper()
	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	cfg.Crawl.RateLimit = 0
	cfg.Model.Trees = 50
	cfg.Report.Renderers = []string{"png"}
	return FromConfig(cfg, zaptest.NewLogger(t), metrics.New()), cfg
}

func TestPipelineEndToEnd(t *testing.T) {
	srv := testSite(t)
	svc, cfg := newService(t)
	ctx := context.Background()

	site, err := svc.SetTargetSite(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", svc.TargetSite())

	ing, err := svc.Ingest(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, ing.Collected)
	assert.Equal(t, site, ing.TargetSite)

	tr, err := svc.Train(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, tr.TrainedOn)
	assert.Equal(t, cfg.ModelPath(), tr.ModelPath)
	assert.FileExists(t, cfg.ModelPath())

	sum, err := svc.GenerateReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, sum.TotalEvents)
	assert.Nil(t, sum.ReportPDFPath)
	require.NotNil(t, sum.ReportPNGPath)

	events, err := svc.Events()
	require.NoError(t, err)
	assert.Len(t, events, 8)

	for _, format := range []string{"json", "csv", "html", "png"} {
		p, err := svc.LatestArtifact(format)
		require.NoError(t, err, format)
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	_, err = svc.LatestArtifact("pdf")
	assert.True(t, errors.Is(err, report.ErrArtifactNotFound))
}

func TestAnomaliesMatchHighBand(t *testing.T) {
	srv := testSite(t)
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.SetTargetSite(srv.URL)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, 15)
	require.NoError(t, err)
	_, err = svc.Train(ctx)
	require.NoError(t, err)

	events, err := svc.Events()
	require.NoError(t, err)
	raw, err := svc.model.Score(ctx, events)
	require.NoError(t, err)

	sum, err := svc.GenerateReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, risk.CountAnomalies(risk.Normalize(raw)), sum.Anomalies)
}

func TestStepOrderErrors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, 5)
	assert.True(t, errors.Is(err, ErrNoTargetSite))

	_, err = svc.Train(ctx)
	assert.True(t, errors.Is(err, anomaly.ErrEmptyTrainingSet))

	_, err = svc.GenerateReport(ctx)
	assert.True(t, errors.Is(err, anomaly.ErrModelNotTrained))

	_, err = svc.LatestArtifact("html")
	assert.True(t, errors.Is(err, report.ErrArtifactNotFound))
}
