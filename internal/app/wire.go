package app

import (
	"go.uber.org/zap"

	"github.com/selimozcann/seasec/internal/anomaly"
	"github.com/selimozcann/seasec/internal/config"
	"github.com/selimozcann/seasec/internal/crawl"
	"github.com/selimozcann/seasec/internal/httpclient"
	"github.com/selimozcann/seasec/internal/ingest"
	"github.com/selimozcann/seasec/internal/metrics"
	"github.com/selimozcann/seasec/internal/modelstore"
	"github.com/selimozcann/seasec/internal/report"
	"github.com/selimozcann/seasec/internal/runner"
)

// FromConfig assembles a Service backed by files under cfg.DataDir.
func FromConfig(cfg config.Config, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	client := httpclient.New(httpclient.Config{
		Timeout:      cfg.Crawl.Timeout,
		UserAgent:    cfg.Crawl.UserAgent,
		Retries:      cfg.Crawl.Retries,
		MaxRedirects: 5,
	})
	pool := runner.New(runner.Config{Workers: cfg.Crawl.Concurrency, RateLimit: cfg.Crawl.RateLimit})
	order, _ := report.ParseOrder(cfg.Report.Order)

	return New(Deps{
		Sites:  ingest.NewSiteStore(cfg.SitePath(), cfg.TargetSite),
		Events: ingest.NewEventStore(cfg.EventsPath()),
		Crawler: crawl.New(client, pool,
			crawl.WithLogger(log.Named("crawl")),
			crawl.WithMetrics(m),
		),
		Model: anomaly.New(modelstore.NewFileStore(cfg.ModelPath()),
			anomaly.WithTrees(cfg.Model.Trees),
			anomaly.WithSampleSize(cfg.Model.SampleSize),
			anomaly.WithSeed(cfg.Model.Seed),
			anomaly.WithLogger(log.Named("anomaly")),
		),
		Reports: report.New(cfg.ReportsDir(),
			report.WithOrder(order),
			report.WithRenderers(cfg.Renderers()...),
			report.WithTitle(cfg.Report.Title),
			report.WithKeepRuns(cfg.Report.KeepRuns),
			report.WithLogger(log.Named("report")),
			report.WithMetrics(m),
		),
		Metrics:  m,
		Logger:   log,
		MaxPages: cfg.Crawl.MaxPages,
	})
}
