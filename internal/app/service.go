package app

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/selimozcann/seasec/internal/anomaly"
	"github.com/selimozcann/seasec/internal/ingest"
	"github.com/selimozcann/seasec/internal/metrics"
	"github.com/selimozcann/seasec/internal/model"
	"github.com/selimozcann/seasec/internal/report"
	"github.com/selimozcann/seasec/internal/risk"
)

// ErrNoTargetSite is returned by Ingest before a target site is set.
var ErrNoTargetSite = errors.New("no target site configured")

// Crawler collects events from a site.
type Crawler interface {
	Crawl(ctx context.Context, target string, maxPages int) ([]model.SecurityEvent, error)
}

// IngestResult mirrors the ingestion endpoint's response body.
type IngestResult struct {
	Collected  int    `json:"collected"`
	TargetSite string `json:"target_site"`
}

// Deps are the collaborators of a Service. Logger and Metrics may be nil.
type Deps struct {
	Sites    *ingest.SiteStore
	Events   *ingest.EventStore
	Crawler  Crawler
	Model    *anomaly.Adapter
	Reports  *report.Aggregator
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	MaxPages int
}

// Service runs the ingest, learn and report steps over the shared stores.
type Service struct {
	sites    *ingest.SiteStore
	events   *ingest.EventStore
	crawler  Crawler
	model    *anomaly.Adapter
	reports  *report.Aggregator
	metrics  *metrics.Metrics
	log      *zap.Logger
	maxPages int
}

func New(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxPages := d.MaxPages
	if maxPages <= 0 {
		maxPages = 15
	}
	return &Service{
		sites:    d.Sites,
		events:   d.Events,
		crawler:  d.Crawler,
		model:    d.Model,
		reports:  d.Reports,
		metrics:  d.Metrics,
		log:      log,
		maxPages: maxPages,
	}
}

func (s *Service) TargetSite() string { return s.sites.Get() }

func (s *Service) SetTargetSite(raw string) (string, error) {
	site, err := s.sites.Set(raw)
	if err != nil {
		return "", err
	}
	s.log.Info("target site set", zap.String("target_site", site))
	return site, nil
}

// DefaultMaxPages is the page budget used when Ingest gets zero.
func (s *Service) DefaultMaxPages() int { return s.maxPages }

// Ingest crawls the target site and replaces the stored events with the
// result. maxPages <= 0 uses the configured default.
func (s *Service) Ingest(ctx context.Context, maxPages int) (IngestResult, error) {
	target := s.sites.Get()
	if target == "" {
		return IngestResult{}, errors.WithHint(ErrNoTargetSite, "set a target site first")
	}
	if maxPages <= 0 {
		maxPages = s.maxPages
	}
	events, err := s.crawler.Crawl(ctx, target, maxPages)
	if err != nil {
		return IngestResult{}, errors.Wrap(err, "crawl target site")
	}
	if err := s.events.Save(events); err != nil {
		return IngestResult{}, err
	}
	s.log.Info("events ingested", zap.String("target_site", target), zap.Int("events", len(events)))
	return IngestResult{Collected: len(events), TargetSite: target}, nil
}

// Events returns the stored events.
func (s *Service) Events() ([]model.SecurityEvent, error) { return s.events.Load() }

// Train fits the anomaly model on the stored events.
func (s *Service) Train(ctx context.Context) (model.TrainResult, error) {
	events, err := s.events.Load()
	if err != nil {
		return model.TrainResult{}, err
	}
	res, err := s.model.Train(ctx, events)
	if err != nil {
		return model.TrainResult{}, err
	}
	s.metrics.ModelTrained()
	return res, nil
}

// GenerateReport scores the stored events, normalizes the scores to risk
// and publishes the artifact set.
func (s *Service) GenerateReport(ctx context.Context) (model.ReportSummary, error) {
	start := time.Now()
	events, err := s.events.Load()
	if err != nil {
		return model.ReportSummary{}, err
	}
	raw, err := s.model.Score(ctx, events)
	if err != nil {
		return model.ReportSummary{}, err
	}
	s.metrics.EventsScored(len(raw))
	summary, err := s.reports.Aggregate(ctx, events, risk.Normalize(raw))
	if err != nil {
		return model.ReportSummary{}, err
	}
	s.log.Debug("report pipeline finished", zap.String("run_id", summary.RunID), zap.Duration("duration", time.Since(start)))
	return summary, nil
}

// LatestArtifact returns the path of the latest published artifact.
func (s *Service) LatestArtifact(format string) (string, error) {
	return s.reports.Latest(format)
}
