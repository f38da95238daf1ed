package crawl

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/selimozcann/seasec/internal/htmlscan"
	"github.com/selimozcann/seasec/internal/metrics"
	"github.com/selimozcann/seasec/internal/model"
	"github.com/selimozcann/seasec/internal/runner"
)

// ErrInvalidTarget is returned for a start URL that is not absolute http(s).
var ErrInvalidTarget = errors.New("invalid crawl target")

// CapturedHeaders are the response headers copied onto each event.
var CapturedHeaders = []string{
	"Server",
	"Content-Type",
	"Content-Security-Policy",
	"Strict-Transport-Security",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"Referrer-Policy",
}

const defaultBodyLimit = 2 << 20

// Crawler walks one site breadth first and observes every HTML page.
type Crawler struct {
	client    *http.Client
	runner    *runner.Runner
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	bodyLimit int64
}

type Option func(*Crawler)

func WithLogger(l *zap.Logger) Option {
	return func(c *Crawler) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option { return func(c *Crawler) { c.metrics = m } }

func WithClock(now func() time.Time) Option { return func(c *Crawler) { c.now = now } }

// WithBodyLimit caps the bytes read from each page.
func WithBodyLimit(n int64) Option { return func(c *Crawler) { c.bodyLimit = n } }

// New creates a Crawler fetching through client on the given pool.
func New(client *http.Client, pool *runner.Runner, opts ...Option) *Crawler {
	c := &Crawler{
		client:    client,
		runner:    pool,
		log:       zap.NewNop(),
		now:       time.Now,
		bodyLimit: defaultBodyLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type observation struct {
	event model.SecurityEvent
	links []string
	err   error
	html  bool
}

// Crawl returns one event per HTML page reached from target without leaving
// its host, at most maxPages of them. Events come in BFS order. A failure to
// fetch the start page is an error; failures further down are logged and
// skipped.
func (c *Crawler) Crawl(ctx context.Context, target string, maxPages int) ([]model.SecurityEvent, error) {
	start, err := url.Parse(strings.TrimSpace(target))
	if err != nil || (start.Scheme != "http" && start.Scheme != "https") || start.Host == "" {
		return nil, errors.WithHint(errors.Wrapf(ErrInvalidTarget, "%q", target), "set an absolute http(s) target site first")
	}
	if maxPages < 1 {
		return nil, errors.Newf("max pages must be at least 1, got %d", maxPages)
	}
	start.Fragment = ""
	if start.Path == "" {
		start.Path = "/"
	}
	host := strings.ToLower(start.Hostname())
	log := c.log.With(zap.String("target", start.String()))
	began := time.Now()

	visited := map[string]struct{}{start.String(): {}}
	frontier := []string{start.String()}
	var events []model.SecurityEvent

	for depth := 0; len(frontier) > 0 && len(events) < maxPages; depth++ {
		batch := frontier
		if budget := maxPages - len(events); len(batch) > budget {
			batch = batch[:budget]
		}
		frontier = frontier[len(batch):]

		obs := make([]observation, len(batch))
		runErr := c.runner.Run(ctx, batch, func(ctx context.Context, idx int, page string) {
			obs[idx] = c.observe(ctx, page)
		})

		for i, o := range obs {
			if o.err != nil {
				if depth == 0 && len(events) == 0 {
					return nil, errors.Wrapf(o.err, "fetch %s", batch[i])
				}
				log.Warn("page skipped", zap.String("page", batch[i]), zap.Error(o.err))
				continue
			}
			if !o.html {
				continue
			}
			events = append(events, o.event)
			for _, link := range o.links {
				u, err := url.Parse(link)
				if err != nil || strings.ToLower(u.Hostname()) != host {
					continue
				}
				if _, ok := visited[link]; ok {
					continue
				}
				visited[link] = struct{}{}
				frontier = append(frontier, link)
			}
		}
		if runErr != nil {
			return events, errors.Wrap(runErr, "crawl interrupted")
		}
	}

	c.metrics.PagesCrawled(len(events))
	log.Info("crawl finished",
		zap.Int("pages", len(events)),
		zap.Int("pending", len(frontier)),
		zap.Duration("duration", time.Since(began)))
	return events, nil
}

func (c *Crawler) observe(ctx context.Context, page string) observation {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return observation{err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1")
	resp, err := c.client.Do(req)
	if err != nil {
		return observation{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return observation{err: errors.Newf("status %d", resp.StatusCode)}
	}
	if !htmlscan.IsHTML(resp.Header.Get("Content-Type")) {
		return observation{}
	}

	final := resp.Request.URL
	scanned, err := htmlscan.Scan(resp.Body, final, c.bodyLimit)
	if err != nil {
		return observation{err: err}
	}

	headers := map[string]string{}
	for _, h := range CapturedHeaders {
		if v := resp.Header.Get(h); v != "" {
			headers[h] = v
		}
	}
	ev := model.SecurityEvent{
		Timestamp:    c.now().UTC(),
		PageURL:      final.String(),
		HTTPS:        final.Scheme == "https",
		NumLinks:     scanned.NumLinks,
		NumForms:     scanned.NumForms,
		HasLoginForm: scanned.HasLoginForm,
		Headers:      headers,
	}
	if scanned.Title != "" {
		title := scanned.Title
		ev.Note = &title
	}
	return observation{event: ev, links: scanned.Links, html: true}
}
