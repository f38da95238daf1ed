package report

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/selimozcann/seasec/internal/explain"
	"github.com/selimozcann/seasec/internal/metrics"
	"github.com/selimozcann/seasec/internal/model"
	"github.com/selimozcann/seasec/internal/risk"
)

var (
	ErrEmptyReport      = errors.New("no events to report")
	ErrArtifactNotFound = errors.New("report artifact not found")
	ErrUnknownFormat    = errors.New("unknown report format")
)

const (
	latestName  = "latest"
	runsName    = "runs"
	baseName    = "report"
	publishLock = ".publish.lock"
	lockRetry   = 50 * time.Millisecond
)

// Formats lists every artifact format the aggregator may publish.
var Formats = []string{"json", "csv", "html", "pdf", "png"}

// Aggregator joins events with their risk and publishes the artifact set
// under <dir>/latest.
type Aggregator struct {
	dir       string
	order     Order
	explainer explain.ReasonExplainer
	renderers []Renderer
	title     string
	keepRuns  int
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	// mu serializes publish and prune within the process; the file lock
	// does the same across processes sharing dir.
	mu sync.Mutex
}

// Option configures an Aggregator.
type Option func(*Aggregator)

func WithOrder(o Order) Option { return func(a *Aggregator) { a.order = o } }

func WithExplainer(e explain.ReasonExplainer) Option {
	return func(a *Aggregator) {
		if e != nil {
			a.explainer = e
		}
	}
}

// WithRenderers sets the optional renderers, replacing the defaults.
func WithRenderers(r ...Renderer) Option { return func(a *Aggregator) { a.renderers = r } }

func WithTitle(title string) Option { return func(a *Aggregator) { a.title = title } }

// WithKeepRuns bounds how many published runs are retained; zero keeps all.
func WithKeepRuns(n int) Option { return func(a *Aggregator) { a.keepRuns = n } }

func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option { return func(a *Aggregator) { a.metrics = m } }

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// New returns an Aggregator writing below dir. By default records are
// ordered by descending risk and PDF and PNG renderings are attempted.
func New(dir string, opts ...Option) *Aggregator {
	a := &Aggregator{
		dir:       dir,
		order:     OrderByRisk,
		explainer: explain.Default(),
		renderers: []Renderer{PDFRenderer{}, PNGRenderer{}},
		title:     "SEA-SEC Risk Report",
		keepRuns:  5,
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dir returns the reports root.
func (a *Aggregator) Dir() string { return a.dir }

// Aggregate enriches events with risks and publishes the artifact set. The
// JSON, CSV and HTML artifacts are required; optional renderings that fail
// are listed in the summary's Skipped map instead of failing the call.
func (a *Aggregator) Aggregate(ctx context.Context, events []model.SecurityEvent, risks []float64) (model.ReportSummary, error) {
	if len(events) == 0 {
		return model.ReportSummary{}, errors.WithHint(ErrEmptyReport, "ingest events before generating a report")
	}
	if len(risks) != len(events) {
		return model.ReportSummary{}, errors.Newf("report: %d risks for %d events", len(risks), len(events))
	}

	start := time.Now()
	generatedAt := a.now().UTC()
	runID := generatedAt.Format("20060102T150405.000000000Z") + "-" + uuid.NewString()[:8]
	records := Join(events, risks, a.explainer, a.order)
	log := a.log.With(zap.String("run_id", runID))

	runsDir := filepath.Join(a.dir, runsName)
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return model.ReportSummary{}, errors.Wrap(err, "create reports directory")
	}
	stage, err := os.MkdirTemp(runsDir, ".stage-")
	if err != nil {
		return model.ReportSummary{}, errors.Wrap(err, "create staging directory")
	}
	defer func() {
		if stage != "" {
			_ = os.RemoveAll(stage)
		}
	}()

	var html bytes.Buffer
	page := PageData{Title: a.title, GeneratedAt: generatedAt, RunID: runID, Records: records}
	if err := RenderHTML(&html, page); err != nil {
		return model.ReportSummary{}, errors.Wrap(err, "render html")
	}
	required := []struct {
		format string
		write  func(io.Writer) error
	}{
		{"json", func(w io.Writer) error { return WriteJSON(w, records) }},
		{"csv", func(w io.Writer) error { return WriteCSV(w, records) }},
		{"html", func(w io.Writer) error { _, err := w.Write(html.Bytes()); return err }},
	}
	for _, r := range required {
		if err := writeArtifact(filepath.Join(stage, fileName(r.format)), r.write); err != nil {
			return model.ReportSummary{}, errors.Wrapf(err, "write %s artifact", r.format)
		}
	}

	doc := Document{
		Title:       a.title,
		GeneratedAt: generatedAt,
		HTML:        html.Bytes(),
		Records:     records,
		Counts:      CountLevels(records),
	}
	produced := map[string]bool{}
	skipped := map[string]string{}
	for _, r := range a.renderers {
		name := r.Artifact()
		path := filepath.Join(stage, fileName(name))
		err := writeArtifact(path, func(w io.Writer) error { return r.Render(ctx, doc, w) })
		if err != nil {
			_ = os.Remove(path)
			skipped[name] = err.Error()
			a.metrics.RenderFailed(name)
			log.Warn("optional artifact skipped",
				zap.String("artifact", name),
				zap.Bool("backend_unavailable", errors.Is(err, ErrRenderBackendUnavailable)),
				zap.Error(err))
			continue
		}
		produced[name] = true
	}

	if err := ctx.Err(); err != nil {
		return model.ReportSummary{}, errors.Wrap(err, "report aborted before publish")
	}
	if err := a.publish(ctx, stage, runID, log); err != nil {
		return model.ReportSummary{}, err
	}
	stage = ""
	a.metrics.ReportPublished()

	latest := filepath.Join(a.dir, latestName)
	summary := model.ReportSummary{
		TotalEvents:    len(events),
		Anomalies:      risk.CountAnomalies(risks),
		RunID:          runID,
		GeneratedAt:    generatedAt,
		ReportJSONPath: filepath.Join(latest, fileName("json")),
		ReportCSVPath:  filepath.Join(latest, fileName("csv")),
		ReportHTMLPath: filepath.Join(latest, fileName("html")),
	}
	if produced["pdf"] {
		p := filepath.Join(latest, fileName("pdf"))
		summary.ReportPDFPath = &p
	}
	if produced["png"] {
		p := filepath.Join(latest, fileName("png"))
		summary.ReportPNGPath = &p
	}
	if len(skipped) > 0 {
		summary.Skipped = skipped
	}

	log.Info("report published",
		zap.Int("events", summary.TotalEvents),
		zap.Int("anomalies", summary.Anomalies),
		zap.Int("skipped", len(skipped)),
		zap.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

// Latest returns the path of a published artifact in the latest set.
func (a *Aggregator) Latest(format string) (string, error) {
	known := false
	for _, f := range Formats {
		if f == format {
			known = true
			break
		}
	}
	if !known {
		return "", errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	path := filepath.Join(a.dir, latestName, fileName(format))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errors.WithHint(errors.Wrapf(ErrArtifactNotFound, "%s", format), "generate a report first")
		}
		return "", errors.Wrapf(err, "stat %s", path)
	}
	return path, nil
}

// publish moves the staged run into runs/<runID>, points latest at it and
// prunes old runs, holding the publish lock throughout. On error the staged
// directory is left for the caller to remove.
func (a *Aggregator) publish(ctx context.Context, stage, runID string, log *zap.Logger) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock := flock.New(filepath.Join(a.dir, publishLock))
	ok, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return errors.Wrap(err, "lock reports directory")
	}
	if !ok {
		return errors.Newf("lock reports directory %s: not acquired", a.dir)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = errors.Wrap(uerr, "unlock reports directory")
		}
	}()

	runDir := filepath.Join(a.dir, runsName, runID)
	if err := os.Rename(stage, runDir); err != nil {
		return errors.Wrap(err, "finalize run directory")
	}
	if err := renameio.Symlink(filepath.Join(runsName, runID), filepath.Join(a.dir, latestName)); err != nil {
		_ = os.RemoveAll(runDir)
		return errors.Wrap(err, "publish latest report")
	}
	if err := a.prune(runID); err != nil {
		log.Warn("prune old runs", zap.Error(err))
	}
	return nil
}

// prune removes the oldest runs beyond keepRuns. It never removes the
// current run, the run latest resolves to, or any run newer than current.
// Callers hold the publish lock.
func (a *Aggregator) prune(current string) error {
	if a.keepRuns <= 0 {
		return nil
	}
	entries, err := os.ReadDir(filepath.Join(a.dir, runsName))
	if err != nil {
		return err
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)

	protected := map[string]bool{current: true}
	if target, err := os.Readlink(filepath.Join(a.dir, latestName)); err == nil {
		protected[filepath.Base(target)] = true
	}

	excess := len(runs) - a.keepRuns
	var firstErr error
	for _, name := range runs {
		if excess <= 0 {
			break
		}
		if protected[name] || name > current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(a.dir, runsName, name)); err != nil && firstErr == nil {
			firstErr = err
		}
		excess--
	}
	return firstErr
}

func fileName(format string) string { return baseName + "." + format }

func writeArtifact(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := write(f); err != nil {
		return err
	}
	return f.Sync()
}
