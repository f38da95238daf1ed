package console

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/selimozcann/seasec/internal/app"
	"github.com/selimozcann/seasec/internal/model"
)

var (
	high   = color.New(color.FgRed, color.Bold)
	medium = color.New(color.FgYellow)
	low    = color.New(color.FgGreen)
	gray   = color.New(color.FgHiBlack)
	label  = color.New(color.FgCyan)
)

// ColorFor returns the color used for a severity band.
func ColorFor(level model.Severity) *color.Color {
	switch level {
	case model.SeverityHigh:
		return high
	case model.SeverityMedium:
		return medium
	default:
		return low
	}
}

// Severity renders level in its band color.
func Severity(level model.Severity) string {
	return ColorFor(level).Sprint(string(level))
}

func field(w io.Writer, name string, value interface{}) {
	_, _ = label.Fprintf(w, "%-14s", name)
	_, _ = fmt.Fprintln(w, value)
}

func PrintSite(w io.Writer, site string) {
	if site == "" {
		site = gray.Sprint("(none)")
	}
	field(w, "target site", site)
}

func PrintIngest(w io.Writer, res app.IngestResult) {
	field(w, "target site", res.TargetSite)
	field(w, "collected", res.Collected)
}

func PrintTrain(w io.Writer, res model.TrainResult) {
	field(w, "trained on", res.TrainedOn)
	field(w, "model", res.ModelPath)
}

// PrintSummary writes the report summary, the anomaly count in the High
// band color and the optional artifacts that were skipped.
func PrintSummary(w io.Writer, sum model.ReportSummary) {
	field(w, "run", sum.RunID)
	field(w, "events", sum.TotalEvents)
	anomalies := low.Sprint(sum.Anomalies)
	if sum.Anomalies > 0 {
		anomalies = high.Sprint(sum.Anomalies)
	}
	field(w, "anomalies", anomalies)
	field(w, "json", sum.ReportJSONPath)
	field(w, "csv", sum.ReportCSVPath)
	field(w, "html", sum.ReportHTMLPath)
	if sum.ReportPDFPath != nil {
		field(w, "pdf", *sum.ReportPDFPath)
	}
	if sum.ReportPNGPath != nil {
		field(w, "png", *sum.ReportPNGPath)
	}
	names := make([]string, 0, len(sum.Skipped))
	for name := range sum.Skipped {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		field(w, name, gray.Sprintf("skipped: %s", sum.Skipped[name]))
	}
}
