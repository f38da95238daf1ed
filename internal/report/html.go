package report

import (
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/selimozcann/seasec/internal/model"
)

// Counts summarises records per severity band.
type Counts struct {
	Total  int
	High   int
	Medium int
	Low    int
}

// CountLevels tallies records by RiskLevel.
func CountLevels(records []model.RiskRecord) Counts {
	c := Counts{Total: len(records)}
	for _, rec := range records {
		switch rec.RiskLevel {
		case model.SeverityHigh:
			c.High++
		case model.SeverityMedium:
			c.Medium++
		default:
			c.Low++
		}
	}
	return c
}

// PageData is the template context for the HTML artifact.
type PageData struct {
	Title       string
	GeneratedAt time.Time
	RunID       string
	Counts      Counts
	Records     []model.RiskRecord
}

// SeverityClass maps a band to its CSS row class.
func SeverityClass(level model.Severity) string {
	return "sev-" + strings.ToLower(string(level))
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatTime": formatTime,
	"formatRisk": func(r float64) string { return strconv.FormatFloat(r, 'f', 3, 64) },
	"sevClass":   SeverityClass,
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}).Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, -apple-system, Segoe UI, Roboto, sans-serif; margin: 24px; background:#fafafa; color:#111; }
h1 { font-size: 26px; margin: 0 0 8px; }
.section { border:1px solid #e5e7eb; border-radius:16px; padding:16px 20px; margin-bottom:18px; background:#fff; }
.summary-grid { display:grid; gap:12px; grid-template-columns: repeat(auto-fit,minmax(160px,1fr)); }
.summary-card { padding:12px; border-radius:12px; border:1px solid #cbd5f5; }
.summary-card .badge { float:right; padding:2px 10px; border-radius:999px; background:#4f46e5; color:#fff; font-size:12px; }
.meta { color:#6b7280; font-size:12px; }
.table { width:100%; border-collapse:collapse; font-size:13px; }
.table th, .table td { border-bottom:1px solid #e5e7eb; padding:6px 8px; text-align:left; vertical-align:top; }
.table th { background:#f9fafb; }
.url { font-family: ui-monospace, SFMono-Regular, Menlo, Consolas, monospace; }
tr.sev-low { background-color:#d4edda; }
tr.sev-medium { background-color:#fff3cd; }
tr.sev-high { background-color:#f8d7da; }
.footer { text-align:center; font-size:12px; color:#6b7280; margin-top:24px; }
</style>
</head>
<body>
<header>
  <h1>{{.Title}}</h1>
  <p class="meta">Generated at {{formatTime .GeneratedAt}}{{if .RunID}} &middot; run {{.RunID}}{{end}}</p>
</header>
<section id="summary" class="section">
  <div class="summary-grid">
    <div class="summary-card"><strong>Total Events</strong><span class="badge">{{.Counts.Total}}</span></div>
    <div class="summary-card sev-high"><strong>High</strong><span class="badge">{{.Counts.High}}</span></div>
    <div class="summary-card sev-medium"><strong>Medium</strong><span class="badge">{{.Counts.Medium}}</span></div>
    <div class="summary-card sev-low"><strong>Low</strong><span class="badge">{{.Counts.Low}}</span></div>
  </div>
</section>
<section id="records" class="section">
  <table class="table">
    <thead>
      <tr><th>timestamp</th><th>page_url</th><th>https</th><th>num_links</th><th>num_forms</th><th>has_login_form</th><th>note</th><th>risk</th><th>risk_level</th><th>risk_reason</th><th>description</th></tr>
    </thead>
    <tbody>
    {{- range .Records}}
      <tr class="{{sevClass .RiskLevel}}" data-risk="{{formatRisk .Risk}}">
        <td>{{formatTime .Timestamp}}</td>
        <td class="url">{{.PageURL}}</td>
        <td>{{.HTTPS}}</td>
        <td>{{.NumLinks}}</td>
        <td>{{.NumForms}}</td>
        <td>{{.HasLoginForm}}</td>
        <td>{{deref .Note}}</td>
        <td>{{formatRisk .Risk}}</td>
        <td>{{.RiskLevel}}</td>
        <td>{{.RiskReason}}</td>
        <td>{{.Description}}</td>
      </tr>
    {{- end}}
    </tbody>
  </table>
</section>
<footer class="footer">
  SEA-SEC risk report generated at {{formatTime .GeneratedAt}}
</footer>
</body>
</html>
`))

// RenderHTML renders the records table, one severity-classed row per record.
func RenderHTML(w io.Writer, data PageData) error {
	data.Counts = CountLevels(data.Records)
	return htmlTemplate.Execute(w, data)
}
