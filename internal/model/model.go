package model

import (
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Severity is the Low/Medium/High band derived from a risk value.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// SecurityEvent is one structural observation of a crawled page.
type SecurityEvent struct {
	Timestamp    time.Time         `json:"timestamp"`
	PageURL      string            `json:"page_url" validate:"required,url"`
	HTTPS        bool              `json:"https"`
	NumLinks     int               `json:"num_links" validate:"min=0"`
	NumForms     int               `json:"num_forms" validate:"min=0"`
	HasLoginForm bool              `json:"has_login_form"`
	Headers      map[string]string `json:"headers"`
	Note         *string           `json:"note"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the field constraints of the event. PageURL must be an
// absolute http or https URL.
func (e SecurityEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return errors.Wrap(err, "security event")
	}
	u, err := url.Parse(e.PageURL)
	if err != nil {
		return errors.Wrap(err, "security event: page_url")
	}
	if !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.Newf("security event: page_url %q is not an absolute http(s) URL", e.PageURL)
	}
	return nil
}

// RiskRecord is a SecurityEvent joined with its risk output. RiskLevel is
// always derived from Risk.
type RiskRecord struct {
	Timestamp    time.Time         `json:"timestamp"`
	PageURL      string            `json:"page_url"`
	HTTPS        bool              `json:"https"`
	NumLinks     int               `json:"num_links"`
	NumForms     int               `json:"num_forms"`
	HasLoginForm bool              `json:"has_login_form"`
	Headers      map[string]string `json:"headers"`
	Note         *string           `json:"note"`
	Risk         float64           `json:"risk"`
	RiskLevel    Severity          `json:"risk_level"`
	RiskReason   string            `json:"risk_reason"`
	Description  string            `json:"description"`
}

// TrainResult describes a completed training run.
type TrainResult struct {
	TrainedOn int    `json:"trained_on"`
	ModelPath string `json:"model_path"`
}

// ReportSummary is returned after an artifact set has been published.
// Optional renderings are nil when they were not produced; Skipped carries
// the reason keyed by artifact name.
type ReportSummary struct {
	TotalEvents    int               `json:"total_events"`
	Anomalies      int               `json:"anomalies"`
	RunID          string            `json:"run_id"`
	GeneratedAt    time.Time         `json:"generated_at"`
	ReportHTMLPath string            `json:"report_html_path"`
	ReportCSVPath  string            `json:"report_csv_path"`
	ReportJSONPath string            `json:"report_json_path"`
	ReportPDFPath  *string           `json:"report_pdf_path"`
	ReportPNGPath  *string           `json:"report_png_path"`
	Skipped        map[string]string `json:"skipped,omitempty"`
}
