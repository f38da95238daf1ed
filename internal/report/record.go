package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/selimozcann/seasec/internal/explain"
	"github.com/selimozcann/seasec/internal/model"
	"github.com/selimozcann/seasec/internal/risk"
)

// Order selects how joined records are arranged.
type Order string

const (
	// OrderByRisk sorts by descending risk; equal risks keep input order.
	OrderByRisk Order = "risk"
	// OrderInput keeps the input sequence.
	OrderInput Order = "input"
)

// ParseOrder accepts "risk" or "input".
func ParseOrder(s string) (Order, bool) {
	switch Order(s) {
	case OrderByRisk, OrderInput:
		return Order(s), true
	}
	return "", false
}

// CSVHeader is the fixed column order of the tabular artifact.
var CSVHeader = []string{
	"timestamp",
	"page_url",
	"https",
	"num_links",
	"num_forms",
	"has_login_form",
	"headers",
	"note",
	"risk",
	"risk_level",
	"risk_reason",
	"description",
}

// Join pairs events[i] with risks[i] and arranges the result by order.
// Callers must pass slices of equal length.
func Join(events []model.SecurityEvent, risks []float64, explainer explain.ReasonExplainer, order Order) []model.RiskRecord {
	if explainer == nil {
		explainer = explain.Default()
	}
	records := make([]model.RiskRecord, len(events))
	for i, ev := range events {
		r := risks[i]
		level := risk.Classify(r)
		reason, desc := explainer.Explain(ev, r, level)
		headers := make(map[string]string, len(ev.Headers))
		for k, v := range ev.Headers {
			headers[k] = v
		}
		records[i] = model.RiskRecord{
			Timestamp:    ev.Timestamp,
			PageURL:      ev.PageURL,
			HTTPS:        ev.HTTPS,
			NumLinks:     ev.NumLinks,
			NumForms:     ev.NumForms,
			HasLoginForm: ev.HasLoginForm,
			Headers:      headers,
			Note:         ev.Note,
			Risk:         r,
			RiskLevel:    level,
			RiskReason:   reason,
			Description:  desc,
		}
	}
	if order != OrderInput {
		sort.SliceStable(records, func(i, j int) bool { return records[i].Risk > records[j].Risk })
	}
	return records
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []model.RiskRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if records == nil {
		records = []model.RiskRecord{}
	}
	if err := enc.Encode(records); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteCSV writes a header row followed by one row per record, columns in
// CSVHeader order.
func WriteCSV(w io.Writer, records []model.RiskRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row, err := csvRow(rec)
		if err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(rec model.RiskRecord) ([]string, error) {
	headers, err := json.Marshal(rec.Headers)
	if err != nil {
		return nil, err
	}
	note := ""
	if rec.Note != nil {
		note = *rec.Note
	}
	return []string{
		formatTime(rec.Timestamp),
		rec.PageURL,
		strconv.FormatBool(rec.HTTPS),
		strconv.Itoa(rec.NumLinks),
		strconv.Itoa(rec.NumForms),
		strconv.FormatBool(rec.HasLoginForm),
		string(headers),
		note,
		strconv.FormatFloat(rec.Risk, 'f', -1, 64),
		string(rec.RiskLevel),
		rec.RiskReason,
		rec.Description,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
