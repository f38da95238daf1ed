package report

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/selimozcann/seasec/internal/model"
)

// ErrRenderBackendUnavailable marks a rendering backend that cannot run in
// this environment. It never fails an aggregation.
var ErrRenderBackendUnavailable = errors.New("render backend unavailable")

// Document is everything an optional renderer may draw from.
type Document struct {
	Title       string
	GeneratedAt time.Time
	HTML        []byte
	Records     []model.RiskRecord
	Counts      Counts
}

// Renderer produces one optional artifact, written as report.<Artifact()>.
type Renderer interface {
	Artifact() string
	Render(ctx context.Context, doc Document, w io.Writer) error
}

var severityRGB = map[model.Severity][3]int{
	model.SeverityLow:    {0xd4, 0xed, 0xda},
	model.SeverityMedium: {0xff, 0xf3, 0xcd},
	model.SeverityHigh:   {0xf8, 0xd7, 0xda},
}

// PDFRenderer lays the records table out on landscape A4 pages.
type PDFRenderer struct{}

func (PDFRenderer) Artifact() string { return "pdf" }

func (PDFRenderer) Render(_ context.Context, doc Document, w io.Writer) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(doc.Title, true)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	cols := []struct {
		title string
		width float64
	}{
		{"page_url", 110}, {"https", 14}, {"links", 16}, {"forms", 16},
		{"login", 16}, {"risk", 18}, {"level", 20}, {"reason", 67},
	}
	header := func() {
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(0xe5, 0xe7, 0xeb)
		for _, c := range cols {
			pdf.CellFormat(c.width, 6, c.title, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated at %s - %d events, %d high, %d medium, %d low",
		formatTime(doc.GeneratedAt), doc.Counts.Total, doc.Counts.High, doc.Counts.Medium, doc.Counts.Low), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	header()

	for _, rec := range doc.Records {
		rgb := severityRGB[rec.RiskLevel]
		pdf.SetFillColor(rgb[0], rgb[1], rgb[2])
		cells := []string{
			truncate(rec.PageURL, 70),
			fmt.Sprint(rec.HTTPS),
			fmt.Sprint(rec.NumLinks),
			fmt.Sprint(rec.NumForms),
			fmt.Sprint(rec.HasLoginForm),
			fmt.Sprintf("%.3f", rec.Risk),
			string(rec.RiskLevel),
			truncate(rec.RiskReason, 40),
		}
		for i, c := range cols {
			pdf.CellFormat(c.width, 6, tr(cells[i]), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}
	if err := pdf.Error(); err != nil {
		return errors.Wrap(err, "layout pdf")
	}
	return pdf.Output(w)
}

// PNGRenderer draws the records table into a raster image using a fixed
// 7x13 bitmap font.
type PNGRenderer struct {
	// MaxRows caps the number of drawn records; zero means 500.
	MaxRows int
}

func (PNGRenderer) Artifact() string { return "png" }

func (p PNGRenderer) Render(ctx context.Context, doc Document, w io.Writer) error {
	const (
		width     = 1280
		rowHeight = 18
		margin    = 12
		headerH   = 60
	)
	maxRows := p.MaxRows
	if maxRows <= 0 {
		maxRows = 500
	}
	rows := doc.Records
	truncated := false
	if len(rows) > maxRows {
		rows = rows[:maxRows]
		truncated = true
	}
	height := headerH + (len(rows)+2)*rowHeight + margin

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
	text := func(x, y int, s string) {
		d.Dot = fixed.P(x, y)
		d.DrawString(s)
	}

	text(margin, 22, doc.Title)
	text(margin, 40, fmt.Sprintf("Generated at %s - %d events, %d high, %d medium, %d low",
		formatTime(doc.GeneratedAt), doc.Counts.Total, doc.Counts.High, doc.Counts.Medium, doc.Counts.Low))

	colX := []int{margin, 760, 820, 880, 940, 1010, 1080}
	y := headerH
	draw.Draw(img, image.Rect(0, y, width, y+rowHeight), &image.Uniform{color.RGBA{0xe5, 0xe7, 0xeb, 0xff}}, image.Point{}, draw.Src)
	for i, h := range []string{"page_url", "https", "links", "forms", "login", "risk", "level"} {
		text(colX[i], y+13, h)
	}

	for _, rec := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		y += rowHeight
		rgb := severityRGB[rec.RiskLevel]
		fill := &image.Uniform{color.RGBA{uint8(rgb[0]), uint8(rgb[1]), uint8(rgb[2]), 0xff}}
		draw.Draw(img, image.Rect(0, y, width, y+rowHeight), fill, image.Point{}, draw.Src)
		cells := []string{
			truncate(rec.PageURL, 105),
			fmt.Sprint(rec.HTTPS),
			fmt.Sprint(rec.NumLinks),
			fmt.Sprint(rec.NumForms),
			fmt.Sprint(rec.HasLoginForm),
			fmt.Sprintf("%.3f", rec.Risk),
			string(rec.RiskLevel),
		}
		for i, c := range cells {
			text(colX[i], y+13, c)
		}
	}
	if truncated {
		text(margin, y+rowHeight+13, fmt.Sprintf("... %d more records in the structured artifacts", len(doc.Records)-maxRows))
	}
	return png.Encode(w, img)
}

// CommandRenderer pipes the HTML document into an external converter and
// takes the artifact from its stdout, e.g. "wkhtmltopdf - -".
type CommandRenderer struct {
	Name    string
	Command string
	Args    []string
}

func (c CommandRenderer) Artifact() string { return c.Name }

func (c CommandRenderer) Render(ctx context.Context, doc Document, w io.Writer) error {
	path, err := exec.LookPath(c.Command)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s renderer %q", c.Name, c.Command), ErrRenderBackendUnavailable)
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Stdin = bytes.NewReader(doc.HTML)
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "%s renderer %q: %s", c.Name, c.Command, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// truncate shortens s to at most n runes, ending in "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
