package banner

import (
	"io"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
)

// Print writes the startup banner with the listening address and data
// directory.
func Print(w io.Writer, version, addr, dataDir string) {
	fig := figure.NewColorFigure("SEA-SEC", "doom", "blue", true)
	_, _ = io.WriteString(w, fig.ColorString())

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	_, _ = cyan.Fprintln(w, "════════════════════════════════════════════════")
	_, _ = green.Fprintf(w, "    Site risk scoring %s | listening on %s\n", version, addr)
	_, _ = green.Fprintf(w, "    data directory: %s\n", dataDir)
	_, _ = cyan.Fprintln(w, "════════════════════════════════════════════════")
}
