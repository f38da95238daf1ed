package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/selimozcann/seasec/internal/app"
	"github.com/selimozcann/seasec/internal/config"
	"github.com/selimozcann/seasec/internal/logger"
	"github.com/selimozcann/seasec/internal/metrics"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:           "seasec",
	Short:         "Crawl a site, learn its normal page structure and report risky pages",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file")
	pf.String("data-dir", "", "directory for events, model and reports (default \"data\")")
	pf.String("log-level", "", "debug, info, warn or error (default \"info\")")
	_ = v.BindPFlag("data_dir", pf.Lookup("data-dir"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))

	rootCmd.AddCommand(serveCmd, siteCmd, ingestCmd, trainCmd, reportCmd)
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		red := color.New(color.FgRed)
		_, _ = red.Fprintf(os.Stderr, "error: %v\n", err)
		if hints := errors.GetAllHints(err); len(hints) > 0 {
			_, _ = fmt.Fprintf(os.Stderr, "hint: %s\n", strings.Join(hints, "; "))
		}
		os.Exit(1)
	}
}

type runtime struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	svc     *app.Service
}

func setup() (*runtime, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	return &runtime{
		cfg:     cfg,
		log:     log,
		metrics: m,
		svc:     app.FromConfig(cfg, log, m),
	}, nil
}

func (rt *runtime) close() { _ = rt.log.Sync() }

// withRuntime adapts a command body that needs the assembled service.
func withRuntime(fn func(cmd *cobra.Command, args []string, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.close()
		return fn(cmd, args, rt)
	}
}
