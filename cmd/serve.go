package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/selimozcann/seasec/internal/banner"
	"github.com/selimozcann/seasec/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		banner.Print(cmd.OutOrStdout(), Version, rt.cfg.ListenAddr, rt.cfg.DataDir)
		srv := server.New(rt.svc, rt.metrics, rt.log.Named("http"), rt.cfg.Server.RequestTimeout)
		return srv.Run(ctx, rt.cfg.ListenAddr)
	}),
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default \":8000\")")
	_ = v.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen"))
}
