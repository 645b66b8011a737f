package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/analyzer"
	"github.com/specwright/takeoff-cli/internal/license"
	"github.com/specwright/takeoff-cli/internal/normalize"
	"github.com/specwright/takeoff-cli/internal/pipeline"
	"github.com/specwright/takeoff-cli/internal/plugin"
	"github.com/specwright/takeoff-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		reg, err := plugin.NewRegistry(analyzer.All()...)
		if err != nil {
			return eris.Wrap(err, "build registry")
		}

		orch := pipeline.New(reg, license.New(st), st, pipeline.Options{
			Concurrency:      cfg.Pipeline.Concurrency,
			MaxDocumentBytes: cfg.Pipeline.MaxDocumentBytes,
		})

		api := server.New(st, reg, orch, normalize.New(reg), cfg.License.OrgID)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.Router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
