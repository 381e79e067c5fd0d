package main

import (
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-mel/fieldqc-cli/internal/boundary"
	"github.com/meridian-mel/fieldqc-cli/internal/model"
	"github.com/meridian-mel/fieldqc-cli/internal/server"
)

var (
	servePort       int
	serveBoundaries string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quality-check HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := engineOptions()
		if err != nil {
			return err
		}

		boundaryPath := serveBoundaries
		if boundaryPath == "" {
			boundaryPath = cfg.Boundary.Path
		}
		var boundaries []model.Boundary
		if boundaryPath != "" {
			boundaries, err = boundary.Load(boundaryPath, boundaryOptions())
			if err != nil {
				return err
			}
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(port, opts, boundaries, st)

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVarP(&serveBoundaries, "boundaries", "b", "", "boundary file (geojson or shapefile)")
	rootCmd.AddCommand(serveCmd)
}
