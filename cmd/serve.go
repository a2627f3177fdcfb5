package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"homenotes/app"
	"homenotes/web"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the device app and its web UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		srv := web.NewServer(a, rweb.ServerOptions{Address: cfg.Web.Address, Verbose: verbose})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a.Start(gctx)
			return nil
		})
		g.Go(func() error {
			errCh := make(chan error, 1)
			go func() {
				logger.Info("Web UI listening", "address", cfg.Web.Address)
				errCh <- web.Run(srv)
			}()
			select {
			case <-gctx.Done():
				return nil
			case err := <-errCh:
				return err
			}
		})

		runErr := g.Wait()
		logger.Info("Shutting down")
		if err := a.Close(); err != nil {
			logger.LogErr(err, "shutdown was not clean")
		}
		if runErr != nil && runErr != context.Canceled {
			return runErr
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
