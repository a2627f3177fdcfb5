package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"homenotes/auth"
	"homenotes/remote/memstore"
	"homenotes/remote/relay"

	"github.com/rohanthewiz/logger"
	"github.com/spf13/cobra"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Host a shared remote store that devices reach over websockets",
	Long: `relay keeps the shared document tree in memory and serves it on /ws.
With auth.jwt_secret set, clients must present a token issued by "homenotes token".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var verify relay.TokenVerifier
		if cfg.Auth.JWTSecret != "" {
			issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret)
			if err != nil {
				return err
			}
			verify = issuer.Verify
		} else {
			logger.Info("Relay running without authentication")
		}

		srv := relay.NewServer(memstore.New(), verify)
		return srv.ListenAndServe(ctx, cfg.Relay.Address)
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
}
