package cmd

import (
	"fmt"
	"time"

	"homenotes/auth"
	"homenotes/models"

	"github.com/rohanthewiz/serr"
	"github.com/spf13/cobra"
)

var (
	tokenUID   string
	tokenName  string
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a sign-in token for a household member",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return serr.New("auth.jwt_secret (or HOMENOTES_JWT_SECRET) is required to issue tokens")
		}
		if tokenUID == "" {
			tokenUID = models.NewID()
		}
		issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret)
		if err != nil {
			return err
		}
		token, err := issuer.Issue(models.User{UID: tokenUID, Name: tokenName, Email: tokenEmail}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUID, "uid", "", "user id (a new one when empty)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email address")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "token lifetime, 0 for no expiry")
	rootCmd.AddCommand(tokenCmd)
}
