package cli

import (
	"encoding/json"
	"errors"
	"time"

	"pickup/internal/auth"
	"pickup/internal/response"

	"github.com/spf13/cobra"
)

func newTokenCommand(env envFunc) *cobra.Command {
	var playerID int64
	var name string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a player token signed with JWT_ACCESS_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := env()
			if cfg.JWTAccessSecret == "" {
				return errors.New("JWT_ACCESS_SECRET is not set")
			}
			token, err := auth.GenerateToken([]byte(cfg.JWTAccessSecret), playerID, name, ttl)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(response.TokenResponse{AccessToken: token})
		},
	}
	cmd.Flags().Int64Var(&playerID, "player", 0, "player id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	_ = cmd.MarkFlagRequired("player")
	return cmd
}
