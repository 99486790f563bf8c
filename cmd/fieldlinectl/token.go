package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fieldline.dev/internal/audit"
	"fieldline.dev/internal/config"
	"fieldline.dev/internal/token"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Session token helpers",
}

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect <token>",
	Short: "Verify a token against the configured signing key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		recorder, err := audit.NewRecorder(audit.NewMemoryStore(), audit.WithRelaxedMode())
		if err != nil {
			return err
		}
		svc, err := token.NewService(cfg.SigningKey, recorder,
			token.WithTTL(cfg.TokenTTL),
			token.WithRefreshGrace(cfg.RefreshGrace),
			token.WithIssuer(cfg.Issuer),
		)
		if err != nil {
			return err
		}

		p, err := svc.Verify(cmd.Context(), args[0])
		switch {
		case errors.Is(err, token.ErrExpired):
			fmt.Println("status: expired")
			return nil
		case errors.Is(err, token.ErrInvalid):
			fmt.Println("status: invalid")
			return nil
		case err != nil:
			return err
		}
		fmt.Printf("status: valid\nprincipal: %s\nrole: %s\n", p.ID, p.Role)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenInspectCmd)
	rootCmd.AddCommand(tokenCmd)
}
