package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"marginalia/api/internal/config"
	"marginalia/api/internal/nipsa"
)

func newNIPSACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nipsa",
		Short: "Manage the shadow-ban list",
		Long: `List, add or remove users whose annotations are hidden from everyone
but themselves. Users are given as a full "acct:name@authority" id or as a
bare username on MARGINALIA_AUTH_DOMAIN.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print every shadow-banned userid",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				users, err := openNIPSA(config.Load())
				if err != nil {
					return err
				}
				defer users.Close()
				ids, err := users.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			},
		},
		nipsaChangeCmd("add", "Shadow-ban a user", (*nipsa.RedisStore).Add),
		nipsaChangeCmd("remove", "Lift a shadow ban", (*nipsa.RedisStore).Remove),
	)
	return cmd
}

func nipsaChangeCmd(use, short string, change func(*nipsa.RedisStore, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			userID, err := nipsa.NormalizeUserID(args[0], cfg.AuthDomain)
			if err != nil {
				return fmt.Errorf("could not find user %q on %s: %w", args[0], cfg.AuthDomain, err)
			}
			users, err := openNIPSA(cfg)
			if err != nil {
				return err
			}
			defer users.Close()
			if err := change(users, cmd.Context(), userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", use, userID)
			return nil
		},
	}
}

func openNIPSA(cfg config.Config) (*nipsa.RedisStore, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, errors.New("REDIS_URL is not set")
	}
	return nipsa.NewRedisStore(cfg.RedisURL)
}
