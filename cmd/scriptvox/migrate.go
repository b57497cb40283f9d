package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/scriptvox/internal/botstore"
	"github.com/MrWong99/scriptvox/internal/config"
)

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the bots table in the configured PostgreSQL store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Backend != config.StorePostgres {
				return fmt.Errorf("migrate needs store.backend %q, config has %q", config.StorePostgres, cfg.Store.Backend)
			}
			s, err := botstore.OpenPostgres(cmd.Context(), cfg.Store.PostgresDSN, cfg.Store.MaxConns)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
