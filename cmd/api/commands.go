package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podnotes/api/internal/outline"
	"podnotes/api/internal/search"
)

func NewMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore(cmd.Context(), e.cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			e.log.Info().Str("store", e.cfg.StoreDriver).Msg("schema up to date")
			return nil
		},
	}
}

// NewCheckCommand audits one container's tree against the outline invariants.
func NewCheckCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "check <container-id>",
		Short: "Verify the structural invariants of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, nodes, err := openStore(cmd.Context(), e.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			items, err := nodes.ListNodes(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load container %s: %w", args[0], err)
			}
			if err := outline.CheckInvariants(items); err != nil {
				return fmt.Errorf("container %s is inconsistent:\n%w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d nodes\n", len(items))
			return nil
		},
	}
}

func NewReindexCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every node into Meilisearch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.MeiliURL == "" {
				return fmt.Errorf("MEILI_URL is not set")
			}
			db, nodes, err := openStore(cmd.Context(), e.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			meiliClient := search.NewMeili(e.cfg.MeiliURL, e.cfg.MeiliMasterKey, e.log)
			svc := search.NewService(meiliClient, search.NewSQLSearch(db, nodes.Dialect()), e.log)
			defer svc.Close()
			if !meiliClient.Healthy() {
				return fmt.Errorf("meilisearch at %s is unavailable", e.cfg.MeiliURL)
			}
			svc.ReindexAll(cmd.Context())
			return nil
		},
	}
}
