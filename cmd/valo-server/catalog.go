package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daffatgi02/valo-apps-backend/catalog"
	"github.com/daffatgi02/valo-apps-backend/internal/config"
	"github.com/daffatgi02/valo-apps-backend/internal/logger"
)

var errCatalogNotReady = errors.New("catalog not ready")

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the shared game catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load skins, bundles and the client version once and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			log := logger.NewWithWriter("valo-server", cfg.LogLevel, os.Stderr)
			cat := catalog.New(newUpstream(cfg, log, nil, nil), catalogOptions(cfg, log, nil)...)

			loadErr := cat.Load(cmd.Context())
			v, freshness := cat.Version(cmd.Context())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{
				"health":    cat.Health(),
				"version":   v,
				"freshness": freshness,
			}); err != nil {
				return err
			}
			if loadErr != nil {
				return fmt.Errorf("%w: %w", errCatalogNotReady, loadErr)
			}
			return nil
		},
	})
	return cmd
}
