// Command valo-server runs the Valorant store BFF.
//
//	valo-server serve          # HTTP API plus the admin gRPC server
//	valo-server catalog check  # load the game catalog once and report health
//
// Configuration is read from VALO_* environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "valo-server",
		Short:         "Valorant store backend-for-frontend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newCatalogCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
