// Command meshd is the coordinator daemon: it runs a single RadioMesh
// Device (usually the network hub) against a real radio transport, mirrors
// that device's packet/inclusion activity into the fleet-wide store and
// event bus, and serves the operator-facing REST/websocket API.
//
// Unlike the teacher's three single-purpose daemons, meshd bundles
// multiple operations (serve, key generation, route inspection) behind
// subcommands, following the pack's cobra convention instead of the
// teacher's bare flag package.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "meshd",
	Short: "RadioMesh coordinator daemon",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/meshd.yaml", "configuration file path")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(routesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
