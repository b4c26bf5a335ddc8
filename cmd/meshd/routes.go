package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/radiomesh/radiomesh/internal/config"
	"github.com/radiomesh/radiomesh/internal/coordstore"
)

var routesDeviceID string

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the coordinator's last known routing snapshot for a node",
	RunE:  runRoutes,
}

func init() {
	routesCmd.Flags().StringVar(&routesDeviceID, "device", "", "device id (8 hex characters) to inspect")
	routesCmd.MarkFlagRequired("device")
}

func runRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	id, err := parseDeviceIDFlag(routesDeviceID)
	if err != nil {
		return fmt.Errorf("--device: %w", err)
	}

	store, err := coordstore.Open(cfg.CoordDB)
	if err != nil {
		return fmt.Errorf("open coordinator store: %w", err)
	}
	defer store.Close()

	rows, err := store.LatestRoutingSnapshot(context.Background(), id)
	if err != nil {
		return fmt.Errorf("load routing snapshot: %w", err)
	}
	if len(rows) == 0 {
		fmt.Println("no routing snapshot recorded for this node")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEST\tNEXT HOP\tHOPS\tRSSI\tLAST SEEN")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", r.Dest, r.NextHop, r.HopCount, r.RSSI, r.LastSeen.Format("2006-01-02T15:04:05Z"))
	}
	return w.Flush()
}
