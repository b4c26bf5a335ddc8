package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/radiomesh/radiomesh/internal/api"
	"github.com/radiomesh/radiomesh/internal/auth"
	"github.com/radiomesh/radiomesh/internal/config"
	"github.com/radiomesh/radiomesh/internal/coordstore"
	"github.com/radiomesh/radiomesh/internal/device"
	"github.com/radiomesh/radiomesh/internal/events"
	"github.com/radiomesh/radiomesh/internal/models"
	"github.com/radiomesh/radiomesh/internal/nodestore"
	"github.com/radiomesh/radiomesh/internal/radiobus"
	"github.com/radiomesh/radiomesh/pkg/inclusion"
	"github.com/radiomesh/radiomesh/pkg/keys"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator hub against a real radio transport",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Log.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("unrecognized log level, defaulting to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	hubID, err := parseDeviceIDFlag(cfg.Mesh.HubID)
	if err != nil {
		return fmt.Errorf("mesh.hub_id: %w", err)
	}

	ns, err := nodestore.Open(cfg.NodeStore.Path)
	if err != nil {
		return fmt.Errorf("open node store: %w", err)
	}
	defer ns.Close()
	km := keys.NewKeyManager(ns)

	store, err := coordstore.Open(cfg.CoordDB)
	if err != nil {
		return fmt.Errorf("open coordinator store: %w", err)
	}
	defer store.Close()

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.ClientID),
		nats.ReconnectWait(cfg.NATS.ReconnectInterval),
		nats.MaxReconnects(cfg.NATS.MaxReconnects))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	publisher := events.NewPublisher(nc)
	subscriber := events.NewSubscriber(nc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	radio, err := radiobus.New(ctx, radiobus.Config{
		ID:             hubID,
		ListenEndpoint: cfg.RadioBus.PubEndpoint,
		PeerEndpoints:  cfg.RadioBus.Peers,
	})
	if err != nil {
		return fmt.Errorf("start radio bus: %w", err)
	}
	defer radio.Close()

	dev, err := device.New(device.Config{
		ID:                  hubID,
		Role:                mesh.DeviceTypeHub,
		Radio:               radio,
		Keys:                km,
		IncludeOpenInterval: cfg.Mesh.IncludeOpenInterval,
	})
	if err != nil {
		return fmt.Errorf("create hub device: %w", err)
	}

	authMgr := auth.NewManager(&cfg.JWT)
	apiServer := api.NewServer(cfg, store, authMgr, dev)
	subscriber.Handle(apiServer.EventHandler())
	if err := subscriber.Start(); err != nil {
		return fmt.Errorf("start event subscriber: %w", err)
	}
	defer subscriber.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := dev.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("device run loop exited")
		}
	}()
	go tickLoop(ctx, dev)
	go bridgeLoop(ctx, dev, hubID, store, publisher)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("coordinator API stopped")
			cancel()
		}
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("error shutting down API server")
	}
	cancel()
	return nil
}

// tickLoop drives Device.Tick on a fixed schedule, the same role a
// simulator's discrete-event clock plays in tests.
func tickLoop(ctx context.Context, dev *device.Device) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := dev.Tick(ctx); err != nil {
				log.Debug().Err(err).Msg("tick")
			}
		}
	}
}

// bridgeLoop mirrors a running Device's trace, inclusion audit, and
// routing state into the fleet-wide store and event bus. TraceEvent and
// AuditEntry carry no sequence number, so each pass tracks the newest
// timestamp it has already published and only forwards entries after it;
// if the ring buffer wraps between passes, the unseen tail is lost rather
// than replayed, acceptable for a diagnostic feed.
func bridgeLoop(ctx context.Context, dev *device.Device, nodeID mesh.DeviceID, store coordstore.Store, publisher *events.Publisher) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastTrace, lastAudit, lastSnapshot time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lastTrace = publishTrace(ctx, dev, nodeID, store, publisher, lastTrace)
			lastAudit = publishAudit(ctx, dev, nodeID, store, publisher, lastAudit)
			lastSnapshot = publishSnapshot(ctx, dev, nodeID, store, lastSnapshot)
		}
	}
}

func publishTrace(ctx context.Context, dev *device.Device, nodeID mesh.DeviceID, store coordstore.Store, publisher *events.Publisher, since time.Time) time.Time {
	newest := since
	for _, t := range dev.Trace.Recent() {
		if !t.At.After(since) {
			continue
		}
		e := events.FromTrace(nodeID, t)
		if err := store.RecordEvent(ctx, e); err != nil {
			log.Warn().Err(err).Msg("record event")
		}
		if err := publisher.Publish(e); err != nil {
			log.Warn().Err(err).Msg("publish event")
		}
		if t.At.After(newest) {
			newest = t.At
		}
	}
	return newest
}

func publishAudit(ctx context.Context, dev *device.Device, nodeID mesh.DeviceID, store coordstore.Store, publisher *events.Publisher, since time.Time) time.Time {
	newest := since
	for _, a := range dev.AuditLog.Recent() {
		if !a.At.After(since) {
			continue
		}
		entry := events.FromAudit(a.Peer, hubStateFor(dev, a.Peer), a)
		if err := store.RecordInclusionAudit(ctx, entry); err != nil {
			log.Warn().Err(err).Msg("record inclusion audit")
		}
		if a.At.After(newest) {
			newest = a.At
		}
	}
	return newest
}

func publishSnapshot(ctx context.Context, dev *device.Device, nodeID mesh.DeviceID, store coordstore.Store, since time.Time) time.Time {
	now := time.Now()
	if now.Sub(since) < 5*time.Second {
		return since
	}
	rows := make([]models.RouteSnapshot, 0, len(dev.RoutingSnapshot()))
	for _, e := range dev.RoutingSnapshot() {
		rows = append(rows, models.FromRouteEntry(nodeID, e, now))
	}
	if err := store.SaveRoutingSnapshot(ctx, nodeID, rows, now); err != nil {
		log.Warn().Err(err).Msg("save routing snapshot")
	}
	return now
}

// hubStateFor looks up the candidate's current hub-side session state, if
// this device plays the hub role and one exists; zero value otherwise
// (a non-hub node's own audit entries have no hub session to report).
func hubStateFor(dev *device.Device, candidate mesh.DeviceID) inclusion.HubState {
	if dev.Hub == nil {
		return 0
	}
	if s, ok := dev.Hub.Session(candidate); ok {
		return s.State
	}
	return 0
}

func parseDeviceIDFlag(s string) (mesh.DeviceID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return mesh.DeviceID{}, err
	}
	if len(b) != 4 {
		return mesh.DeviceID{}, fmt.Errorf("device id must be 4 bytes (8 hex characters), got %d", len(b))
	}
	var id mesh.DeviceID
	copy(id[:], b)
	return id, nil
}
