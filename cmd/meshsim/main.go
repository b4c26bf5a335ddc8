// Command meshsim runs a hub and a handful of candidate devices in one
// process against real radiobus sockets, ticking them for -duration while
// the hub's INCLUDE_OPEN broadcasts drive inclusion (no application
// traffic is sent), then prints the hub's routing table and each node's
// packet trace. It is the single-shot counterpart to meshd's long-running
// serve command, grounded in the teacher's flag-based daemon style (no
// subcommands, one job per invocation).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/radiomesh/radiomesh/internal/device"
	"github.com/radiomesh/radiomesh/internal/radiobus"
	"github.com/radiomesh/radiomesh/pkg/keys"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

func main() {
	nodeCount := flag.Int("nodes", 3, "number of candidate devices to run alongside the hub")
	duration := flag.Duration("duration", 15*time.Second, "how long to run the simulation before exiting")
	basePort := flag.Int("base-port", 15000, "first loopback TCP port to bind; each node takes the next one")
	includeInterval := flag.Duration("include-interval", time.Second, "how often the hub rebroadcasts INCLUDE_OPEN")
	logLevel := flag.String("log-level", "info", "zerolog level")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	ids := make([]mesh.DeviceID, *nodeCount+1)
	endpoints := make([]string, *nodeCount+1)
	for i := range ids {
		ids[i] = mesh.DeviceID{0, 0, 0, byte(i + 1)}
		endpoints[i] = fmt.Sprintf("tcp://127.0.0.1:%d", *basePort+i)
	}

	devices := make([]*device.Device, 0, len(ids))
	radios := make([]*radiobus.Radio, 0, len(ids))
	for i, id := range ids {
		peers := make([]string, 0, len(endpoints)-1)
		for j, ep := range endpoints {
			if j != i {
				peers = append(peers, ep)
			}
		}
		radio, err := radiobus.New(ctx, radiobus.Config{
			ID:             id,
			ListenEndpoint: endpoints[i],
			PeerEndpoints:  peers,
		})
		if err != nil {
			log.Fatal().Err(err).Int("node", i).Msg("start radio bus")
		}
		radios = append(radios, radio)

		role := mesh.DeviceTypeStandard
		interval := time.Duration(0)
		if i == 0 {
			role = mesh.DeviceTypeHub
			interval = *includeInterval
		}
		dev, err := device.New(device.Config{
			ID:                  id,
			Role:                role,
			Radio:               radio,
			Keys:                keys.NewKeyManager(keys.NewMemStorage()),
			IncludeOpenInterval: interval,
		})
		if err != nil {
			log.Fatal().Err(err).Int("node", i).Msg("create device")
		}
		devices = append(devices, dev)
	}

	for i, dev := range devices {
		go func(i int, d *device.Device) {
			if err := d.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Int("node", i).Msg("device run loop exited")
			}
		}(i, dev)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			for i, dev := range devices {
				if err := dev.Tick(ctx); err != nil {
					log.Debug().Err(err).Int("node", i).Msg("tick")
				}
			}
		}
	}

	for _, r := range radios {
		r.Close()
	}

	hub := devices[0]
	fmt.Printf("hub %s routing table:\n", hub.ID)
	for _, rt := range hub.RoutingSnapshot() {
		fmt.Printf("  dest=%s next_hop=%s hops=%d rssi=%d\n", rt.Dest, rt.NextHop, rt.HopCount, rt.RSSI)
	}

	for i, dev := range devices {
		fmt.Printf("node %d (%s) trace:\n", i, dev.ID)
		for _, t := range dev.Trace.Recent() {
			fmt.Printf("  %s %-8s topic=%d peer=%s packet=%d\n", t.At.Format(time.RFC3339Nano), t.Direction, t.Topic, t.Peer, t.PacketID)
		}
	}
}
