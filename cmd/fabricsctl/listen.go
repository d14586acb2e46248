package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mxl-media/fabrics/internal/config"
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/metrics"
	"github.com/mxl-media/fabrics/internal/netfabric"
	"github.com/mxl-media/fabrics/internal/obslog"
	"github.com/mxl-media/fabrics/internal/region"
	"github.com/mxl-media/fabrics/internal/target"
	"github.com/mxl-media/fabrics/internal/targetinfo"
)

func listenCmd() *cobra.Command {
	var configPath, metricsAddr string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run a Target and print its TargetInfo for a peer Initiator to connect to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(configPath, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML target config (required)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on (e.g. :9090); empty disables it")
	cmd.MarkFlagRequired("config")
	return cmd
}

func runListen(configPath, metricsAddr string) error {
	cfg, err := config.LoadTarget(configPath)
	if err != nil {
		return err
	}

	provider, err := netfabric.ProviderFromString(strings.ToLower(cfg.Endpoint.Provider))
	if err != nil {
		return err
	}

	var regions *region.RegionSet
	switch {
	case cfg.Video != nil:
		regions, err = cfg.Video.BuildRegionSet()
	case cfg.Audio != nil:
		regions, err = cfg.Audio.BuildRegionSet()
	}
	if err != nil {
		return fmt.Errorf("building region set: %w", err)
	}

	if metricsAddr != "" {
		srv, errCh := metrics.Serve(metricsAddr)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			metrics.Shutdown(ctx, srv)
		}()
		go func() {
			if err, ok := <-errCh; ok && err != nil {
				obslog.With("fabricsctl").Warn("metrics server stopped", "err", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tgt, info, err := target.Setup(ctx, target.Config{
		Provider:       provider,
		Connectionless: cfg.Endpoint.Connectionless,
		Node:           cfg.Endpoint.Node,
		Service:        cfg.Endpoint.Service,
		Regions:        regions,
	})
	if err != nil {
		return fmt.Errorf("target setup: %w", err)
	}
	defer tgt.Shutdown()

	text, err := targetinfo.ToString(info)
	if err != nil {
		return err
	}
	fmt.Println(text)

	log := obslog.With("fabricsctl.listen")
	log.Info("listening", "provider", provider, "node", cfg.Endpoint.Node, "service", cfg.Endpoint.Service)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown requested")
			return nil
		default:
		}

		res, err := tgt.ReadBlocking(ctx, 1*time.Second)
		switch {
		case err == nil:
			log.Info("transfer arrived", "layout", res.Layout, "ring_index", res.RingIndex,
				"last_slice", res.LastSlice, "bounce_entry", res.BounceEntryIndex,
				"head_index", res.HeadIndex, "count", res.Count)
		case ferrors.Is(err, ferrors.StatusTimeout):
			// no transfer in this window; keep polling
		case ferrors.Is(err, ferrors.StatusInterrupted):
			log.Info("shut down by peer or local Shutdown")
			return nil
		default:
			return fmt.Errorf("read: %w", err)
		}
	}
}
