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
	"github.com/mxl-media/fabrics/internal/initiator"
	"github.com/mxl-media/fabrics/internal/metrics"
	"github.com/mxl-media/fabrics/internal/netfabric"
	"github.com/mxl-media/fabrics/internal/obslog"
	"github.com/mxl-media/fabrics/internal/region"
	"github.com/mxl-media/fabrics/internal/targetinfo"
)

func sendCmd() *cobra.Command {
	var configPath, metricsAddr string
	var grainIndex, payloadOffset uint64
	var startSlice, endSlice uint32
	var headIndex uint64
	var sampleCount uint32

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Run an Initiator, connect to a Target, and post one transfer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(configPath, metricsAddr, sendOpts{
				grainIndex: grainIndex, payloadOffset: payloadOffset,
				startSlice: startSlice, endSlice: endSlice,
				headIndex: headIndex, sampleCount: sampleCount,
			})
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML initiator config (required)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on (e.g. :9091); empty disables it")
	cmd.Flags().Uint64Var(&grainIndex, "grain-index", 0, "video: ring slot to transfer")
	cmd.Flags().Uint64Var(&payloadOffset, "payload-offset", 0, "video: header bytes preceding slice 0")
	cmd.Flags().Uint32Var(&startSlice, "start-slice", 0, "video: first slice (inclusive)")
	cmd.Flags().Uint32Var(&endSlice, "end-slice", 1, "video: last slice (exclusive)")
	cmd.Flags().Uint64Var(&headIndex, "head-index", 0, "audio: first sample index")
	cmd.Flags().Uint32Var(&sampleCount, "count", 0, "audio: number of samples")
	cmd.MarkFlagRequired("config")
	return cmd
}

type sendOpts struct {
	grainIndex, payloadOffset uint64
	startSlice, endSlice      uint32
	headIndex                 uint64
	sampleCount               uint32
}

func runSend(configPath, metricsAddr string, opts sendOpts) error {
	cfg, err := config.LoadInitiator(configPath)
	if err != nil {
		return err
	}
	if cfg.Target == "" {
		return fmt.Errorf("config: target is required (a TargetInfo string, or a path to a file containing one)")
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

	targetText := cfg.Target
	if data, readErr := os.ReadFile(cfg.Target); readErr == nil {
		targetText = strings.TrimSpace(string(data))
	}
	info, err := targetinfo.FromString(targetText)
	if err != nil {
		return fmt.Errorf("parsing target info: %w", err)
	}

	if metricsAddr != "" {
		srv, errCh := metrics.Serve(metricsAddr)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			metrics.Shutdown(shutdownCtx, srv)
		}()
		go func() {
			if err, ok := <-errCh; ok && err != nil {
				obslog.With("fabricsctl").Warn("metrics server stopped", "err", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	in, err := initiator.Setup(ctx, initiator.Config{
		Provider:       provider,
		Connectionless: cfg.Endpoint.Connectionless,
		Node:           cfg.Endpoint.Node,
		Service:        cfg.Endpoint.Service,
		Regions:        regions,
	})
	if err != nil {
		return fmt.Errorf("initiator setup: %w", err)
	}
	defer in.Shutdown()

	if err := in.AddTarget(info); err != nil {
		return fmt.Errorf("add target: %w", err)
	}

	log := obslog.With("fabricsctl.send")
	if _, err := in.MakeProgressBlocking(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("waiting to connect: %w", err)
	}
	log.Info("connected", "target", info.Identifier)

	switch {
	case cfg.Video != nil:
		sliceRange, err := region.NewSliceRange(opts.startSlice, opts.endSlice)
		if err != nil {
			return err
		}
		if err := in.TransferGrain(opts.grainIndex, opts.payloadOffset, sliceRange); err != nil {
			return fmt.Errorf("transfer grain: %w", err)
		}
		log.Info("transferred grain", "grain_index", opts.grainIndex, "start_slice", opts.startSlice, "end_slice", opts.endSlice)
	case cfg.Audio != nil:
		if err := in.TransferSamples(opts.headIndex, opts.sampleCount); err != nil {
			return fmt.Errorf("transfer samples: %w", err)
		}
		log.Info("transferred samples", "head_index", opts.headIndex, "count", opts.sampleCount)
	default:
		log.Info("no region set configured; connection-only run")
	}

	if _, err := in.MakeProgressBlocking(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("draining completions: %w", err)
	}
	return nil
}
