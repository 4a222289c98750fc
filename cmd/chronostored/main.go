// Command chronostored is the ingestion daemon: it opens the volume ring
// and catalog, wires the ingestion pipeline to the storage façade, starts
// the TCP/UDP ingress listeners and the monitoring endpoint, and runs
// until a shutdown signal arrives (spec.md §2, §6 "CLI surface"). Grounded
// on the teacher's daemon shape (settings loaded once, a handful of
// servers started, onexit-registered cleanup) generalized from the
// deleted `main.go`'s SQL-engine bootstrap to this ingestion engine's own
// component graph.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/launix-de/chronostore/internal/catalog"
	"github.com/launix-de/chronostore/internal/config"
	"github.com/launix-de/chronostore/internal/facade"
	"github.com/launix-de/chronostore/internal/ingest"
	"github.com/launix-de/chronostore/internal/ingress"
	"github.com/launix-de/chronostore/internal/logctx"
	"github.com/launix-de/chronostore/internal/monitor"
	"github.com/launix-de/chronostore/internal/pagecodec"
	"github.com/launix-de/chronostore/internal/registry"
	"github.com/launix-de/chronostore/internal/sequencer"
	"github.com/launix-de/chronostore/internal/supervisor"
	"github.com/launix-de/chronostore/internal/volume"
	"github.com/launix-de/chronostore/internal/wire"
	"golang.org/x/sync/errgroup"
)

func main() {
	log := logctx.New(false, slog.LevelInfo)
	if err := run(log); err != nil {
		log.Error("chronostored: fatal", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	var configPath string
	for i, a := range os.Args {
		if a == "--config" && i+1 < len(os.Args) {
			configPath = os.Args[i+1]
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg, err = config.ApplyFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}

	store := catalog.NewMemoryStore()

	vols, meta, err := openVolumes(cfg)
	if err != nil {
		return err
	}

	activeIndex, err := facade.Recover(vols)
	if err != nil {
		return err
	}
	reg := registry.New()
	if names, err := store.LoadSeriesNames(); err != nil {
		return fmt.Errorf("chronostored: load series names: %w", err)
	} else if err := reg.LoadTuples(names); err != nil {
		return fmt.Errorf("chronostored: reconstruct registry: %w", err)
	}

	seq := sequencer.New(cfg.WindowSize, int(cfg.CompressionThreshold))
	durability := facadeDurability(cfg.Durability)
	f := facade.New(vols, meta, seq, reg, store, activeIndex, durability)

	pipeline := ingest.NewPipeline(0, f.Write, log)
	go pipeline.Run()

	// Hooks run in reverse registration order: context cancel, pipeline
	// drain, façade close, catalog close.
	sup := supervisor.New(log)
	sup.OnShutdown(func() error { return store.Close() })
	sup.OnShutdown(func() error {
		if err := f.Close(); err != nil {
			log.Error("chronostored: close façade", "err", err)
			return err
		}
		return nil
	})
	sup.OnShutdown(func() error {
		pipeline.Shutdown()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	sup.OnShutdown(func() error { cancel(); return nil })

	policy := ingestBackoff(cfg.BackoffPolicy)

	// newSession vends a fresh, unshared registry.Session per connection or
	// worker: ingress.TCPServer/UDPServer each call this once per concurrent
	// reader rather than sharing one Resolver, since registry.Session's
	// lookup cache is unsynchronized by design (internal/registry doc).
	newSession := func() ingress.Resolver { return f.OpenSession() }

	tcpResp := &ingress.TCPServer{
		Addr: cfg.TCPRespAddr, Dialect: wire.DialectA{}, Pipeline: pipeline,
		NewSession: newSession, Log: log, Policy: policy,
	}
	tcpPut := &ingress.TCPServer{
		Addr: cfg.TCPPutAddr, Dialect: wire.DialectB{}, Pipeline: pipeline,
		NewSession: newSession, Log: log, Policy: policy,
	}
	udpResp := &ingress.UDPServer{
		Addr: cfg.UDPRespAddr, NWorkers: cfg.NWorkers, Dialect: wire.DialectA{},
		Pipeline: pipeline, NewSession: newSession, Log: log,
	}

	mon := &monitor.Server{
		Addr:   cfg.MonitorAddr,
		Source: monitor.Combine(f, pipeline),
		Log:    log,
	}

	// The four listeners run under one errgroup so a fatal error in any of
	// them cancels gctx and unwinds the rest, instead of leaving the
	// others running against a half-dead process.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tcpResp.Serve(gctx) })
	g.Go(func() error { return tcpPut.Serve(gctx) })
	g.Go(func() error { return udpResp.Serve(gctx) })
	g.Go(func() error { return mon.Serve(gctx) })
	go func() {
		if err := g.Wait(); err != nil {
			log.Error("chronostored: a listener stopped", "err", err)
		}
	}()

	log.Info("chronostored: started",
		"tcp_resp", cfg.TCPRespAddr, "tcp_put", cfg.TCPPutAddr,
		"udp", cfg.UDPRespAddr, "monitor", cfg.MonitorAddr)

	return sup.Run(context.Background())
}

func openVolumes(cfg config.Config) ([]*volume.Volume, *volume.MetaVolume, error) {
	if err := os.MkdirAll(cfg.VolumeDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("chronostored: create volume dir: %w", err)
	}

	capacity := int64(cfg.VolumeCapacityBlocks) * pagecodec.BlockSize
	vols := make([]*volume.Volume, cfg.VolumeCount)
	for i := range vols {
		path := filepath.Join(cfg.VolumeDir, fmt.Sprintf("volume-%d.dat", i))
		backend, err := volume.NewFileBackend(path, capacity)
		if err != nil {
			return nil, nil, fmt.Errorf("chronostored: open volume %d: %w", i, err)
		}
		v, err := volume.Open(uint32(i), backend)
		if err != nil {
			return nil, nil, fmt.Errorf("chronostored: recover volume %d: %w", i, err)
		}
		vols[i] = v
	}

	metaPath := filepath.Join(cfg.VolumeDir, "meta.dat")
	metaBackend, err := volume.NewFileBackend(metaPath, int64(cfg.VolumeCount)*pagecodec.BlockSize)
	if err != nil {
		return nil, nil, fmt.Errorf("chronostored: open meta-volume: %w", err)
	}
	meta := volume.NewMetaVolume(metaBackend, cfg.VolumeCount)
	if err := meta.Load(); err != nil {
		return nil, nil, fmt.Errorf("chronostored: load meta-volume: %w", err)
	}

	return vols, meta, nil
}

func facadeDurability(d config.Durability) facade.Durability {
	switch d {
	case config.MaxDurability:
		return facade.MaxDurability
	case config.MaxThroughput:
		return facade.MaxThroughput
	default:
		return facade.Balanced
	}
}

func ingestBackoff(p config.BackoffPolicy) ingest.BackpressurePolicy {
	if p == config.Throttle {
		return ingest.Throttle
	}
	return ingest.LinearBackoff
}
