package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/logflow/reportflow/pkg/aggregate"
	"github.com/logflow/reportflow/pkg/archive"
	"github.com/logflow/reportflow/pkg/checkpoint"
	"github.com/logflow/reportflow/pkg/config"
	"github.com/logflow/reportflow/pkg/decode"
	"github.com/logflow/reportflow/pkg/pipeline"
	"github.com/logflow/reportflow/pkg/report"
	"github.com/logflow/reportflow/pkg/storage"
	"github.com/logflow/reportflow/pkg/telemetry"
	"github.com/logflow/reportflow/pkg/warehouse"
)

// app holds the collaborators built from configuration.
type app struct {
	source   storage.Store
	wh       warehouse.Warehouse
	journal  *checkpoint.Journal
	archive  storage.Store
	runner   *pipeline.Runner
	closers  []func() error
	shutdown func(context.Context) error
}

type appOptions struct {
	// OnFile is forwarded to the runner for progress reporting.
	OnFile func(aggregate.FileRef)

	// SourceOnly skips the warehouse, journal and archive.
	SourceOnly bool
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{shutdown: func(context.Context) error { return nil }}
	defer func() {
		if err != nil {
			a.Close(ctx)
		}
	}()

	a.source, err = storage.Open(ctx, storage.Config{
		Kind:            cfg.Source.Kind,
		Root:            cfg.Source.Root,
		Bucket:          cfg.Source.Bucket,
		Region:          cfg.Source.Region,
		Endpoint:        cfg.Source.Endpoint,
		UsePathStyle:    cfg.Source.UsePathStyle,
		DownloadTimeout: cfg.Source.DownloadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	a.closers = append(a.closers, a.source.Close)

	if opts.SourceOnly {
		return a, nil
	}

	otlp := telemetry.DefaultOTLPConfig(cfg.Telemetry.ServiceName)
	otlp.Enabled = cfg.Telemetry.Enabled
	otlp.Endpoint = cfg.Telemetry.Endpoint
	otlp.ServiceVersion = version
	otlp.SamplingRatio = cfg.Telemetry.SamplingRatio
	shutdown, err := telemetry.InitOTLP(ctx, otlp)
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}
	a.shutdown = shutdown

	a.wh, err = warehouse.Open(ctx, warehouse.Config{
		Kind:        cfg.Warehouse.Kind,
		Dir:         cfg.Warehouse.Dir,
		MemoryLimit: cfg.Warehouse.MemoryLimit,
		Threads:     cfg.Warehouse.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	a.closers = append(a.closers, a.wh.Close)

	backend, err := checkpoint.Open(checkpoint.Config{
		Backend: cfg.Checkpoint.Backend,
		Dir:     cfg.Checkpoint.Dir,
		Redis: checkpoint.RedisConfig{
			Address:  cfg.Checkpoint.Redis.Address,
			Password: cfg.Checkpoint.Redis.Password,
			Database: cfg.Checkpoint.Redis.Database,
			Prefix:   cfg.Checkpoint.Redis.Prefix,
			TTL:      cfg.Checkpoint.Redis.TTL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open run journal: %w", err)
	}
	a.journal = checkpoint.NewJournal(backend)
	a.closers = append(a.closers, a.journal.Close)

	var writer *archive.Writer
	if cfg.Archive.Enabled {
		a.archive, err = storage.Open(ctx, storage.Config{
			Kind:     cfg.Archive.Kind,
			Root:     cfg.Archive.Root,
			Bucket:   cfg.Archive.Bucket,
			Region:   cfg.Archive.Region,
			Endpoint: cfg.Archive.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		a.closers = append(a.closers, a.archive.Close)

		writer, err = archive.NewWriter(a.archive, archive.Config{
			Prefix:      cfg.Archive.Prefix,
			Compression: cfg.Archive.Compression,
		})
		if err != nil {
			return nil, err
		}
	}

	a.runner = pipeline.NewRunner(a.source, a.wh, pipeline.Options{
		Tag:     report.TagOptions{IncludeCategory: cfg.Tagging.Category()},
		Decode:  decode.Options{Latin1Fallback: cfg.Source.Latin1Fallback},
		Archive: writer,
		Journal: a.journal,
		OnFile:  opts.OnFile,
	})

	slog.Debug("components ready",
		"source", a.source.Scheme(),
		"warehouse", cfg.Warehouse.Kind,
		"journal", backend.Name(),
		"archive", cfg.Archive.Enabled,
	)
	return a, nil
}

// Close releases everything in reverse order of creation.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
