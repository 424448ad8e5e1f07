package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flicky/go-ecommerce-core/internal/app"
	"github.com/flicky/go-ecommerce-core/internal/config"
	"github.com/flicky/go-ecommerce-core/internal/importer"
	"github.com/flicky/go-ecommerce-core/internal/logging"
)

func main() {
	batch := flag.Int("batch", 0, "records per transaction (0 = all in one)")
	export := flag.String("export", "", "write the current catalog to this file instead of importing")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-batch n] catalog.yaml...\n       %s -export out.yaml\n", os.Args[0], os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "records without expected_version only create products; update existing ones from an export")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("load config", "error", err)
		os.Exit(1)
	}
	log := logging.New(os.Stdout, cfg.Log)

	if *export == "" && flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *batch, *export, flag.Args()); err != nil {
		log.Error("catalog import failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, batch int, export string, files []string) error {
	core, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	im := importer.New(core.Catalog, batch, log)

	if export != "" {
		f, err := os.Create(export)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		if err := im.Export(ctx, f); err != nil {
			return err
		}
		log.Info("catalog exported", "path", export)
		return f.Close()
	}

	inputs, err := importer.LoadFiles(ctx, files...)
	if err != nil {
		return err
	}
	log.Info("catalog files loaded", "files", len(files), "records", len(inputs))

	report, err := im.Run(ctx, inputs)
	if err != nil {
		return err
	}
	log.Info("catalog import finished", "created", report.Created, "updated", report.Updated)
	return nil
}
