// Package main provides the wikicord static site export CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/euforicio/wikicord/internal/buildinfo"
	"github.com/euforicio/wikicord/internal/config"
	"github.com/euforicio/wikicord/internal/exporter"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", slog.Any("err", err))
		os.Exit(1)
	}

	cfg := config.Default()
	flags := pflag.NewFlagSet("wikicord-export", pflag.ExitOnError)
	configPath := flags.String("config", config.DefaultFile, "optional YAML config file")
	config.RegisterFlags(flags, &cfg)
	clean := flags.Bool("clean", true, "wipe the output directory before exporting")
	assetPrefix := flags.String("asset-prefix", "assets", "relative directory name for copied assets within the export output")
	showVersion := flags.Bool("version", false, "print version and exit")

	// Flags are parsed twice: once to find the config file, then again so
	// explicit flags win over the file and the environment.
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("flag parsing failed", slog.Any("err", err))
		os.Exit(1)
	}
	if *showVersion {
		fmt.Println("wikicord-export", buildinfo.Summary())
		return
	}
	if err := config.LoadFile(*configPath, &cfg); err != nil {
		slog.Error("load config failed", slog.Any("err", err))
		os.Exit(1)
	}
	config.ApplyEnvOverrides(&cfg)
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("flag parsing failed", slog.Any("err", err))
		os.Exit(1)
	}

	if err := config.Finalize(&cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("starting wikicord-export",
		slog.String("version", buildinfo.Summary()),
		slog.Int("workers", cfg.Workers))

	exp, err := exporter.New(logger)
	if err != nil {
		logger.Error("init exporter failed", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := exp.Export(ctx, exporter.Options{
		Root:                cfg.RootDir,
		OutputDir:           cfg.OutputDir,
		AssetsDir:           cfg.AssetsDir,
		IncludeHidden:       cfg.IncludeHidden,
		SiteTitle:           cfg.SiteTitle,
		DarkModeFirst:       cfg.DarkModeFirst,
		GenerateSearchIndex: cfg.SearchIndex,
		CleanOutput:         *clean,
		AssetPrefix:         *assetPrefix,
		BaseURL:             cfg.BaseURL,
		Workers:             cfg.Workers,
	})
	if err != nil {
		logger.Error("export failed", slog.Any("err", err))
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}

	fmt.Printf("exported %d notes (%d citations, %d threads, %d media files, %s) to %s in %s\n",
		summary.Documents, summary.Citations, summary.Threads, summary.Media,
		humanize.Bytes(uint64(summary.Bytes)), cfg.OutputDir, summary.Duration.Round(time.Millisecond)) //nolint:gosec // byte counts are non-negative
}
