// Command medialibctl is the small test binary spec.md §6 calls for: point
// it at a media folder and a database path, let it crawl and parse, and
// check its exit code. It is glue, not a product — no flags survive a
// restart, no config file is read.
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

	"github.com/silverreel/medialib/internal/config"
	"github.com/silverreel/medialib/internal/facade"
	"github.com/silverreel/medialib/internal/history"
	"github.com/silverreel/medialib/internal/query"
)

const (
	exitOK        = 0
	exitBadUsage  = 1
	exitTestFailure = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("medialibctl", flag.ContinueOnError)
	quiet := fs.Bool("q", false, "suppress progress logging")
	autoCache := fs.Bool("c", false, "auto-cache every discovered subscription member")
	if err := fs.Parse(args); err != nil {
		return exitBadUsage
	}
	rest := fs.Args()
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "usage: medialibctl [-q] [-c] <media-folder> <db-path>")
		return exitBadUsage
	}
	mediaFolder, dbPath := rest[0], rest[1]

	level := zerolog.InfoLevel
	if *quiet {
		level = zerolog.WarnLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	cfg := config.Load()
	cfg.DatabasePath = dbPath

	var discovered int
	ml, err := facade.New(cfg, log, facade.Callbacks{
		OnDiscoveryProgress: func(entryPoint string, nbDiscovered int) {
			discovered = nbDiscovered
			if !*quiet {
				log.Info().Str("entry_point", entryPoint).Int("discovered", nbDiscovered).Msg("discovery progress")
			}
		},
		OnDiscoveryCompleted: func(entryPoint string) {
			log.Info().Str("entry_point", entryPoint).Int("discovered", discovered).Msg("discovery completed")
		},
		OnHistoryChanged: func(t history.Type) {
			if !*quiet {
				log.Info().Str("type", historyTypeName(t)).Msg("history changed")
			}
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "medialibctl: %v\n", err)
		return exitTestFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ml.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "medialibctl: start: %v\n", err)
		return exitTestFailure
	}
	defer ml.Stop()

	ml.AddEntryPoint("file://" + mediaFolder)
	if *autoCache {
		log.Info().Msg("auto-cache requested; cacheworker wiring is a no-op until a real Cacher is supplied")
	}

	// Give the discoverer/parser pipeline a window to settle before
	// reporting. A real host would drive this off OnDiscoveryCompleted
	// instead of a fixed sleep; this binary only needs to be good enough
	// to smoke-test a library.
	select {
	case <-ctx.Done():
		return exitOK
	case <-time.After(5 * time.Second):
	}

	media, err := ml.ListMedia(query.Params{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "medialibctl: list media: %v\n", err)
		return exitTestFailure
	}
	fmt.Printf("%d media indexed under %s\n", len(media), mediaFolder)
	return exitOK
}

func historyTypeName(t history.Type) string {
	if t == history.TypeNetwork {
		return "network"
	}
	return "media"
}
