package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/coffersTech/odsearch/internal/auth"
	"github.com/coffersTech/odsearch/internal/config"
	"github.com/coffersTech/odsearch/internal/engine"
	"github.com/coffersTech/odsearch/internal/server"
	"github.com/coffersTech/odsearch/internal/storage"
)

const appName = "odsearch"

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "serve":
		os.Exit(cmdServe(os.Args[2:]))
	case "parse":
		os.Exit(cmdParse(os.Args[2:]))
	case "explain":
		os.Exit(cmdExplain(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "keygen":
		os.Exit(cmdKeygen(os.Args[2:]))
	case "version":
		fmt.Println(version)
		return
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`odsearch %s

Usage:
  %s serve [flags]                 Run the HTTP API.
  %s parse <expression>            Print the canonical form of a $search expression.
  %s explain [--style s] <expr>    Render an outline of a $search expression.
  %s repl                          Parse expressions interactively.
  %s keygen --name <n>             Create an API key (also --list, --revoke <id>).
  %s version                       Print the version.

Run '%s <command> --help' for command flags.
`, version, appName, appName, appName, appName, appName, appName, appName)
}

// newFlagSet creates a command FlagSet that already knows the config flags.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(appName+" "+name, pflag.ContinueOnError)
	config.RegisterFlags(fs)
	return fs
}

// loadConfig parses args into fs, loads the configuration and sets up logging.
// A nil config means the command should exit with the returned code.
func loadConfig(fs *pflag.FlagSet, args []string) (*config.Config, int) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, 0
		}
		return nil, 2
	}
	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return nil, 1
	}
	config.InitLogging(os.Stderr, cfg.Logging.Level)
	return cfg, 0
}

func cmdServe(args []string) int {
	fs := newFlagSet("serve")
	cfg, code := loadConfig(fs, args)
	if cfg == nil {
		return code
	}

	slog.Info("odsearch starting", "version", version, "data_dir", cfg.Storage.DataDir)

	// 1. Initialize QueryEngine over the snapshot storage
	reader, err := storage.NewColumnReader()
	if err != nil {
		slog.Error("failed to create reader", "error", err)
		return 1
	}
	writer, err := storage.NewColumnWriter()
	if err != nil {
		slog.Error("failed to create writer", "error", err)
		return 1
	}
	qe, err := engine.NewQueryEngine(cfg.Storage.DataDir, reader.ReadSnapshot, writer.WriteSnapshot)
	if err != nil {
		slog.Error("failed to open engine", "error", err)
		return 1
	}
	if cfg.Storage.MaxTableSize > 0 {
		qe.MaxTableSize = cfg.Storage.MaxTableSize
	}

	if cfg.Seed.File != "" {
		n, applied, err := qe.Seed(cfg.Seed.File)
		if err != nil {
			slog.Error("seeding failed", "file", cfg.Seed.File, "error", err)
			qe.Close()
			return 1
		}
		if applied {
			slog.Info("seeded entities", "file", cfg.Seed.File, "count", n)
		} else {
			slog.Info("seed file already applied, skipping", "file", cfg.Seed.File)
		}
	}

	// 2. API keys
	var ks *auth.KeyStore
	if cfg.Auth.KeysFile != "" {
		ks = auth.NewKeyStore(cfg.Auth.KeysFile)
		if err := ks.Load(); err != nil {
			slog.Error("failed to load API keys", "file", cfg.Auth.KeysFile, "error", err)
			qe.Close()
			return 1
		}
		if ks.Empty() {
			slog.Warn("auth enabled but no API keys exist; run 'odsearch keygen'", "file", cfg.Auth.KeysFile)
		}
	} else {
		slog.Warn("auth disabled: no keys file configured")
	}

	// 3. Start HTTP Server in a goroutine
	srv := server.NewServer(qe, ks, server.Options{
		MaxSearchLength: cfg.Search.MaxLength,
		DefaultTop:      cfg.Search.DefaultTop,
	})
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start(cfg.Server.Addr)
	}()

	// 4. Graceful Shutdown Hook
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	exit := 0
	select {
	case sig := <-quit:
		slog.Info("received signal, shutting down", "signal", sig.String())
	case err := <-errc:
		if err != nil {
			slog.Error("server stopped", "error", err)
			exit = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("flushing memory to disk")
	if err := qe.Close(); err != nil {
		slog.Error("final flush failed", "error", err)
		exit = 1
	}

	slog.Info("odsearch exited")
	return exit
}
