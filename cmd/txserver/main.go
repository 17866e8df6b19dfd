package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"securetx/internal/config"
	"securetx/internal/daemon"
	"securetx/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("txserver", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr, fs) }
	envDir := fs.String("env-dir", ".", "directory holding an optional .env file")
	host := fs.String("host", "", "listen host (overrides SERVER_HOST)")
	port := fs.Int("port", 0, "listen port (overrides SERVER_PORT)")
	transport := fs.String("transport", "", "tcp or quic (overrides TRANSPORT)")
	devKeys := fs.Bool("dev-keys", false, "use built-in development keys when SECRET_KEY/AES_KEY are unset (unsafe)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected argument: %s\n", fs.Arg(0))
		printUsage(stderr, fs)
		return 1
	}

	cfg, err := config.Load(*envDir)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if *host != "" {
		cfg.ServerHost = *host
	}
	if *port != 0 {
		cfg.ServerPort = *port
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *devKeys {
		cfg.DevKeys = true
	}

	logging.Setup(cfg.LogLevel, cfg.LogPretty, stderr)
	if cfg.ApplyDevKeys() {
		log.Warn().Msg("using built-in development keys; never use them outside local testing")
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	runner, err := daemon.NewRunner(cfg)
	if err != nil {
		log.Error().Err(err).Msg("server setup failed")
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runner.RunWithContext(ctx, nil); err != nil {
		log.Error().Err(err).Msg("server stopped")
		return 1
	}
	log.Info().Msg("server stopped")
	return 0
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: txserver [--port N] [--host H] [--transport tcp|quic] [--dev-keys] [--env-dir DIR]")
	fmt.Fprintln(w, "Settings come from the environment or DIR/.env; flags override them.")
	fs.SetOutput(w)
	fs.PrintDefaults()
}
