package app

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
)

// Run is the CLI entrypoint used by cmd/hassws. It returns an error instead
// of calling os.Exit so deferred cleanup in App.Run always executes.
func Run() error {
	configPath := flag.String("config", "", "optional YAML config file overriding HASSWS_* env vars")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
