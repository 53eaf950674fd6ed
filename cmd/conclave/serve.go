package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conclave-ai/conclave/internal/chat"
	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/ensemble"
	"github.com/conclave-ai/conclave/internal/httpapi"
	"github.com/conclave-ai/conclave/internal/mcptools"
)

// runServe runs the HTTP API until interrupted.
func runServe(flags cliFlags) error {
	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg, flags.Verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newClient(ctx, cfg, flags.Offline)
	if err != nil {
		return err
	}

	// Each message request gets its own pipeline so progress streams do not
	// cross between concurrent runs.
	runLog := log.With("component", "ensemble")
	factory := func() httpapi.Runner {
		return ensemble.NewPipeline(client, ensemble.WithLogger(runLog))
	}

	server := httpapi.NewServer(factory, chat.NewStore(),
		httpapi.WithMaxAttachmentBytes(cfg.MaxAttachmentBytes()),
		httpapi.WithLogger(log.With("component", "httpapi")),
	)

	addr := cfg.Server.Addr
	if flags.Addr != "" {
		addr = flags.Addr
	}
	server.Start(addr)
	log.Info("http server started", "addr", addr)
	fmt.Fprintf(os.Stderr, "conclave listening on %s\n", addr)

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

// runServeMCP runs the MCP server on stdio until stdin closes. Stdout is the
// protocol channel, so logs stay on stderr or the configured file.
func runServeMCP(flags cliFlags) error {
	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg, flags.Verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newClient(ctx, cfg, flags.Offline)
	if err != nil {
		return err
	}

	pipeline := ensemble.NewPipeline(client, ensemble.WithLogger(log.With("component", "ensemble")))
	defer pipeline.Close()

	server := mcptools.NewServer(*cfg, pipeline, chat.NewStore())
	log.Info("mcp server started", "transport", "stdio")
	return mcptools.RunStdio(ctx, server)
}
