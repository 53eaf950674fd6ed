package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/conclave-ai/conclave/internal/chat"
	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/ensemble"
	"github.com/conclave-ai/conclave/internal/export"
	"github.com/conclave-ai/conclave/internal/llm"
	"github.com/conclave-ai/conclave/internal/logging"
	"github.com/conclave-ai/conclave/internal/status"
)

// runAsk answers one question and exits: progress on stderr, answer on
// stdout. A failed run surfaces only the apology; the cause goes to the log.
func runAsk(flags cliFlags, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return errors.New("usage: conclave [flags] <question>")
	}

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

	req := ensemble.Request{
		Query:  query,
		Agents: effectiveAgents(flags, cfg),
		Deep:   flags.Deep || cfg.Ensemble.Deep,
	}
	if flags.Attach != "" {
		att, err := loadAttachment(flags.Attach, cfg.MaxAttachmentBytes())
		if err != nil {
			return err
		}
		req.Attachment = att
	}

	pipeline := ensemble.NewPipeline(client, ensemble.WithLogger(log.With("component", "ensemble")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range pipeline.Events() {
			fmt.Fprintln(os.Stderr, status.Line(ev))
		}
	}()

	res, err := pipeline.Run(ctx, req)
	pipeline.Close()
	<-done
	if err != nil {
		log.Error("run failed", "error", err)
		return errors.New(ensemble.ApologyMessage)
	}

	if flags.Verbose {
		fmt.Fprint(os.Stderr, status.Render(pipeline.Stages(), pipeline.Progress()))
	}

	fmt.Println(res.Answer)
	if res.Repaired {
		fmt.Fprintf(os.Stderr, "note: repaired a code block (%s)\n", res.Diagnostic)
	}

	if flags.Save != "" {
		if err := saveExchange(flags.Save, query, req.Attachment, res.Answer); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "saved transcript to %s\n", flags.Save)
	}
	return nil
}

// newLogger builds the root logger: the configured file when set, stderr
// otherwise. -verbose forces debug level.
func newLogger(cfg *config.Config, verbose bool) (*slog.Logger, func() error, error) {
	level := cfg.Log.Level
	if verbose {
		level = "DEBUG"
	}
	if cfg.Log.File != "" {
		log, f, err := logging.NewFile(cfg.Log.File, level)
		if err != nil {
			return nil, nil, err
		}
		return log, f.Close, nil
	}
	return logging.New(os.Stderr, level), func() error { return nil }, nil
}

// newClient picks the completion backend: Gemini from the configured API key
// env var, or the scripted client for offline demos.
func newClient(ctx context.Context, cfg *config.Config, offline bool) (llm.Client, error) {
	if offline {
		return llm.NewScripted(offlineReply), nil
	}

	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("no API key: set $%s or run with -offline", cfg.Model.APIKeyEnv)
	}

	opts := []llm.GeminiOption{llm.WithModel(cfg.Model.Name)}
	if cfg.Model.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*cfg.Model.Temperature))
	}
	return llm.NewGemini(ctx, key, opts...)
}

// offlineReply is the scripted backend for -offline runs. Every stage gets
// the same text, so the final answer states plainly that no model ran.
func offlineReply(call int, _ llm.Request) (string, error) {
	return fmt.Sprintf("Offline mode: no model was consulted (call %d). Set an API key for real answers.", call), nil
}

func effectiveAgents(flags cliFlags, cfg *config.Config) int {
	if flags.Agents != 0 {
		return flags.Agents
	}
	return cfg.Ensemble.Agents
}

// loadAttachment reads a local file and resolves its media type from the
// extension, falling back to content sniffing.
func loadAttachment(path string, maxBytes int64) (*chat.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}

	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return chat.NewAttachment(filepath.Base(path), mediaType, data, maxBytes)
}

// saveExchange writes the one-shot exchange as a transcript document.
func saveExchange(path, query string, att *chat.Attachment, answer string) error {
	store := chat.NewStore()
	id := store.Create()
	if err := store.Append(id, chat.UserTurn(query, att), chat.AgentTurn(answer)); err != nil {
		return err
	}

	doc, err := export.Transcript(store, id)
	if err != nil {
		return err
	}
	return doc.WriteFile(path)
}
