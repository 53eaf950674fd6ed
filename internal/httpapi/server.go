// Package httpapi serves the ensemble over HTTP: session CRUD, message
// posting with optional SSE progress streaming, and run records.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/conclave-ai/conclave/internal/chat"
	"github.com/conclave-ai/conclave/internal/ensemble"
	"github.com/conclave-ai/conclave/internal/export"
	"github.com/conclave-ai/conclave/internal/logging"
)

// Runner executes one ensemble run and streams its progress. Each call to
// the factory below yields a fresh Runner so concurrent requests get their
// own progress channel.
type Runner interface {
	Run(ctx context.Context, req ensemble.Request) (*ensemble.Result, error)
	Events() <-chan ensemble.ProgressEvent
	Close()
}

// RunnerFactory builds a Runner per message request.
type RunnerFactory func() Runner

// Server exposes sessions, messages and runs over HTTP.
type Server struct {
	newRunner RunnerFactory
	sessions  *chat.Store
	runs      *RunStore
	maxAttach int64
	log       *slog.Logger
	http      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMaxAttachmentBytes caps the decoded size of message attachments.
func WithMaxAttachmentBytes(n int64) Option {
	return func(s *Server) {
		s.maxAttach = n
	}
}

// WithLogger sets the server's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer builds a Server around a runner factory and a session store.
func NewServer(newRunner RunnerFactory, sessions *chat.Store, opts ...Option) *Server {
	s := &Server{
		newRunner: newRunner,
		sessions:  sessions,
		runs:      NewRunStore(),
		maxAttach: chat.DefaultMaxAttachmentBytes,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)

	return mux
}

// Start begins serving on addr in a background goroutine.
func (s *Server) Start(addr string) {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	go s.http.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.Create()
	s.log.Info("session created", "session_id", id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := export.Transcript(s.sessions, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.sessions.Clear(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.runs.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// messageRequest is the POST /v1/sessions/{id}/messages body.
type messageRequest struct {
	Query      string             `json:"query"`
	Deep       bool               `json:"deep,omitempty"`
	Agents     int                `json:"agents,omitempty"`
	Attachment *attachmentPayload `json:"attachment,omitempty"`
}

type attachmentPayload struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Data      string `json:"data"` // base64
}

type messageResponse struct {
	RunID    string `json:"runId"`
	Answer   string `json:"answer"`
	Repaired bool   `json:"repaired"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	history, ok := s.sessions.Snapshot(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	// Bound the body: the base64 encoding inflates the attachment cap by
	// 4/3, plus room for the rest of the payload.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxAttach*2+1<<20)
	var body messageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if strings.TrimSpace(body.Query) == "" {
		writeError(w, http.StatusBadRequest, "empty query")
		return
	}

	var att *chat.Attachment
	if body.Attachment != nil {
		var err error
		att, err = chat.DecodeAttachment(body.Attachment.Name, body.Attachment.MediaType, body.Attachment.Data, s.maxAttach)
		if err != nil {
			// The cap is enforced before the pipeline ever sees the request.
			if errors.Is(err, chat.ErrAttachmentTooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			} else {
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
	}

	runID := uuid.NewString()
	if err := s.runs.Create(runID, sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "could not record run")
		return
	}

	req := ensemble.Request{
		Query:      body.Query,
		History:    history,
		Attachment: att,
		Agents:     body.Agents,
		Deep:       body.Deep,
		RunID:      runID,
	}

	runner := s.newRunner()
	defer runner.Close()

	s.runs.Update(runID, func(rec *RunRecord) { rec.State = RunWorking })

	if acceptsSSE(r) {
		s.streamRun(w, r, runner, sessionID, req, att)
		return
	}

	result, err := runner.Run(r.Context(), req)
	if err != nil {
		s.failRun(sessionID, req, att, err)
		writeError(w, http.StatusBadGateway, ensemble.ApologyMessage)
		return
	}
	s.completeRun(sessionID, req, att, result)
	writeJSON(w, http.StatusOK, messageResponse{
		RunID:    runID,
		Answer:   result.Answer,
		Repaired: result.Repaired,
	})
}

// streamRun runs the pipeline while relaying progress frames, then ends the
// stream with one answer or error frame.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, runner Runner, sessionID string, req ensemble.Request, att *chat.Attachment) {
	sw := NewSSEWriter(w)
	sw.Init()

	type outcome struct {
		result *ensemble.Result
		err    error
	}
	resCh := make(chan outcome, 1)
	go func() {
		result, err := runner.Run(r.Context(), req)
		// Closing the runner ends the progress loop below.
		runner.Close()
		resCh <- outcome{result, err}
	}()

	for ev := range runner.Events() {
		sw.WriteEvent(StreamEvent{Type: "progress", Progress: &ev})
	}

	out := <-resCh
	if out.err != nil {
		s.failRun(sessionID, req, att, out.err)
		sw.WriteEvent(StreamEvent{Type: "error", RunID: req.RunID, Message: ensemble.ApologyMessage})
		return
	}
	s.completeRun(sessionID, req, att, out.result)
	sw.WriteEvent(StreamEvent{
		Type:     "answer",
		RunID:    req.RunID,
		Answer:   out.result.Answer,
		Repaired: out.result.Repaired,
	})
}

// completeRun appends the exchange to the session and closes out the record.
func (s *Server) completeRun(sessionID string, req ensemble.Request, att *chat.Attachment, result *ensemble.Result) {
	s.runs.Update(req.RunID, func(rec *RunRecord) {
		rec.State = RunCompleted
		rec.Topology = result.Topology
		rec.Answer = result.Answer
		rec.Repaired = result.Repaired
	})
	if err := s.sessions.Append(sessionID,
		chat.UserTurn(req.Query, att),
		chat.AgentTurn(result.Answer),
	); err != nil {
		s.log.Warn("could not append turns", "session_id", sessionID, "error", err)
	}
	s.log.Info("run completed", "run_id", req.RunID, "session_id", sessionID, "repaired", result.Repaired)
}

// failRun appends the apology turn; the real error stays in the log.
func (s *Server) failRun(sessionID string, req ensemble.Request, att *chat.Attachment, err error) {
	s.runs.Update(req.RunID, func(rec *RunRecord) { rec.State = RunFailed })
	if appendErr := s.sessions.Append(sessionID,
		chat.UserTurn(req.Query, att),
		chat.AgentTurn(ensemble.ApologyMessage),
	); appendErr != nil {
		s.log.Warn("could not append turns", "session_id", sessionID, "error", appendErr)
	}
	s.log.Error("run failed", "run_id", req.RunID, "session_id", sessionID, "error", err)
}

func acceptsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"message": message})
}
