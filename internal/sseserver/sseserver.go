package sseserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const (
	messagePath       = "/messages/"
	heartbeatInterval = 15 * time.Second
	maxMessageBytes   = 1 << 20
	shutdownTimeout   = 5 * time.Second
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, payload []byte) ([]byte, error)
}

// Server bridges JSON-RPC over HTTP. A client opens an event stream
// on GET /sse, learns its per-session message endpoint from the first
// event, and POSTs JSON-RPC messages there; responses travel back as
// events on the stream.
type Server struct {
	handler MessageHandler
	logger  *slog.Logger

	mu      sync.Mutex
	streams map[string]*stream
}

type stream struct {
	id  string
	ctx context.Context
	out chan []byte
}

func (st *stream) deliver(payload []byte) {
	select {
	case st.out <- payload:
	case <-st.ctx.Done():
	}
}

func New(handler MessageHandler, logger *slog.Logger) *Server {
	return &Server{
		handler: handler,
		logger:  logger,
		streams: make(map[string]*stream),
	}
}

// Router returns the handler serving /sse and /messages/ with
// permissive CORS.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/sse", s.handleSSE).Methods("GET")
	r.HandleFunc(messagePath, s.handleMessage).Methods("POST")

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
}

func (s *Server) Run(ctx context.Context, addr string) error {
	return s.serve(ctx, addr, "", "")
}

func (s *Server) RunTLS(ctx context.Context, addr, certFile, keyFile string) error {
	return s.serve(ctx, addr, certFile, keyFile)
}

func (s *Server) serve(ctx context.Context, addr, certFile, keyFile string) error {
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		if certFile != "" {
			errCh <- httpSrv.ListenAndServeTLS(certFile, keyFile)
			return
		}
		errCh <- httpSrv.ListenAndServe()
	}()
	s.logLifecycle(slog.LevelInfo, "sse_listening",
		slog.String("addr", addr),
		slog.Bool("tls", certFile != ""))

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	st := &stream{
		id:  newSessionID(),
		ctx: r.Context(),
		out: make(chan []byte, 16),
	}
	s.addStream(st)
	defer s.removeStream(st.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: %s?session_id=%s\n\n", messagePath, st.id)
	flusher.Flush()
	s.logLifecycle(slog.LevelInfo, "sse_stream_open", slog.String("session_id", st.id))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logLifecycle(slog.LevelInfo, "sse_stream_closed", slog.String("session_id", st.id))
			return
		case payload := <-st.out:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	st := s.lookupStream(sessionID)
	if st == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	go func() {
		encoded, err := s.handler.HandleMessage(st.ctx, payload)
		if err != nil {
			s.logLifecycle(slog.LevelError, "sse_dispatch_error",
				slog.String("session_id", st.id),
				slog.String("error", err.Error()))
			return
		}
		if encoded == nil {
			return
		}
		st.deliver(encoded)
	}()
}

func (s *Server) addStream(st *stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[st.id] = st
}

func (s *Server) removeStream(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, id)
}

func (s *Server) lookupStream(id string) *stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams[id]
}

func (s *Server) logLifecycle(level slog.Level, msg string, attrs ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Log(context.Background(), level, msg, attrs...)
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "sess_fallback"
	}
	return "sess_" + hex.EncodeToString(buf)
}
