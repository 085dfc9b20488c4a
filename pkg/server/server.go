// Package server exposes the word cloud over HTTP and websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/japaniel/wordcloud/pkg/observability"
	"github.com/japaniel/wordcloud/pkg/orchestrator"
	"github.com/japaniel/wordcloud/pkg/sizing"
)

// Cloud is the part of the orchestrator the server drives.
type Cloud interface {
	Submit(ctx context.Context, text string) error
	Snapshot() []sizing.Record
	Cycles() int64
	State() orchestrator.State
}

// Options configures optional endpoints.
type Options struct {
	// Gatherer backs /metrics. nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Checks are run by /ready.
	Checks map[string]observability.HealthCheckFunc
	Logger *zerolog.Logger
}

// SnapshotResponse is the body of GET /snapshot.
type SnapshotResponse struct {
	Cycles  int64           `json:"cycles"`
	State   string          `json:"state"`
	Clients int             `json:"clients"`
	Records []sizing.Record `json:"records"`
}

type transcriptRequest struct {
	Text string `json:"text"`
}

const maxTranscriptBytes = 64 * 1024

var upgrader = websocket.Upgrader{
	// The cloud is read-mostly and typically served to a local display.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Server routes HTTP and websocket requests to the cloud.
type Server struct {
	cloud  Cloud
	hub    *Hub
	opts   Options
	logger zerolog.Logger
}

// New creates a Server. hub must also be registered as a renderer of cloud.
func New(cloud Cloud, hub *Hub, opts Options) *Server {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Server{
		cloud:  cloud,
		hub:    hub,
		opts:   opts,
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /transcripts", s.handleTranscript)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /health", observability.HealthCheckHandler())
	mux.HandleFunc("GET /ready", observability.ReadinessHandler(s.opts.Checks))
	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.Close()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	body := io.LimitReader(r.Body, maxTranscriptBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	if err := s.cloud.Submit(r.Context(), text); err != nil {
		s.logger.Warn().Err(err).Msg("transcript rejected")
		if errors.Is(err, orchestrator.ErrQueueClosed) {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	resp := SnapshotResponse{
		Cycles:  s.cloud.Cycles(),
		State:   s.cloud.State().String(),
		Clients: s.hub.Clients(),
		Records: s.cloud.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode snapshot")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c, err := s.hub.register(conn, s.cloud.Snapshot)
	if err != nil {
		conn.Close()
		return
	}
	go s.hub.writePump(c)
	s.readPump(r.Context(), c)
}

// readPump turns inbound transcript messages into cycles until the client goes away.
func (s *Server) readPump(ctx context.Context, c *client) {
	defer s.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("client_id", c.id).Msg("websocket closed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.hub.reply(c, Message{Type: "error", Error: "invalid message"})
			continue
		}
		if msg.Type != "transcript" {
			s.hub.reply(c, Message{Type: "error", Error: "unknown message type " + msg.Type})
			continue
		}
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		if err := s.cloud.Submit(ctx, text); err != nil {
			s.hub.reply(c, Message{Type: "error", Error: err.Error()})
		}
	}
}
