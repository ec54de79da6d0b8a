package gateway

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harun/toolgate/internal/metrics"
	"github.com/harun/toolgate/pkg/dispatch"
)

// Server exposes the dispatch pipeline over HTTP, SSE and websocket
// JSON-RPC. It owns no parsing or policy logic; it feeds raw text or
// pre-extracted invocations into the dispatcher and serializes results.
type Server struct {
	host         string
	port         int
	sharedSecret string
	dispatcher   *dispatch.Dispatcher
	rpc          *RPCRouter
	metrics      *metrics.Metrics
	upgrader     websocket.Upgrader
	server       *http.Server
	logger       zerolog.Logger
}

// Config holds server configuration. SharedSecret empty disables auth
// (local development); Metrics nil disables the /metrics endpoint.
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	Dispatcher   *dispatch.Dispatcher
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	s := &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		sharedSecret: cfg.SharedSecret,
		dispatcher:   cfg.Dispatcher,
		rpc:          NewRPCRouter(),
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	RegisterMethods(s.rpc, s.dispatcher)
	return s, nil
}

// RPC returns the server's method router, shared with the stdio
// transport.
func (s *Server) RPC() *RPCRouter {
	return s.rpc
}

// Start starts the gateway server. It does not block.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/dispatch", s.withAuth(s.handleDispatch))
	mux.HandleFunc("/v1/dispatch/stream", s.withAuth(s.handleDispatchStream))
	mux.HandleFunc("/v1/tools", s.withAuth(s.handleTools))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server stopped")
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.sharedSecret == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.sharedSecret)) == 1
}

// handleDispatch accepts either raw model output or a pre-extracted
// tool/args pair and returns the policy-applied results.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	switch {
	case req.Tool != "":
		inv := preExtractedInvocation(req.Tool, req.Args)
		result := s.dispatcher.DispatchInvocation(r.Context(), inv)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})

	case req.Output != "":
		outcomes, err := s.dispatcher.DispatchText(r.Context(), req.Output)
		if err != nil {
			s.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": err.Error()})
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"outcomes": outcomes})

	default:
		http.Error(w, `{"error":"output or tool is required"}`, http.StatusBadRequest)
	}
}

// handleDispatchStream reads the request body as a chunk stream, feeds it
// through the streaming extractor and emits one SSE event per dispatched
// invocation, plus a final flush event with any trailing text.
func (s *Server) handleDispatchStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	session := s.dispatcher.Stream()
	reader := bufio.NewReader(r.Body)
	buf := make([]byte, 4096)

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			outcomes, feedErr := session.Feed(r.Context(), string(buf[:n]))
			if feedErr != nil {
				s.writeSSE(w, flusher, "error", map[string]interface{}{"error": feedErr.Error()})
				return
			}
			for _, outcome := range outcomes {
				s.writeSSE(w, flusher, "outcome", outcome)
			}
		}
		if err != nil {
			break
		}
	}

	outcomes, remaining, err := session.Flush(r.Context())
	if err != nil {
		s.writeSSE(w, flusher, "error", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, outcome := range outcomes {
		s.writeSSE(w, flusher, "outcome", outcome)
	}
	s.writeSSE(w, flusher, "done", map[string]interface{}{"remaining_text": remaining})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools": s.dispatcher.Registry().List(),
	})
}

// handleWebSocket serves JSON-RPC frames over a websocket connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	s.logger.Info().Str("client_id", clientID).Msg("Websocket client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug().Str("client_id", clientID).Err(err).Msg("Websocket client disconnected")
			return
		}

		resp := s.handleFrame(r.Context(), data)
		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Warn().Str("client_id", clientID).Err(err).Msg("Websocket write failed")
			return
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, data []byte) *RPCResponse {
	req, rpcErr := s.rpc.ParseRequest(data)
	if rpcErr != nil {
		return &RPCResponse{JSONRPC: "2.0", Error: rpcErr}
	}
	return s.rpc.Route(ctx, req)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
