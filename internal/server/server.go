// Package server exposes the indexer's read API over HTTP (spec §5),
// following the teacher's per-domain-handler-struct-plus-ServeMux wiring
// in pkg/server/ledger_handlers.go and main.go's router assembly.
package server

import (
	"context"
	"log"
	"net/http"
	"time"
)

// Server bundles every handler group behind one ServeMux and an
// http.Server, mirroring the teacher's single-mux assembly in main.go.
type Server struct {
	mux    *http.ServeMux
	http   *http.Server
	logger *log.Logger
}

// New builds the HTTP server and registers every route.
func New(addr string, chainHandlers *ChainHandlers, messageHandlers *MessageHandlers, subscribeHandlers *SubscribeHandlers, metricsHandler http.Handler) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	mux.HandleFunc("/api/v1/chains/", chainHandlers.HandleChainStatus)
	mux.HandleFunc("/api/v1/blocks/latest/", chainHandlers.HandleLatestBlock)
	mux.HandleFunc("/api/v1/events/range/", chainHandlers.HandleEventsByRange)
	mux.HandleFunc("/api/v1/events/address/", chainHandlers.HandleEventsByAddress)

	mux.HandleFunc("/api/v1/messages/", messageHandlers.HandleGetMessage)
	mux.HandleFunc("/api/v1/messages", messageHandlers.HandleListMessages)

	mux.HandleFunc("/api/v1/subscribe", subscribeHandlers.HandleSubscribe)

	return &Server{
		mux: mux,
		http: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: log.New(log.Writer(), "[Server] ", log.LstdFlags),
	}
}

// Start begins serving in a background goroutine; it does not block.
func (s *Server) Start() {
	go func() {
		s.logger.Printf("listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the server, waiting up to the context
// deadline for in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
