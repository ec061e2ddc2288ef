// Package health serves the liveness endpoint.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Status is the payload returned by the health endpoint.
type Status struct {
	Status         string    `json:"status"`
	StartedAt      time.Time `json:"startedAt"`
	UptimeSeconds  int64     `json:"uptimeSeconds"`
	ActiveSessions int       `json:"activeSessions"`
}

// Server serves /health over h2c.
type Server struct {
	srv       *http.Server
	startedAt time.Time
	sessions  func() int
}

// NewServer builds the health server. sessions may be nil.
func NewServer(addr string, sessions func() int) *Server {
	s := &Server{
		startedAt: time.Now(),
		sessions:  sessions,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := Status{
		Status:        "ok",
		StartedAt:     s.startedAt,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.sessions != nil {
		st.ActiveSessions = s.sessions()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&st); err != nil {
		zlog.Debug().Msgf("failed to write health response: %v", err)
	}
}

// Start serves in a goroutine. Fatal listen errors land on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("health endpoint listening: addr=%s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
