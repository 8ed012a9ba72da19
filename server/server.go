// Package server exposes the session core over HTTP. It is a thin layer:
// all decisions live in the auth façade; handlers only decode requests,
// pick the client IP, and map the error taxonomy to status codes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/campuslink/go-session-service/auth"
	"github.com/campuslink/go-session-service/token"
)

// Sweeper is the maintenance surface of the token manager used by the
// background blacklist sweep.
type Sweeper interface {
	SweepBlacklist(ctx context.Context) int
}

type Server struct {
	mux      *http.ServeMux
	sessions *auth.SessionService
	sweeper  Sweeper
	logger   zerolog.Logger
}

func New(sessions *auth.SessionService, sweeper Sweeper, logger zerolog.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		sessions: sessions,
		sweeper:  sweeper,
		logger:   logger,
	}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// StartBlacklistSweeper runs the periodic blacklist cleanup until ctx is
// cancelled. Low-priority maintenance: failures are logged inside the
// manager and never reach the request path.
func (s *Server) StartBlacklistSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := s.sweeper.SweepBlacklist(ctx)
				s.logger.Debug().Int("removed", removed).Msg("blacklist sweep complete")
			}
		}
	}()
}

// payloadContextKey carries the verified token payload through a request.
type payloadContextKey struct{}

func payloadFromContext(ctx context.Context) (token.Payload, bool) {
	payload, ok := ctx.Value(payloadContextKey{}).(token.Payload)
	return payload, ok
}
