// internal/httpserver/server.go
//
// HTTP server wiring for the game-area backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/debug/words", "/leaderboard", "/results/{player}".
//   - Sessions: POST /session issues a participant token.
//   - Areas (token required for anything that changes state): mounted under /areas.
//   - Realtime: GET /areas/{id}/ws upgrades to a websocket subscribed to the area,
//     including areas hosted by another instance when Claims is set.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - The websocket route sits outside the request timeout.
//   - Finished playthroughs are archived asynchronously so areas never wait
//     on the database.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle/apps/area-server/internal/area"
	"github.com/robalobadob/wordle/apps/area-server/internal/config"
	"github.com/robalobadob/wordle/apps/area-server/internal/hub"
	"github.com/robalobadob/wordle/apps/area-server/internal/results"
	"github.com/robalobadob/wordle/apps/area-server/internal/store"
	"github.com/robalobadob/wordle/apps/area-server/internal/words"
)

// Deps are the collaborators a Server is built from.
type Deps struct {
	Config config.Config
	Store  store.Store
	Corpus *words.Corpus
	Hub    *hub.Hub
	// Emitter receives every area broadcast. Nil means Hub alone; main adds
	// the redis relay here.
	Emitter area.Emitter
	// Results archives finished playthroughs. Optional.
	Results *results.Store
	// Claims makes area IDs unique across instances. Nil means this
	// instance is the only one.
	Claims Claims
}

// Claims reserves area IDs across every server instance and locates areas
// hosted elsewhere. *relay.Relay implements it.
type Claims interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
	// Remote reports whether id is hosted by another instance, with the
	// latest snapshot it published (zero Seq if none yet).
	Remote(ctx context.Context, id string) (area.Update, bool, error)
}

// Server bundles router and dependencies.
type Server struct {
	r       *chi.Mux
	cfg     config.Config
	store   store.Store
	corpus  *words.Corpus
	hub     *hub.Hub
	emitter area.Emitter
	results *results.Store
	claims  Claims
	policy  area.SolutionPolicy
	now     func() time.Time
}

// New constructs a Server, installs middleware, and registers routes.
func New(d Deps) (*Server, error) {
	policy, err := area.ParseSolutionPolicy(d.Config.SolutionPolicy)
	if err != nil {
		return nil, err
	}
	if d.Hub == nil {
		d.Hub = hub.New()
	}
	if d.Emitter == nil {
		d.Emitter = d.Hub
	}
	s := &Server{
		r:       chi.NewRouter(),
		cfg:     d.Config,
		store:   d.Store,
		corpus:  d.Corpus,
		hub:     d.Hub,
		emitter: d.Emitter,
		results: d.Results,
		claims:  d.Claims,
		policy:  policy,
		now:     time.Now,
	}

	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(s.corsFromConfig)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Use(jsonContentType)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"service":"wordle-areas","endpoints":["/health","POST /session","/areas","/leaderboard"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
		r.Get("/debug/words", func(w http.ResponseWriter, r *http.Request) {
			all, pool := s.corpus.Stats()
			_ = json.NewEncoder(w).Encode(map[string]int{"all": all, "pool": pool})
		})

		r.Post("/session", s.handleSession)
		r.With(s.requireAuth()).Get("/me", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(participantFrom(r))
		})

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/results/{player}", s.handlePlayerResults)
	})

	s.r.Route("/areas", s.mountAreas)

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	return s, nil
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	}
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromConfig enables credentialed CORS for the configured client origin.
func (s *Server) corsFromConfig(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ results ------------------------------------

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		_ = json.NewEncoder(w).Encode([]results.Result{})
		return
	}
	rows, err := s.results.Leaderboard(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		log.Error().Err(err).Msg("leaderboard")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	_ = json.NewEncoder(w).Encode(rows)
}

func (s *Server) handlePlayerResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		_ = json.NewEncoder(w).Encode([]results.Result{})
		return
	}
	rows, err := s.results.ByPlayer(r.Context(), chi.URLParam(r, "player"), queryInt(r, "limit", 50))
	if err != nil {
		log.Error().Err(err).Msg("player results")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	_ = json.NewEncoder(w).Encode(rows)
}

// archive records a finished playthrough without blocking the area.
func (s *Server) archive(o area.Outcome) {
	if s.results == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.results.Record(ctx, results.FromOutcome(o)); err != nil {
			log.Warn().Err(err).Str("area", o.AreaID).Msg("archive result")
		}
	}()
}

// ------------------------------- util --------------------------------------

// writeError writes {"error": msg} with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func queryInt(r *http.Request, k string, def int) int {
	if v := r.URL.Query().Get(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
