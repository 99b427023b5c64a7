// internal/httpserver/areas.go
//
// REST routes for game areas, mounted under /areas:
//   - GET    /                 → list areas
//   - POST   /                 → create an area; the caller becomes main player
//   - GET    /{id}             → snapshot + bounds + broadcast seq
//   - PUT    /{id}             → main player pushes a full model
//   - DELETE /{id}             → forget an empty area
//   - GET    /{id}/board       → per-letter feedback for every guess
//   - POST   /{id}/occupants   → caller enters the area
//   - DELETE /{id}/occupants   → caller leaves the area
//   - POST   /{id}/start       → caller starts a game (becomes main player)
//   - POST   /{id}/guess       → main player submits a guess
//   - POST   /{id}/reset       → main player starts over
//   - GET    /{id}/ws          → websocket subscription (see ws.go)
//
// Rejected intents answer with {"error": <reason>} and leave the area as it was.
// With Claims set, an ID is reserved across instances before the area is
// registered here and released when the area is deleted.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle/apps/area-server/internal/area"
	"github.com/robalobadob/wordle/apps/area-server/internal/game"
	"github.com/robalobadob/wordle/apps/area-server/internal/store"
)

// areaKey is the context key for the *area.Area loaded by withArea.
type areaKey struct{}

func (s *Server) mountAreas(r chi.Router) {
	// Websocket upgrades manage their own deadlines and may target an area
	// hosted by another instance.
	r.With(s.withOptionalAuth()).Get("/{id}/ws", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Use(jsonContentType)

		r.Get("/", s.handleListAreas)
		r.With(s.requireAuth()).Post("/", s.handleCreateArea)

		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.withArea)
			r.Get("/", s.handleGetArea)
			r.Get("/board", s.handleBoard)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth())
				r.Put("/", s.handleApplyModel)
				r.Delete("/", s.handleDeleteArea)
				r.Post("/occupants", s.handleEnter)
				r.Delete("/occupants", s.handleLeave)
				r.Post("/start", s.handleStart)
				r.Post("/guess", s.handleGuess)
				r.Post("/reset", s.handleReset)
			})
		})
	})
}

// withArea loads {id} from the registry or answers 404.
func (s *Server) withArea(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), areaKey{}, a)))
	})
}

func areaFrom(r *http.Request) *area.Area {
	a, _ := r.Context().Value(areaKey{}).(*area.Area)
	return a
}

// areaView is the REST representation of an area.
type areaView struct {
	Area   area.Model  `json:"area"`
	Bounds area.Bounds `json:"bounds"`
	Seq    uint64      `json:"seq"`
}

func view(a *area.Area) areaView {
	u := a.Snapshot()
	return areaView{Area: u.Model, Bounds: a.Bounds(), Seq: u.Seq}
}

func (s *Server) handleListAreas(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	out := make([]areaView, 0, len(list))
	for _, a := range list {
		out = append(out, view(a))
	}
	_ = json.NewEncoder(w).Encode(out)
}

// createAreaReq is the area-creation request. MainPlayer, when given, must
// name the caller.
type createAreaReq struct {
	ID         string      `json:"id"`
	MainPlayer string      `json:"mainPlayer"`
	Bounds     area.Bounds `json:"bounds"`
}

func (s *Server) handleCreateArea(w http.ResponseWriter, r *http.Request) {
	me := participantFrom(r)
	var req createAreaReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.MainPlayer != "" && req.MainPlayer != me.ID {
		writeError(w, http.StatusForbidden, area.ReasonNotMainPlayer)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}

	// Solutions come from the corpus, so creation waits for it.
	if err := s.corpus.Wait(r.Context()); err != nil {
		log.Warn().Err(err).Msg("create area: corpus unavailable")
		writeError(w, http.StatusServiceUnavailable, "words_unavailable")
		return
	}

	a, err := area.New(req.ID, req.Bounds, s.corpus, s.emitter,
		area.WithSolutionPolicy(s.policy),
		area.WithDailySalt(s.cfg.DailySalt),
		area.WithFinishHook(s.archive),
	)
	var malformed *area.MalformedAreaError
	switch {
	case errors.As(err, &malformed):
		writeError(w, http.StatusBadRequest, malformed.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("area", req.ID).Msg("create area")
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}
	if !s.claim(r.Context(), w, req.ID) {
		return
	}
	if err := s.store.Create(r.Context(), a); err != nil {
		s.release(req.ID)
		if errors.Is(err, store.ErrExists) {
			writeError(w, http.StatusConflict, "area_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}
	if err := a.Start(me.ID); err != nil {
		_ = s.store.Delete(r.Context(), a.ID())
		s.release(a.ID())
		s.writeRejection(w, err)
		return
	}
	log.Info().Str("area", a.ID()).Str("player", me.ID).Msg("area created")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(view(a))
}

func (s *Server) handleGetArea(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(view(areaFrom(r)))
}

type boardRes struct {
	Marks  [][]game.Mark `json:"marks"`
	Status string        `json:"status"`
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	a := areaFrom(r)
	_ = json.NewEncoder(w).Encode(boardRes{Marks: a.Board(), Status: a.Status().String()})
}

func (s *Server) handleApplyModel(w http.ResponseWriter, r *http.Request) {
	var m area.Model
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	a := areaFrom(r)
	if err := a.ApplyModelFrom(participantFrom(r).ID, m); err != nil {
		s.writeRejection(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(view(a))
}

func (s *Server) handleDeleteArea(w http.ResponseWriter, r *http.Request) {
	id := areaFrom(r).ID()
	removed, err := s.store.DeleteIf(r.Context(), id, (*area.Area).Occupied)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "delete_failed")
		return
	case !removed:
		writeError(w, http.StatusConflict, "area_occupied")
		return
	}
	s.release(id)
	log.Info().Str("area", id).Msg("area deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	a := areaFrom(r)
	a.Add(participantFrom(r).ID)
	_ = json.NewEncoder(w).Encode(view(a))
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	a := areaFrom(r)
	if !a.Remove(participantFrom(r).ID) {
		writeError(w, http.StatusNotFound, "not_an_occupant")
		return
	}
	_ = json.NewEncoder(w).Encode(view(a))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	a := areaFrom(r)
	if err := a.Start(participantFrom(r).ID); err != nil {
		s.writeRejection(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(view(a))
}

type guessReq struct {
	Guess string `json:"guess"`
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	a := areaFrom(r)
	if err := a.ApplyGuessFrom(participantFrom(r).ID, req.Guess); err != nil {
		s.writeRejection(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(view(a))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	a := areaFrom(r)
	if err := a.ResetFrom(participantFrom(r).ID); err != nil {
		s.writeRejection(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(view(a))
}

// claim reserves id across instances. When it cannot, it writes the response
// and returns false.
func (s *Server) claim(ctx context.Context, w http.ResponseWriter, id string) bool {
	if s.claims == nil {
		return true
	}
	ok, err := s.claims.Claim(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("area", id).Msg("claim area id")
		writeError(w, http.StatusServiceUnavailable, "claim_failed")
		return false
	}
	if !ok {
		writeError(w, http.StatusConflict, "area_exists")
		return false
	}
	return true
}

// release gives up the claim on id. It outlives the request that triggered it.
func (s *Server) release(id string) {
	if s.claims == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.claims.Release(ctx, id); err != nil {
		log.Warn().Err(err).Str("area", id).Msg("release area id")
	}
}

// writeRejection maps an area/engine rejection to a status code and its wire
// reason. Anything else is a 500.
func (s *Server) writeRejection(w http.ResponseWriter, err error) {
	reason := area.Reason(err)
	switch reason {
	case area.ReasonNotMainPlayer:
		writeError(w, http.StatusForbidden, reason)
	case area.ReasonNotPlaying, game.ReasonGameFinished:
		writeError(w, http.StatusConflict, reason)
	case area.ReasonMalformedModel:
		writeError(w, http.StatusBadRequest, reason)
	case game.ReasonWrongLength, game.ReasonNotInDictionary:
		writeError(w, http.StatusUnprocessableEntity, reason)
	default:
		log.Error().Err(err).Msg("area operation failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}
