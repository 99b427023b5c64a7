// internal/httpserver/auth.go
//
// Participant identity for the HTTP and websocket surfaces.
// Participants are not stored: POST /session hands out a signed JWT naming a
// fresh participant ID, and every later request carries it back as a bearer
// token, a cookie, or (for websocket upgrades) a ?token= query parameter.

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const cookieName = "wordle_area_token"

// participant is placed into request context by the auth middleware.
type participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ctxParticipantKey struct{}

func participantFrom(r *http.Request) *participant {
	p, _ := r.Context().Value(ctxParticipantKey{}).(*participant)
	return p
}

type sessionReq struct {
	Name string `json:"name"`
}

type sessionRes struct {
	Token       string      `json:"token"`
	Participant participant `json:"participant"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

// handleSession issues a token for a new participant and sets the cookie.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var body sessionReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	name := strings.TrimSpace(body.Name)
	if n := utf8.RuneCountInString(name); n < 1 || n > 24 {
		writeError(w, http.StatusBadRequest, "name must be 1-24 chars")
		return
	}
	p := participant{ID: uuid.NewString(), Name: name}
	tok, exp, err := s.signToken(p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sign_failed")
		return
	}
	s.setAuthCookie(w, tok, exp)
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(sessionRes{Token: tok, Participant: p, ExpiresAt: exp.UTC()})
}

// signToken creates an HS256 JWT carrying the participant's id and name.
func (s *Server) signToken(p participant) (string, time.Time, error) {
	days := s.cfg.JWTExpiresDays
	if days <= 0 {
		days = 14
	}
	now := s.now()
	exp := now.Add(time.Duration(days) * 24 * time.Hour)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   p.ID,
		"name": p.Name,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	})
	ss, err := t.SignedString([]byte(s.cfg.JWTSecret))
	return ss, exp, err
}

// parseToken validates tokenStr and returns its participant.
func (s *Server) parseToken(tokenStr string) (*participant, bool) {
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !t.Valid {
		return nil, false
	}
	id, _ := claims["id"].(string)
	name, _ := claims["name"].(string)
	if id == "" {
		return nil, false
	}
	return &participant{ID: id, Name: name}, true
}

// setAuthCookie writes the token cookie with appropriate security attributes.
func (s *Server) setAuthCookie(w http.ResponseWriter, token string, exp time.Time) {
	secure := s.cfg.Production
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  exp,
	})
}

// tokenFrom extracts a token from the Authorization header, the cookie, or
// the token query parameter, in that order.
func tokenFrom(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// withOptionalAuth decorates requests with the participant when a valid token
// is present. It never rejects.
func (s *Server) withOptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := tokenFrom(r); tok != "" {
				if p, ok := s.parseToken(tok); ok {
					r = r.WithContext(context.WithValue(r.Context(), ctxParticipantKey{}, p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAuth enforces a valid token.
func (s *Server) requireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := tokenFrom(r)
			if tok == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			p, ok := s.parseToken(tok)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxParticipantKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
