// internal/httpserver/ws.go
//
// Websocket endpoint: GET /areas/{id}/ws[?token=...]
//
// On connect the socket is subscribed to the area in the hub and primed with
// the current snapshot. Every later broadcast arrives as an areaChanged frame
// carrying the area's sequence number; a snapshot can reach the socket twice
// (priming plus broadcast), and clients drop anything not newer than what they
// hold.
//
// A connection that presented a valid token may send intents (guess, reset,
// update). Rejections are written to that connection only. Watchers without a
// token receive snapshots and are rejected with NotMainPlayer on intents.
//
// An area hosted by another instance can be watched too: the socket is primed
// with the owner's last published snapshot and fed by the relay through the
// hub. Intents on such a socket get a "remote_area" error.

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle/apps/area-server/internal/area"
	"github.com/robalobadob/wordle/apps/area-server/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// wsConn is one websocket subscriber. It implements hub.Subscriber.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

// Send queues msg unless the buffer is full or the connection is closed.
func (c *wsConn) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the socket.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (s *Server) upgrader() websocket.Upgrader {
	origin := s.cfg.ClientOrigin
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || origin == "" || o == origin || !s.cfg.Production
		},
	}
}

// errRemoteArea rejects intents for an area hosted by another instance.
var errRemoteArea = errors.New("area is hosted by another instance")

// intentFunc applies one client intent on behalf of player ("" when the
// connection has no token).
type intentFunc func(player string, env protocol.Envelope) error

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a, err := s.store.Get(r.Context(), id); err == nil {
		s.serveWS(w, r, id, func() (area.Update, bool) { return a.Snapshot(), true }, s.localIntents(a))
		return
	}
	if s.claims != nil {
		_, remote, err := s.claims.Remote(r.Context(), id)
		if err != nil {
			log.Warn().Err(err).Str("area", id).Msg("remote area lookup")
		}
		if remote {
			s.serveWS(w, r, id, s.remoteSnapshot(id), func(string, protocol.Envelope) error { return errRemoteArea })
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found")
}

// remoteSnapshot reads the owner's latest published snapshot, if any.
func (s *Server) remoteSnapshot(id string) func() (area.Update, bool) {
	return func() (area.Update, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		u, remote, err := s.claims.Remote(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("area", id).Msg("remote snapshot")
			return area.Update{}, false
		}
		return u, remote && u.Seq > 0
	}
}

// serveWS upgrades the request and streams the hub's frames for id.
// snapshot primes the socket; it runs after subscribing so no broadcast falls
// in between.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, id string, snapshot func() (area.Update, bool), apply intentFunc) {
	player := ""
	if me := participantFrom(r); me != nil {
		player = me.ID
	}

	up := s.upgrader()
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("area", id).Msg("websocket upgrade")
		return
	}
	c := newWSConn(ws)

	s.hub.Subscribe(id, c)
	defer s.hub.Unsubscribe(id, c)
	if u, ok := snapshot(); ok {
		s.sendEnvelope(c, protocol.AreaChanged(u))
	}

	logger := log.With().Str("area", id).Str("remote", r.RemoteAddr).Str("player", player).Logger()
	logger.Debug().Msg("websocket connected")

	go c.writePump()
	s.readPump(c, id, player, apply)
	c.Close()
	logger.Debug().Msg("websocket closed")
}

// readPump handles intents until the peer goes away.
func (s *Server) readPump(c *wsConn, id, player string, apply intentFunc) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("area", id).Msg("websocket read")
			}
			return
		}
		env, err := protocol.Decode(b)
		if err != nil {
			s.sendEnvelope(c, protocol.Envelope{Type: protocol.TypeError, AreaID: id, Reason: "bad_json"})
			continue
		}
		err = apply(player, env)
		switch reason := area.Reason(err); {
		case err == nil:
		case errors.Is(err, errRemoteArea):
			s.sendEnvelope(c, protocol.Envelope{Type: protocol.TypeError, AreaID: id, Reason: "remote_area"})
		case reason != "":
			s.sendEnvelope(c, protocol.Rejected(id, reason))
		default:
			log.Error().Err(err).Str("area", id).Str("type", env.Type).Msg("intent failed")
			s.sendEnvelope(c, protocol.Envelope{Type: protocol.TypeError, AreaID: id, Reason: "internal_error"})
		}
	}
}

// localIntents routes client intents to a. Successful intents are answered by
// the area's own broadcast. An intent naming another area is malformed.
func (s *Server) localIntents(a *area.Area) intentFunc {
	return func(player string, env protocol.Envelope) error {
		if env.AreaID != "" && env.AreaID != a.ID() {
			return fmt.Errorf("%w: intent for area %q", area.ErrMalformedModel, env.AreaID)
		}
		switch env.Type {
		case protocol.TypeGuess:
			return a.ApplyGuessFrom(player, env.Guess)
		case protocol.TypeReset:
			return a.ResetFrom(player)
		case protocol.TypeUpdate:
			if env.Area == nil {
				return area.ErrMalformedModel
			}
			return a.ApplyModelFrom(player, *env.Area)
		default:
			return area.ErrMalformedModel
		}
	}
}

func (s *Server) sendEnvelope(c *wsConn, env protocol.Envelope) {
	b, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Msg("encode envelope")
		return
	}
	if !c.Send(b) {
		c.Close()
	}
}

// writePump is the only writer on the socket.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
