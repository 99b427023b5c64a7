// Package client keeps a replica of one game area in sync with the server
// over a websocket.
//
// Snapshots are applied in arrival order, and any snapshot whose sequence
// number is not newer than the last one applied is dropped. All replica
// access goes through one mutex: Run applies snapshots under it, and callers
// use Do to read the replica or subscribe to its signals.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle/apps/area-server/internal/protocol"
	"github.com/robalobadob/wordle/apps/area-server/internal/replica"
)

// ErrNoSnapshot is returned when an operation needs the replica before the
// first snapshot arrived.
var ErrNoSnapshot = errors.New("client: no snapshot yet")

// Options configure a Client.
type Options struct {
	// Token is sent as a bearer token; without it the client only watches.
	Token string
	// Directory resolves occupant IDs to names. Optional.
	Directory replica.Directory
	// OnReady runs once, under the client lock, right after the replica is
	// created from the first snapshot. Subscribe to signals here.
	OnReady func(r *replica.Replica)
	// OnRejected receives the reason of every rejected intent.
	OnRejected func(reason string)
}

// Client is one connection to an area.
type Client struct {
	ws   *websocket.Conn
	opts Options

	writeMu sync.Mutex

	mu      sync.Mutex
	replica *replica.Replica
	lastSeq uint64
	dropped int

	ready     chan struct{}
	readyOnce sync.Once
}

// Dial connects to url (ws://host/areas/{id}/ws).
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	h := http.Header{}
	if opts.Token != "" {
		h.Set("Authorization", "Bearer "+opts.Token)
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, h)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{ws: ws, opts: opts, ready: make(chan struct{})}, nil
}

// Ready is closed once the first snapshot has been applied.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// Run reads frames until the connection closes or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	defer stop()

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		env, err := protocol.Decode(b)
		if err != nil {
			log.Warn().Err(err).Msg("client: bad frame")
			continue
		}
		c.handle(env)
	}
}

func (c *Client) handle(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeAreaChanged:
		if env.Area != nil {
			c.applySnapshot(env)
		}
	case protocol.TypeRejected, protocol.TypeError:
		if c.opts.OnRejected != nil {
			c.opts.OnRejected(env.Reason)
		}
	}
}

func (c *Client) applySnapshot(env protocol.Envelope) {
	seq := env.Seq
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replica == nil {
		c.replica = replica.New(*env.Area, c.opts.Directory)
		c.lastSeq = seq
		if c.opts.OnReady != nil {
			c.opts.OnReady(c.replica)
		}
		c.readyOnce.Do(func() { close(c.ready) })
		return
	}
	if seq <= c.lastSeq {
		c.dropped++
		return
	}
	c.lastSeq = seq
	c.replica.ApplyServerSnapshot(*env.Area)
}

// Do runs fn with exclusive access to the replica.
func (c *Client) Do(fn func(r *replica.Replica)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replica == nil {
		return ErrNoSnapshot
	}
	fn(c.replica)
	return nil
}

// Seq returns the sequence number of the last applied snapshot.
func (c *Client) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

// Dropped returns how many stale snapshots were discarded.
func (c *Client) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// SubmitGuess sends a guess intent. The outcome arrives as a snapshot or a
// rejection.
func (c *Client) SubmitGuess(guess string) error {
	return c.write(protocol.Envelope{Type: protocol.TypeGuess, AreaID: c.areaID(), Guess: guess})
}

// Reset asks the server to start a new playthrough.
func (c *Client) Reset() error {
	return c.write(protocol.Envelope{Type: protocol.TypeReset, AreaID: c.areaID()})
}

// Push sends the replica's staged local edits, if any, and reports whether
// anything was sent.
func (c *Client) Push() (bool, error) {
	c.mu.Lock()
	if c.replica == nil {
		c.mu.Unlock()
		return false, ErrNoSnapshot
	}
	m, ok := c.replica.TakePending()
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, c.write(protocol.Envelope{Type: protocol.TypeUpdate, AreaID: m.ID, Area: &m})
}

// areaID is the replica's area, or "" before the first snapshot.
func (c *Client) areaID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replica == nil {
		return ""
	}
	return c.replica.ID()
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Client) write(env protocol.Envelope) error {
	b, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}
