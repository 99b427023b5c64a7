package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/robalobadob/wordle/apps/area-server/internal/area"
	"github.com/robalobadob/wordle/apps/area-server/internal/protocol"
	"github.com/robalobadob/wordle/apps/area-server/internal/replica"
)

// scriptServer writes frames to every connection and records what it reads.
type scriptServer struct {
	frames []protocol.Envelope

	mu   sync.Mutex
	read []protocol.Envelope
}

func (s *scriptServer) handler(t *testing.T) http.HandlerFunc {
	up := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		for _, f := range s.frames {
			b, _ := protocol.Encode(f)
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
		for {
			_, b, err := ws.ReadMessage()
			if err != nil {
				return
			}
			env, _ := protocol.Decode(b)
			s.mu.Lock()
			s.read = append(s.read, env)
			s.mu.Unlock()
		}
	}
}

func (s *scriptServer) received() []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Envelope(nil), s.read...)
}

func snapshot(seq uint64, score int, history ...string) protocol.Envelope {
	return protocol.AreaChanged(area.Update{
		AreaID: "area-1",
		Seq:    seq,
		Model: area.Model{
			ID:           "area-1",
			IsPlaying:    true,
			CurrentScore: score,
			GuessHistory: history,
			OccupantIDs:  []string{"p1"},
			MainPlayer:   "p1",
		},
	})
}

func start(t *testing.T, srv *scriptServer, opts Options) (*Client, context.CancelFunc) {
	t.Helper()
	ts := httptest.NewServer(srv.handler(t))
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), opts)
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() { cancel(); _ = c.Close() })
	return c, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStaleSnapshotsAreDropped(t *testing.T) {
	srv := &scriptServer{frames: []protocol.Envelope{
		snapshot(1, 0),
		snapshot(3, 100, "GAAAA", "GUAAA"),
		snapshot(2, 50, "GAAAA"),
		snapshot(3, 100, "GAAAA", "GUAAA"),
		{Type: protocol.TypeRejected, AreaID: "area-1", Reason: "NotInDictionary"},
	}}

	var mu sync.Mutex
	var scores []int
	var reasons []string
	c, _ := start(t, srv, Options{
		OnReady: func(r *replica.Replica) {
			r.ScoreChange.Subscribe(func(v int) {
				mu.Lock()
				scores = append(scores, v)
				mu.Unlock()
			})
		},
		OnRejected: func(reason string) {
			mu.Lock()
			reasons = append(reasons, reason)
			mu.Unlock()
		},
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reasons) == 1
	})
	if c.Seq() != 3 || c.Dropped() != 2 {
		t.Fatalf("seq=%d dropped=%d, want 3 and 2", c.Seq(), c.Dropped())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(scores) != 1 || scores[0] != 100 {
		t.Fatalf("score events = %v, want [100]", scores)
	}
	if reasons[0] != "NotInDictionary" {
		t.Fatalf("reason = %q", reasons[0])
	}
	_ = c.Do(func(r *replica.Replica) {
		if got := r.GuessHistory(); len(got) != 2 {
			t.Fatalf("history = %v", got)
		}
	})
}

func TestIntentsAreSent(t *testing.T) {
	srv := &scriptServer{frames: []protocol.Envelope{snapshot(1, 0)}}
	c, _ := start(t, srv, Options{Token: "tok"})

	if err := c.Do(func(*replica.Replica) {}); err != nil && err != ErrNoSnapshot {
		t.Fatal(err)
	}
	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("no first snapshot")
	}

	if sent, err := c.Push(); err != nil || sent {
		t.Fatalf("Push with nothing staged = %v, %v", sent, err)
	}
	if err := c.SubmitGuess("crane"); err != nil {
		t.Fatal(err)
	}
	if err := c.Reset(); err != nil {
		t.Fatal(err)
	}
	_ = c.Do(func(r *replica.Replica) { r.SetGuessHistory([]string{"CRANE"}) })
	if sent, err := c.Push(); err != nil || !sent {
		t.Fatalf("Push = %v, %v", sent, err)
	}

	waitFor(t, func() bool { return len(srv.received()) == 3 })
	got := srv.received()
	if got[0].Type != protocol.TypeGuess || got[0].Guess != "crane" || got[0].AreaID != "area-1" {
		t.Fatalf("first intent = %+v", got[0])
	}
	if got[1].Type != protocol.TypeReset || got[1].AreaID != "area-1" {
		t.Fatalf("second intent = %+v", got[1])
	}
	if got[2].Type != protocol.TypeUpdate || got[2].Area == nil || len(got[2].Area.GuessHistory) != 1 {
		t.Fatalf("third intent = %+v", got[2])
	}
}
