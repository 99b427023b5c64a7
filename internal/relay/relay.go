// Package relay shares area snapshots between server instances over a redis
// pub/sub channel.
//
// Area IDs are owned globally: an instance must Claim an ID in redis before it
// hosts an area under it, and only the owner publishes that area's
// broadcasts. The owner also keeps the latest snapshot in redis so another
// instance can prime a websocket watcher of the remote area. Remote
// broadcasts are forwarded into the local hub once per (claim, area) in
// sequence order; broadcasts for IDs this instance owns are never forwarded.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle/apps/area-server/internal/area"
	"github.com/robalobadob/wordle/apps/area-server/internal/protocol"
)

const queueSize = 256

// message is the payload published on the channel and stored as the latest
// snapshot of an area.
type message struct {
	Origin   string            `json:"origin"`
	Claim    string            `json:"claim"`
	Envelope protocol.Envelope `json:"envelope"`
}

type outgoing struct {
	areaID  string
	payload []byte
}

// Relay publishes local broadcasts and forwards remote ones.
type Relay struct {
	rdb     *redis.Client
	channel string
	origin  string
	queue   chan outgoing

	mu      sync.Mutex
	owned   map[string]string // area ID -> claim token
	lastSeq map[string]uint64 // claim token -> last forwarded seq
}

// Connect dials redis at addr and checks the connection.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// New returns a relay on channel with a random instance id.
func New(rdb *redis.Client, channel string) *Relay {
	return &Relay{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		queue:   make(chan outgoing, queueSize),
		owned:   make(map[string]string),
		lastSeq: make(map[string]uint64),
	}
}

// Origin identifies this instance on the channel.
func (r *Relay) Origin() string { return r.origin }

func (r *Relay) ownerKey(id string) string    { return r.channel + ":owner:" + id }
func (r *Relay) snapshotKey(id string) string { return r.channel + ":snapshot:" + id }

// Claim reserves id for this instance. It reports false when the ID is
// already held, by this instance or any other.
func (r *Relay) Claim(ctx context.Context, id string) (bool, error) {
	token := r.origin + "/" + uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, r.ownerKey(id), token, 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", id, err)
	}
	if ok {
		r.mu.Lock()
		r.owned[id] = token
		r.mu.Unlock()
	}
	return ok, nil
}

// releaseScript drops the claim and snapshot only while the caller still
// holds the claim.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1], KEYS[2])
end
return 0
`)

// Release gives up a claim taken by Claim. Releasing an ID this instance does
// not own is a no-op.
func (r *Relay) Release(ctx context.Context, id string) error {
	r.mu.Lock()
	token, ok := r.owned[id]
	delete(r.owned, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	keys := []string{r.ownerKey(id), r.snapshotKey(id)}
	if err := releaseScript.Run(ctx, r.rdb, keys, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", id, err)
	}
	return nil
}

// Remote reports whether id is owned by another instance and, if so, returns
// the latest snapshot that instance published. A zero Seq means the owner has
// published nothing yet.
func (r *Relay) Remote(ctx context.Context, id string) (area.Update, bool, error) {
	vals, err := r.rdb.MGet(ctx, r.ownerKey(id), r.snapshotKey(id)).Result()
	if err != nil {
		return area.Update{}, false, fmt.Errorf("lookup %s: %w", id, err)
	}
	owner, _ := vals[0].(string)
	if owner == "" {
		return area.Update{}, false, nil
	}
	r.mu.Lock()
	mine := r.owned[id] == owner
	r.mu.Unlock()
	if mine {
		return area.Update{}, false, nil
	}
	raw, _ := vals[1].(string)
	var msg message
	if raw == "" || json.Unmarshal([]byte(raw), &msg) != nil || msg.Claim != owner || msg.Envelope.Area == nil {
		return area.Update{AreaID: id}, true, nil
	}
	return toUpdate(msg.Envelope), true, nil
}

// BroadcastAreaChanged implements area.Emitter. It only queues; Run publishes.
// Updates for areas this instance has not claimed are ignored. When the queue
// is full the update is dropped, since a later snapshot of the same area
// supersedes it.
func (r *Relay) BroadcastAreaChanged(u area.Update) {
	r.mu.Lock()
	token, ok := r.owned[u.AreaID]
	r.mu.Unlock()
	if !ok {
		log.Debug().Str("area", u.AreaID).Msg("relay: area not claimed; not publishing")
		return
	}
	b, err := json.Marshal(message{Origin: r.origin, Claim: token, Envelope: protocol.AreaChanged(u)})
	if err != nil {
		log.Error().Err(err).Str("area", u.AreaID).Msg("relay encode")
		return
	}
	select {
	case r.queue <- outgoing{areaID: u.AreaID, payload: b}:
	default:
		log.Warn().Str("area", u.AreaID).Uint64("seq", u.Seq).Msg("relay queue full; dropping")
	}
}

// Run publishes queued updates until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case out := <-r.queue:
			if err := r.publish(ctx, out); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warn().Err(err).Str("channel", r.channel).Str("area", out.areaID).Msg("relay publish")
			}
		}
	}
}

// publish stores the snapshot before announcing it, so a watcher that reads
// the stored snapshot after subscribing cannot miss the next broadcast.
func (r *Relay) publish(ctx context.Context, out outgoing) error {
	r.mu.Lock()
	_, ok := r.owned[out.areaID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.snapshotKey(out.areaID), out.payload, 0)
		p.Publish(ctx, r.channel, out.payload)
		return nil
	})
	return err
}

// Listen forwards snapshots published by other instances to sink until ctx
// is done.
func (r *Relay) Listen(ctx context.Context, sink area.Emitter) error {
	sub, err := r.subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()
	r.forward(ctx, sub, sink)
	return nil
}

func (r *Relay) subscribe(ctx context.Context) (*redis.PubSub, error) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	// Wait for the subscription confirmation so nothing published after
	// this returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	log.Info().Str("channel", r.channel).Str("origin", r.origin).Msg("relay listening")
	return sub, nil
}

func (r *Relay) forward(ctx context.Context, sub *redis.PubSub, sink area.Emitter) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Warn().Err(err).Msg("relay: bad payload")
				continue
			}
			if msg.Origin == r.origin {
				continue
			}
			env := msg.Envelope
			if env.Type != protocol.TypeAreaChanged || env.Area == nil {
				continue
			}
			if !r.accept(msg.Claim, env.AreaID, env.Seq) {
				continue
			}
			sink.BroadcastAreaChanged(toUpdate(env))
		}
	}
}

// accept reports whether a remote update should reach the local hub: the ID
// must not be hosted here and seq must be newer than anything already
// forwarded for the same claim.
func (r *Relay) accept(claim, areaID string, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, mine := r.owned[areaID]; mine {
		log.Warn().Str("area", areaID).Str("claim", claim).Msg("relay: remote update for a local area; ignoring")
		return false
	}
	if seq <= r.lastSeq[claim] {
		return false
	}
	r.lastSeq[claim] = seq
	return true
}

func toUpdate(env protocol.Envelope) area.Update {
	return area.Update{AreaID: env.AreaID, Seq: env.Seq, Model: *env.Area}
}
