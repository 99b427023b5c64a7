// Package hub fans area snapshots out to the websocket connections watching
// each area.
//
// The hub implements area.Emitter. Areas call it while holding their lock, so
// BroadcastAreaChanged never blocks: every subscriber owns a buffered queue
// and a subscriber that cannot keep up is dropped.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle/apps/area-server/internal/area"
	"github.com/robalobadob/wordle/apps/area-server/internal/protocol"
)

// Subscriber receives encoded frames for one area.
type Subscriber interface {
	// Send queues msg without blocking and reports whether it was accepted.
	Send(msg []byte) bool
	// Close tells the subscriber it has been dropped.
	Close()
}

// Hub tracks subscribers per area ID.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[Subscriber]struct{}
}

// New returns an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[string]map[Subscriber]struct{})}
}

// Subscribe starts delivering updates for areaID to s.
func (h *Hub) Subscribe(areaID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[areaID]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.subs[areaID] = set
	}
	set[s] = struct{}{}
	log.Debug().Str("area", areaID).Int("subscribers", len(set)).Msg("subscriber added")
}

// Unsubscribe stops delivery to s. Safe to call more than once.
func (h *Hub) Unsubscribe(areaID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(areaID, s)
}

func (h *Hub) remove(areaID string, s Subscriber) {
	set, ok := h.subs[areaID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, areaID)
	}
}

// Count returns the number of subscribers watching areaID.
func (h *Hub) Count(areaID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[areaID])
}

// BroadcastAreaChanged implements area.Emitter.
func (h *Hub) BroadcastAreaChanged(u area.Update) {
	msg, err := protocol.Encode(protocol.AreaChanged(u))
	if err != nil {
		log.Error().Err(err).Str("area", u.AreaID).Msg("encode snapshot")
		return
	}

	var dropped []Subscriber
	h.mu.RLock()
	for s := range h.subs[u.AreaID] {
		if !s.Send(msg) {
			dropped = append(dropped, s)
		}
	}
	h.mu.RUnlock()

	if len(dropped) == 0 {
		return
	}
	h.mu.Lock()
	for _, s := range dropped {
		h.remove(u.AreaID, s)
	}
	h.mu.Unlock()
	for _, s := range dropped {
		log.Warn().Str("area", u.AreaID).Uint64("seq", u.Seq).Msg("dropping slow subscriber")
		s.Close()
	}
}
