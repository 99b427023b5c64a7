// internal/replica/replica.go
//
// Client-side mirror of one game area.
// Responsibilities:
//   - Cache the last known snapshot plus an enriched occupant list.
//   - Fire exactly one typed event per field whose value actually changes.
//   - Stage local edits so the owner can push them back to the server.
//
// Equality rules:
//   - guessHistory: exact sequence equality.
//   - occupants:    set equality by participant ID (order and duplicates ignored).
//   - everything else: plain value equality.
//
// A Replica is not safe for concurrent use; it belongs to one event loop.

package replica

import (
	"slices"

	"github.com/robalobadob/wordle/apps/area-server/internal/area"
)

// Participant is an occupant as the client knows it.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Directory resolves occupant IDs from snapshots to participants.
type Directory interface {
	Participant(id string) (Participant, bool)
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(id string) (Participant, bool)

func (f DirectoryFunc) Participant(id string) (Participant, bool) { return f(id) }

// Replica mirrors an area's snapshot. Subscribe to the exported signals to
// react to changes.
type Replica struct {
	PlayingChange    Signal[bool]
	ScoreChange      Signal[int]
	HistoryChange    Signal[[]string]
	WonChange        Signal[bool]
	LostChange       Signal[bool]
	OccupantsChange  Signal[[]Participant]
	MainPlayerChange Signal[string]

	id         string
	isPlaying  bool
	score      int
	history    []string
	isWon      bool
	isLost     bool
	occupants  []Participant
	mainPlayer string

	dir     Directory
	pending bool
}

// New seeds a replica from an initial snapshot. dir may be nil, in which case
// occupants carry only their IDs.
func New(m area.Model, dir Directory) *Replica {
	r := &Replica{
		id:         m.ID,
		isPlaying:  m.IsPlaying,
		score:      m.CurrentScore,
		history:    slices.Clone(m.GuessHistory),
		isWon:      m.IsWon,
		isLost:     m.IsLost,
		mainPlayer: m.MainPlayer,
		dir:        dir,
	}
	r.occupants = r.resolve(m.OccupantIDs)
	return r
}

// ID never changes after construction.
func (r *Replica) ID() string { return r.id }

func (r *Replica) IsPlaying() bool          { return r.isPlaying }
func (r *Replica) Score() int               { return r.score }
func (r *Replica) GuessHistory() []string   { return slices.Clone(r.history) }
func (r *Replica) IsWon() bool              { return r.isWon }
func (r *Replica) IsLost() bool             { return r.isLost }
func (r *Replica) Occupants() []Participant { return slices.Clone(r.occupants) }
func (r *Replica) MainPlayer() string       { return r.mainPlayer }

// SetPlaying updates isPlaying and stages the change.
func (r *Replica) SetPlaying(v bool) { r.stage(r.setPlaying(v)) }

// SetScore updates the score and stages the change.
func (r *Replica) SetScore(v int) { r.stage(r.setScore(v)) }

// SetGuessHistory updates the history and stages the change.
func (r *Replica) SetGuessHistory(v []string) { r.stage(r.setHistory(v)) }

// SetWon updates isWon and stages the change.
func (r *Replica) SetWon(v bool) { r.stage(r.setWon(v)) }

// SetLost updates isLost and stages the change.
func (r *Replica) SetLost(v bool) { r.stage(r.setLost(v)) }

// SetOccupants updates the occupant list and stages the change.
func (r *Replica) SetOccupants(v []Participant) { r.stage(r.setOccupants(v)) }

// SetMainPlayer updates the main player and stages the change.
func (r *Replica) SetMainPlayer(v string) { r.stage(r.setMainPlayer(v)) }

// ApplyServerSnapshot reconciles with a server snapshot. Fields are applied in
// a fixed order (playing, score, history, won, lost, occupants, main player)
// so listeners observe events in that order. The id is never changed and
// nothing is staged.
func (r *Replica) ApplyServerSnapshot(m area.Model) {
	r.setPlaying(m.IsPlaying)
	r.setScore(m.CurrentScore)
	r.setHistory(m.GuessHistory)
	r.setWon(m.IsWon)
	r.setLost(m.IsLost)
	r.setOccupants(r.resolve(m.OccupantIDs))
	r.setMainPlayer(m.MainPlayer)
}

// ToModel rebuilds a full snapshot from the cached fields.
func (r *Replica) ToModel() area.Model {
	ids := make([]string, 0, len(r.occupants))
	for _, p := range r.occupants {
		ids = append(ids, p.ID)
	}
	history := make([]string, 0, len(r.history))
	history = append(history, r.history...)
	return area.Model{
		ID:           r.id,
		IsPlaying:    r.isPlaying,
		CurrentScore: r.score,
		GuessHistory: history,
		IsWon:        r.isWon,
		IsLost:       r.isLost,
		OccupantIDs:  ids,
		MainPlayer:   r.mainPlayer,
	}
}

// Pending reports whether local edits are waiting to be pushed.
func (r *Replica) Pending() bool { return r.pending }

// TakePending returns the model to push and clears the staged flag.
func (r *Replica) TakePending() (area.Model, bool) {
	if !r.pending {
		return area.Model{}, false
	}
	r.pending = false
	return r.ToModel(), true
}

func (r *Replica) stage(changed bool) {
	if changed {
		r.pending = true
	}
}

func (r *Replica) setPlaying(v bool) bool {
	if r.isPlaying == v {
		return false
	}
	r.isPlaying = v
	r.PlayingChange.emit(v)
	return true
}

func (r *Replica) setScore(v int) bool {
	if r.score == v {
		return false
	}
	r.score = v
	r.ScoreChange.emit(v)
	return true
}

func (r *Replica) setHistory(v []string) bool {
	if slices.Equal(r.history, v) {
		return false
	}
	r.history = slices.Clone(v)
	r.HistoryChange.emit(slices.Clone(v))
	return true
}

func (r *Replica) setWon(v bool) bool {
	if r.isWon == v {
		return false
	}
	r.isWon = v
	r.WonChange.emit(v)
	return true
}

func (r *Replica) setLost(v bool) bool {
	if r.isLost == v {
		return false
	}
	r.isLost = v
	r.LostChange.emit(v)
	return true
}

func (r *Replica) setOccupants(v []Participant) bool {
	if sameParticipants(r.occupants, v) {
		return false
	}
	r.occupants = slices.Clone(v)
	r.OccupantsChange.emit(slices.Clone(v))
	return true
}

func (r *Replica) setMainPlayer(v string) bool {
	if r.mainPlayer == v {
		return false
	}
	r.mainPlayer = v
	r.MainPlayerChange.emit(v)
	return true
}

func (r *Replica) resolve(ids []string) []Participant {
	out := make([]Participant, 0, len(ids))
	for _, id := range ids {
		p := Participant{ID: id}
		if r.dir != nil {
			if known, ok := r.dir.Participant(id); ok {
				p = known
			}
		}
		out = append(out, p)
	}
	return out
}

// sameParticipants compares the two lists as sets of IDs.
func sameParticipants(a, b []Participant) bool {
	sa, sb := idSet(a), idSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for id := range sa {
		if _, ok := sb[id]; !ok {
			return false
		}
	}
	return true
}

func idSet(ps []Participant) map[string]struct{} {
	m := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		m[p.ID] = struct{}{}
	}
	return m
}
