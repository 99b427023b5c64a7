package area

import "time"

// Model is the externally visible snapshot of an area. The field set is the
// wire contract shared by the server and every client replica; the solution
// is never part of it.
type Model struct {
	ID           string   `json:"id"`
	IsPlaying    bool     `json:"isPlaying"`
	CurrentScore int      `json:"currentScore"`
	GuessHistory []string `json:"guessHistory"`
	IsWon        bool     `json:"isWon"`
	IsLost       bool     `json:"isLost"`
	OccupantIDs  []string `json:"occupantIDs"`
	MainPlayer   string   `json:"mainPlayer,omitempty"`
}

// Bounds is the area's rectangle in world coordinates.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Update is one broadcast. Seq increases by one per broadcast of an area, so
// receivers can discard anything not newer than what they already applied.
type Update struct {
	AreaID string
	Seq    uint64
	Model  Model
}

// Emitter receives every snapshot an area broadcasts. Implementations must
// not block: areas call it while holding their lock.
type Emitter interface {
	BroadcastAreaChanged(u Update)
}

// Emitters fans one update out to several emitters in order.
type Emitters []Emitter

func (es Emitters) BroadcastAreaChanged(u Update) {
	for _, e := range es {
		if e != nil {
			e.BroadcastAreaChanged(u)
		}
	}
}

// Outcome describes a finished playthrough.
type Outcome struct {
	AreaID     string
	MainPlayer string
	Guesses    int
	Score      int
	Won        bool
	FinishedAt time.Time
}
