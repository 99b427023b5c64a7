// internal/game/types.go
//
// Core type definitions for the game engine.
// Defines:
//   - Mark: per-letter feedback for a guess (hit/present/miss).
//   - Status: derived game status (in progress, won, lost).
//   - The fixed board dimensions and scoring constants.

package game

// Mark represents the evaluation result for a single letter in a guess.
//   - "hit":     letter is correct and in the correct position.
//   - "present": letter exists in the solution but in a different position.
//   - "miss":    letter does not exist in the (remaining) solution.
type Mark string

const (
	MarkHit     Mark = "hit"
	MarkPresent Mark = "present"
	MarkMiss    Mark = "miss"
)

// Status is derived from (solution, history); it is never stored on its own.
type Status int

const (
	InProgress Status = iota
	Won
	Lost
)

func (s Status) String() string {
	switch s {
	case Won:
		return "won"
	case Lost:
		return "lost"
	default:
		return "playing"
	}
}

// Terminal reports whether no further guesses are accepted.
func (s Status) Terminal() bool { return s == Won || s == Lost }

const (
	// WordLength is the number of letters per guess.
	WordLength = 5
	// MaxGuesses is the number of rows on the board.
	MaxGuesses = 6

	hitPoints     = 50
	presentPoints = 25
)

// completionBonus is indexed by len(history)-1 when the game ends.
var completionBonus = [MaxGuesses]int{2000, 1500, 1000, 500, 250, 150}
