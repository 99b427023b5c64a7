// internal/game/engine.go
//
// Pure game rules over a solution and a guess history.
// Responsibilities:
//   - Derive status (Won takes precedence over Lost).
//   - Validate a candidate guess (finished -> length -> dictionary).
//   - Compute the score from scratch on every call.
//   - Produce per-letter feedback using the two-pass Wordle coloring.
//
// Nothing here holds state; areas call these on every update so the score and
// status can never drift from the history.
package game

import (
	"errors"
	"fmt"
	"strings"
)

// Rejection errors. They are recoverable and reported to the submitter only.
var (
	ErrGameFinished    = errors.New("game finished")
	ErrWrongLength     = errors.New("wrong length")
	ErrNotInDictionary = errors.New("not in word list")
)

// Reason values carried by rejection messages on the wire.
const (
	ReasonGameFinished    = "GameFinished"
	ReasonWrongLength     = "WrongLength"
	ReasonNotInDictionary = "NotInDictionary"
)

// Reason maps a rejection error to its wire reason, or "" if err is not one.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrGameFinished):
		return ReasonGameFinished
	case errors.Is(err, ErrWrongLength):
		return ReasonWrongLength
	case errors.Is(err, ErrNotInDictionary):
		return ReasonNotInDictionary
	}
	return ""
}

// Dictionary is the slice of the word corpus the engine needs.
type Dictionary interface {
	IsValidWord(word string, restricted bool) (bool, error)
}

// ComputeStatus derives the status. The last guess matching the solution
// wins even when the history is already full.
func ComputeStatus(solution string, history []string, maxGuesses int) Status {
	if n := len(history); n > 0 && strings.EqualFold(history[n-1], solution) {
		return Won
	}
	if len(history) >= maxGuesses {
		return Lost
	}
	return InProgress
}

// ValidateGuess checks candidate against the current game and returns it
// upper-cased. Only status, length and the dictionary decide the outcome.
func ValidateGuess(candidate, solution string, history []string, status Status, wordLength int, dict Dictionary) (string, error) {
	if status.Terminal() {
		return "", ErrGameFinished
	}
	guess := strings.ToUpper(strings.TrimSpace(candidate))
	if len(guess) != wordLength {
		return "", ErrWrongLength
	}
	ok, err := dict.IsValidWord(guess, false)
	if err != nil {
		return "", fmt.Errorf("validate guess: %w", err)
	}
	if !ok {
		return "", ErrNotInDictionary
	}
	return guess, nil
}

// ComputeScore sums positional bonuses for every guess that is not the
// solution, then adds the completion bonus if status is terminal.
//
// The per-guess scan is positional only: each letter earns hitPoints when it
// matches the solution at the same index, presentPoints when it appears
// anywhere else in the solution. Repeated letters are not frequency-adjusted.
func ComputeScore(solution string, history []string, status Status) int {
	solution = strings.ToUpper(solution)
	total := 0
	for _, g := range history {
		g = strings.ToUpper(g)
		if g == solution {
			continue
		}
		total += positionalPoints(solution, g)
	}
	if status.Terminal() && len(history) > 0 {
		i := len(history) - 1
		if i >= len(completionBonus) {
			i = len(completionBonus) - 1
		}
		total += completionBonus[i]
	}
	return total
}

func positionalPoints(solution, guess string) int {
	pts := 0
	for i := 0; i < len(guess); i++ {
		switch {
		case i < len(solution) && guess[i] == solution[i]:
			pts += hitPoints
		case strings.IndexByte(solution, guess[i]) >= 0:
			pts += presentPoints
		}
	}
	return pts
}

// Marks colors guess against solution with the standard two-pass algorithm.
//
// Pass 1 marks exact matches and counts the unmatched solution letters.
// Pass 2 marks a non-hit letter present while unmatched copies remain.
func Marks(solution, guess string) []Mark {
	solution = strings.ToUpper(solution)
	guess = strings.ToUpper(guess)
	n := len(guess)
	res := make([]Mark, n)

	var counts [26]int
	for i := 0; i < n; i++ {
		if i < len(solution) && guess[i] == solution[i] {
			res[i] = MarkHit
		} else if i < len(solution) {
			if j := idx(solution[i]); j >= 0 {
				counts[j]++
			}
		}
	}

	for i := 0; i < n; i++ {
		if res[i] == MarkHit {
			continue
		}
		j := idx(guess[i])
		if j >= 0 && counts[j] > 0 {
			res[i] = MarkPresent
			counts[j]--
		} else {
			res[i] = MarkMiss
		}
	}
	return res
}

// idx maps an uppercase ASCII letter to 0..25, or -1.
func idx(b byte) int {
	if b < 'A' || b > 'Z' {
		return -1
	}
	return int(b - 'A')
}
