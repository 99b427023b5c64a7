package area

import (
	"errors"
	"fmt"

	"github.com/robalobadob/wordle/apps/area-server/internal/game"
)

// Rejections specific to areas. Like the engine's rejections they leave the
// area untouched and are reported to the caller only.
var (
	ErrNotPlaying     = errors.New("no game in progress")
	ErrNotMainPlayer  = errors.New("only the main player may do that")
	ErrMalformedModel = errors.New("malformed area model")
)

const (
	ReasonNotPlaying     = "NotPlaying"
	ReasonNotMainPlayer  = "NotMainPlayer"
	ReasonMalformedModel = "MalformedModel"
)

// MalformedAreaError is returned by New when the area cannot be constructed.
type MalformedAreaError struct {
	ID     string
	Detail string
}

func (e *MalformedAreaError) Error() string {
	return fmt.Sprintf("area %q: %s", e.ID, e.Detail)
}

// Reason maps a rejection to its wire reason, or "" if err is not a rejection.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotPlaying):
		return ReasonNotPlaying
	case errors.Is(err, ErrNotMainPlayer):
		return ReasonNotMainPlayer
	case errors.Is(err, ErrMalformedModel):
		return ReasonMalformedModel
	}
	return game.Reason(err)
}
