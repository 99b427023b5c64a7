// Package protocol defines the websocket messages exchanged between a game
// area and its client replicas.
//
// Server → client:
//   - areaChanged: full snapshot with the area's broadcast sequence number.
//   - rejected:    a guess/reset/update from this connection was refused.
//   - error:       the message could not be understood.
//
// Client → server:
//   - guess:  {guess} → main player submits a word.
//   - reset:  {}      → main player starts over.
//   - update: {area}  → main player pushes a locally edited replica.
package protocol

import (
	"encoding/json"

	"github.com/robalobadob/wordle/apps/area-server/internal/area"
)

// Message types.
const (
	TypeAreaChanged = "areaChanged"
	TypeRejected    = "rejected"
	TypeError       = "error"
	TypeGuess       = "guess"
	TypeReset       = "reset"
	TypeUpdate      = "update"
)

// Envelope is the single frame shape used in both directions.
type Envelope struct {
	Type   string      `json:"type"`
	AreaID string      `json:"areaId,omitempty"`
	Seq    uint64      `json:"seq,omitempty"`
	Area   *area.Model `json:"area,omitempty"`
	Guess  string      `json:"guess,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// AreaChanged wraps a broadcast update.
func AreaChanged(u area.Update) Envelope {
	m := u.Model
	return Envelope{Type: TypeAreaChanged, AreaID: u.AreaID, Seq: u.Seq, Area: &m}
}

// Rejected reports a refused intent to its sender.
func Rejected(areaID, reason string) Envelope {
	return Envelope{Type: TypeRejected, AreaID: areaID, Reason: reason}
}

// Encode marshals an envelope.
func Encode(e Envelope) ([]byte, error) { return json.Marshal(e) }

// Decode unmarshals an envelope.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(b, &e)
	return e, err
}
