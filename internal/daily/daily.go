// Package daily picks a deterministic solution for a calendar day.
package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Word returns the entry of list keyed to date's UTC day, or "" if the list
// is empty. The same salt, day and list always give the same word.
func Word(list []string, salt string, date time.Time) string {
	if len(list) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(DateKey(date)))
	k := binary.BigEndian.Uint64(mac.Sum(nil))
	return list[k%uint64(len(list))]
}
