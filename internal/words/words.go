// internal/words/words.go
//
// Word corpus for game areas.
//
// Responsibilities:
//   - Load the broad ("all") and common ("pool") word lists exactly once,
//     from env-configured files or the embedded defaults.
//   - Gate every query on that load finishing (Ready/Wait), so callers never
//     race the loader.
//   - Answer membership (IsValidWord) and sampling (RandomWord) queries.
//
// Word Lists:
//   - "pool": common words that solutions are drawn from.
//   - "all":  every accepted guess (always includes the pool).
//
// Initialization behavior (Load):
//   1. If both Source files are set, read each list from its file.
//   2. If only AllFile is set, use it for both lists.
//   3. Otherwise use the embedded ENG-5-ALL / ENG-5-POOL lists.
//
// Constraints:
//   • Only five-letter words are supported; other lengths are a programming
//     error reported as UnsupportedLengthError.
//   • Lists are normalized to uppercase; non-alphabetic lines are dropped.

package words

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/robalobadob/wordle/apps/area-server/assets"
)

// Length is the single supported word length.
const Length = 5

// ErrNotReady is returned by queries issued before Load has completed.
var ErrNotReady = errors.New("words: corpus not loaded")

// UnsupportedLengthError reports a query for a word length other than Length.
type UnsupportedLengthError struct {
	Length int
}

func (e *UnsupportedLengthError) Error() string {
	return fmt.Sprintf("words: coverage for words of length %d is unsupported", e.Length)
}

// Source names the files to load. Empty fields fall back to embedded lists.
type Source struct {
	AllFile  string
	PoolFile string
}

// Corpus is a read-only word store shared by every area.
// The zero value is not usable; construct with New or FromLists.
type Corpus struct {
	once  sync.Once
	ready chan struct{}
	err   error

	all     []string
	pool    []string
	allSet  map[string]struct{}
	poolSet map[string]struct{}
}

// New returns an empty corpus that becomes ready once Load completes.
func New() *Corpus {
	return &Corpus{ready: make(chan struct{})}
}

// FromLists builds a corpus that is ready immediately.
func FromLists(all, pool []string) *Corpus {
	c := New()
	c.once.Do(func() {
		c.install(all, pool)
		close(c.ready)
	})
	return c
}

// Load reads the word lists once. Later calls return the first result.
// The corpus is marked ready even on failure so waiters are released; the
// load error is then returned by Wait.
func (c *Corpus) Load(ctx context.Context, src Source) error {
	c.once.Do(func() {
		defer close(c.ready)
		all, pool, err := readSource(ctx, src)
		if err != nil {
			c.err = err
			return
		}
		c.install(all, pool)
		if len(c.pool) == 0 {
			c.err = errors.New("words: pool list is empty")
		}
	})
	return c.err
}

// Ready is closed once Load has finished.
func (c *Corpus) Ready() <-chan struct{} { return c.ready }

// Wait blocks until the corpus is loaded or ctx is done.
func (c *Corpus) Wait(ctx context.Context) error {
	select {
	case <-c.ready:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Corpus) loaded() error {
	select {
	case <-c.ready:
		return c.err
	default:
		return ErrNotReady
	}
}

// IsValidWord reports whether word is in the pool (restricted) or the broad
// list. Case-insensitive.
func (c *Corpus) IsValidWord(word string, restricted bool) (bool, error) {
	if len(word) != Length {
		return false, &UnsupportedLengthError{Length: len(word)}
	}
	if err := c.loaded(); err != nil {
		return false, err
	}
	set := c.allSet
	if restricted {
		set = c.poolSet
	}
	_, ok := set[strings.ToUpper(word)]
	return ok, nil
}

// RandomWord returns a uniformly random word of the given length.
func (c *Corpus) RandomWord(length int, restricted bool) (string, error) {
	if length != Length {
		return "", &UnsupportedLengthError{Length: length}
	}
	if err := c.loaded(); err != nil {
		return "", err
	}
	list := c.all
	if restricted {
		list = c.pool
	}
	if len(list) == 0 {
		return "", errors.New("words: list is empty")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
	if err != nil {
		return "", fmt.Errorf("words: sample: %w", err)
	}
	return list[n.Int64()], nil
}

// Words returns the pool (restricted) or broad list. Callers must not mutate it.
func (c *Corpus) Words(restricted bool) []string {
	if c.loaded() != nil {
		return nil
	}
	if restricted {
		return c.pool
	}
	return c.all
}

// Stats returns counts of loaded words: (all, pool).
func (c *Corpus) Stats() (allCount int, poolCount int) {
	if c.loaded() != nil {
		return 0, 0
	}
	return len(c.allSet), len(c.poolSet)
}

// install normalizes both lists and makes the pool a subset of the broad set.
func (c *Corpus) install(all, pool []string) {
	c.pool = normalize(pool)
	c.poolSet = toSet(c.pool)
	c.allSet = toSet(c.pool)
	c.all = append([]string{}, c.pool...)
	for _, w := range normalize(all) {
		if _, ok := c.allSet[w]; ok {
			continue
		}
		c.allSet[w] = struct{}{}
		c.all = append(c.all, w)
	}
}

func readSource(ctx context.Context, src Source) (all, pool []string, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	switch {
	case src.AllFile != "" && src.PoolFile != "":
		if all, err = readWordFile(src.AllFile); err != nil {
			return nil, nil, err
		}
		if pool, err = readWordFile(src.PoolFile); err != nil {
			return nil, nil, err
		}
	case src.AllFile != "":
		if all, err = readWordFile(src.AllFile); err != nil {
			return nil, nil, err
		}
		pool = all
	default:
		if all, err = assets.AllList(); err != nil {
			return nil, nil, fmt.Errorf("words: embedded all list: %w", err)
		}
		if pool, err = assets.PoolList(); err != nil {
			return nil, nil, fmt.Errorf("words: embedded pool list: %w", err)
		}
	}
	return all, pool, nil
}

func readWordFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("words: open %s: %w", path, err)
	}
	defer f.Close()
	return assets.ReadWords(f)
}

// normalize keeps only Length-letter alphabetic words, upper-cased, in order.
func normalize(list []string) []string {
	out := make([]string, 0, len(list))
	for _, w := range list {
		w = strings.ToUpper(strings.TrimSpace(w))
		if len(w) == Length && isAlpha(w) {
			out = append(out, w)
		}
	}
	return out
}

func toSet(list []string) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, w := range list {
		m[w] = struct{}{}
	}
	return m
}

// isAlpha reports whether s is all uppercase ASCII letters.
func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
