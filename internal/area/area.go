// internal/area/area.go
//
// Authoritative, server-side game area.
// Responsibilities:
//   - Own the solution, guess history and occupancy of one area.
//   - Apply guesses, resets and bulk model updates through the game engine,
//     recomputing status and score from scratch every time.
//   - Broadcast a full snapshot after every state change.
//
// Concurrency:
//   - Every operation holds the area mutex, so one area has a single writer.
//   - Broadcasts happen under the same lock with an increasing sequence number,
//     which keeps per-area ordering intact all the way to the emitter.
//   - Distinct areas share nothing but the read-only corpus.

package area

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle/apps/area-server/internal/daily"
	"github.com/robalobadob/wordle/apps/area-server/internal/game"
)

// Corpus is the word service an area draws solutions from and validates
// guesses against.
type Corpus interface {
	game.Dictionary
	RandomWord(length int, restricted bool) (string, error)
	Words(restricted bool) []string
}

// SolutionPolicy decides what Reset does with the solution.
type SolutionPolicy string

const (
	SolutionFresh SolutionPolicy = "fresh" // draw a new pool word
	SolutionKeep  SolutionPolicy = "keep"  // replay the same word
	SolutionDaily SolutionPolicy = "daily" // the pool word of the day
)

// ParseSolutionPolicy accepts "", "fresh", "keep" or "daily".
func ParseSolutionPolicy(s string) (SolutionPolicy, error) {
	switch p := SolutionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return SolutionFresh, nil
	case SolutionFresh, SolutionKeep, SolutionDaily:
		return p, nil
	}
	return "", fmt.Errorf("unknown solution policy %q", s)
}

// Option configures an Area at construction.
type Option func(*Area)

// WithSolutionPolicy sets the reset behaviour (default SolutionFresh).
func WithSolutionPolicy(p SolutionPolicy) Option { return func(a *Area) { a.policy = p } }

// WithDailySalt sets the HMAC salt used by SolutionDaily.
func WithDailySalt(salt string) Option { return func(a *Area) { a.dailySalt = salt } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(a *Area) { a.now = now } }

// WithSolution fixes the first solution instead of drawing one.
func WithSolution(word string) Option {
	return func(a *Area) { a.solution = strings.ToUpper(word) }
}

// WithFinishHook is called, under the area lock, whenever a playthrough
// reaches Won or Lost. It must not block.
func WithFinishHook(fn func(Outcome)) Option { return func(a *Area) { a.onFinish = fn } }

// Area is one game area. Construct with New.
type Area struct {
	id     string
	bounds Bounds
	corpus Corpus
	emit   Emitter

	policy    SolutionPolicy
	dailySalt string
	now       func() time.Time
	onFinish  func(Outcome)
	log       zerolog.Logger

	mu         sync.Mutex
	solution   string
	history    []string
	occupants  []string
	mainPlayer string
	isPlaying  bool
	status     game.Status
	score      int
	seq        uint64
}

// New validates the area's identity and bounds and draws its first solution.
// The area starts inactive with no occupants.
func New(id string, bounds Bounds, corpus Corpus, emitter Emitter, opts ...Option) (*Area, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &MalformedAreaError{ID: id, Detail: "empty id"}
	}
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return nil, &MalformedAreaError{ID: id, Detail: fmt.Sprintf("invalid bounds %dx%d", bounds.Width, bounds.Height)}
	}
	if corpus == nil {
		return nil, &MalformedAreaError{ID: id, Detail: "no word corpus"}
	}
	a := &Area{
		id:     id,
		bounds: bounds,
		corpus: corpus,
		emit:   emitter,
		policy: SolutionFresh,
		now:    time.Now,
		log:    log.With().Str("area", id).Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.solution == "" {
		word, err := a.drawSolution()
		if err != nil {
			return nil, fmt.Errorf("area %s: draw solution: %w", id, err)
		}
		a.solution = word
	}
	a.recompute()
	return a, nil
}

// ID returns the area identifier.
func (a *Area) ID() string { return a.id }

// Bounds returns the area rectangle.
func (a *Area) Bounds() Bounds { return a.bounds }

// Start handles an area-creation request: player becomes the main player
// (joining the area if needed) and the area becomes active. Starting an
// inactive area that still holds an old board begins a new playthrough.
func (a *Area) Start(player string) error {
	if player == "" {
		return fmt.Errorf("%w: main player required", ErrMalformedModel)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isPlaying && a.mainPlayer != "" && a.mainPlayer != player {
		return ErrNotMainPlayer
	}
	if !a.isPlaying && len(a.history) > 0 {
		if err := a.resetBoard(); err != nil {
			return err
		}
	}
	if !contains(a.occupants, player) {
		a.occupants = append(a.occupants, player)
	}
	a.mainPlayer = player
	a.isPlaying = true
	a.log.Info().Str("player", player).Msg("game started")
	a.broadcast()
	return nil
}

// Add records that participant entered the area.
func (a *Area) Add(participant string) {
	if participant == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if contains(a.occupants, participant) {
		return
	}
	a.occupants = append(a.occupants, participant)
	a.broadcast()
}

// Remove records that participant left the area. When the last occupant
// leaves the area becomes inactive and loses its main player. When only the
// main player leaves, the earliest remaining occupant takes over.
// It reports whether participant was an occupant.
func (a *Area) Remove(participant string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := indexOf(a.occupants, participant)
	if i < 0 {
		return false
	}
	a.occupants = append(a.occupants[:i], a.occupants[i+1:]...)
	switch {
	case len(a.occupants) == 0:
		a.isPlaying = false
		a.mainPlayer = ""
		a.log.Info().Msg("last occupant left; area inactive")
	case a.mainPlayer == participant:
		a.mainPlayer = a.occupants[0]
		a.log.Info().Str("player", a.mainPlayer).Msg("main player handed over")
	}
	a.broadcast()
	return true
}

// ApplyGuess validates candidate and, on success, appends it and broadcasts.
// Rejections leave the area unchanged and broadcast nothing.
func (a *Area) ApplyGuess(candidate string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applyGuess(candidate)
}

// ApplyGuessFrom is ApplyGuess restricted to the main player.
func (a *Area) ApplyGuessFrom(player, candidate string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if player == "" || player != a.mainPlayer {
		return ErrNotMainPlayer
	}
	return a.applyGuess(candidate)
}

func (a *Area) applyGuess(candidate string) error {
	if !a.isPlaying && !a.status.Terminal() {
		return ErrNotPlaying
	}
	guess, err := game.ValidateGuess(candidate, a.solution, a.history, a.status, game.WordLength, a.corpus)
	if err != nil {
		a.log.Debug().Err(err).Str("guess", candidate).Msg("guess rejected")
		return err
	}
	before := a.status
	a.history = append(a.history, guess)
	a.recompute()
	a.log.Debug().Str("guess", guess).Int("score", a.score).Str("status", a.status.String()).Msg("guess applied")
	a.finishIfDone(before)
	a.broadcast()
	return nil
}

// Reset starts a new playthrough. On an inactive area it changes nothing but
// still broadcasts the current snapshot.
func (a *Area) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reset()
}

// ResetFrom is Reset restricted to the main player.
func (a *Area) ResetFrom(player string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.isPlaying && (player == "" || player != a.mainPlayer) {
		return ErrNotMainPlayer
	}
	return a.reset()
}

func (a *Area) reset() error {
	if a.isPlaying {
		if err := a.resetBoard(); err != nil {
			return err
		}
	}
	a.broadcast()
	return nil
}

// resetBoard clears the history and applies the solution policy.
func (a *Area) resetBoard() error {
	if a.policy != SolutionKeep {
		word, err := a.drawSolution()
		if err != nil {
			return fmt.Errorf("area %s: reset: %w", a.id, err)
		}
		a.solution = word
	}
	a.history = nil
	a.recompute()
	return nil
}

// ApplyModel overwrites isPlaying, history, occupants and main player from an
// externally supplied model, then recomputes status and score. The model's
// own score and win/loss flags are ignored. Shape errors wrap ErrMalformedModel.
func (a *Area) ApplyModel(m Model) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applyModel(m)
}

// ApplyModelFrom is ApplyModel restricted to the main player.
func (a *Area) ApplyModelFrom(player string, m Model) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if player == "" || player != a.mainPlayer {
		return ErrNotMainPlayer
	}
	return a.applyModel(m)
}

func (a *Area) applyModel(m Model) error {
	if len(m.GuessHistory) > game.MaxGuesses {
		return fmt.Errorf("%w: %d guesses", ErrMalformedModel, len(m.GuessHistory))
	}
	history := make([]string, 0, len(m.GuessHistory))
	for i, g := range m.GuessHistory {
		g = strings.ToUpper(strings.TrimSpace(g))
		if len(g) != game.WordLength || !isAlpha(g) {
			return fmt.Errorf("%w: guess %q", ErrMalformedModel, g)
		}
		// Entries already on the board were checked when they were played.
		if i >= len(a.history) || a.history[i] != g {
			ok, err := a.corpus.IsValidWord(g, false)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", game.ErrNotInDictionary, g)
			}
		}
		history = append(history, g)
	}
	occupants := make([]string, 0, len(m.OccupantIDs))
	for _, id := range m.OccupantIDs {
		if id == "" {
			return fmt.Errorf("%w: empty occupant id", ErrMalformedModel)
		}
		if !contains(occupants, id) {
			occupants = append(occupants, id)
		}
	}
	if m.MainPlayer != "" && !contains(occupants, m.MainPlayer) {
		return fmt.Errorf("%w: main player %q is not an occupant", ErrMalformedModel, m.MainPlayer)
	}

	before := a.status
	a.isPlaying = m.IsPlaying
	a.history = history
	a.occupants = occupants
	a.mainPlayer = m.MainPlayer
	if len(a.occupants) == 0 {
		a.isPlaying = false
		a.mainPlayer = ""
	}
	a.recompute()
	a.finishIfDone(before)
	a.broadcast()
	return nil
}

// ToModel returns the current snapshot.
func (a *Area) ToModel() Model {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model()
}

// Snapshot returns the current model tagged with the sequence number of the
// latest broadcast, for priming a new subscriber.
func (a *Area) Snapshot() Update {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Update{AreaID: a.id, Seq: a.seq, Model: a.model()}
}

// Board returns per-letter feedback for every guess so far.
func (a *Area) Board() [][]game.Mark {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]game.Mark, len(a.history))
	for i, g := range a.history {
		out[i] = game.Marks(a.solution, g)
	}
	return out
}

// Status returns the derived game status.
func (a *Area) Status() game.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Occupied reports whether anyone is inside the area.
func (a *Area) Occupied() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.occupants) > 0
}

func (a *Area) model() Model {
	return Model{
		ID:           a.id,
		IsPlaying:    a.isPlaying,
		CurrentScore: a.score,
		GuessHistory: append(make([]string, 0, len(a.history)), a.history...),
		IsWon:        a.status == game.Won,
		IsLost:       a.status == game.Lost,
		OccupantIDs:  append(make([]string, 0, len(a.occupants)), a.occupants...),
		MainPlayer:   a.mainPlayer,
	}
}

func (a *Area) recompute() {
	a.status = game.ComputeStatus(a.solution, a.history, game.MaxGuesses)
	a.score = game.ComputeScore(a.solution, a.history, a.status)
}

func (a *Area) finishIfDone(before game.Status) {
	if before.Terminal() || !a.status.Terminal() || a.onFinish == nil {
		return
	}
	a.onFinish(Outcome{
		AreaID:     a.id,
		MainPlayer: a.mainPlayer,
		Guesses:    len(a.history),
		Score:      a.score,
		Won:        a.status == game.Won,
		FinishedAt: a.now().UTC(),
	})
}

func (a *Area) broadcast() {
	a.seq++
	if a.emit == nil {
		return
	}
	a.emit.BroadcastAreaChanged(Update{AreaID: a.id, Seq: a.seq, Model: a.model()})
}

func (a *Area) drawSolution() (string, error) {
	if a.policy == SolutionDaily {
		if w := daily.Word(a.corpus.Words(true), a.dailySalt, a.now()); w != "" {
			return strings.ToUpper(w), nil
		}
	}
	w, err := a.corpus.RandomWord(game.WordLength, true)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(w), nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func contains(list []string, s string) bool { return indexOf(list, s) >= 0 }

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
