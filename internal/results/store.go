package results

import (
	"context"
	"database/sql"
	"time"

	"github.com/robalobadob/wordle/apps/area-server/internal/area"
)

// Result is one finished playthrough.
type Result struct {
	AreaID     string    `json:"areaId"`
	MainPlayer string    `json:"mainPlayer"`
	Guesses    int       `json:"guesses"`
	Score      int       `json:"score"`
	Won        bool      `json:"won"`
	FinishedAt time.Time `json:"finishedAt"`
}

// FromOutcome converts an area outcome to an archive row.
func FromOutcome(o area.Outcome) Result {
	return Result{
		AreaID:     o.AreaID,
		MainPlayer: o.MainPlayer,
		Guesses:    o.Guesses,
		Score:      o.Score,
		Won:        o.Won,
		FinishedAt: o.FinishedAt.UTC(),
	}
}

// Store archives results in the results table.
type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Record inserts r.
func (s *Store) Record(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results(area_id, main_player, guesses, score, won, finished_at)
		 VALUES(?,?,?,?,?,?)`,
		r.AreaID, r.MainPlayer, r.Guesses, r.Score, r.Won, r.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Leaderboard returns the best results: highest score first, then fewest
// guesses, then earliest finish. limit defaults to 20.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `
		SELECT area_id, main_player, guesses, score, won, finished_at
		FROM results
		ORDER BY score DESC, guesses ASC, finished_at ASC
		LIMIT ?`, limit)
}

// ByPlayer returns a player's results, newest first. limit defaults to 50.
func (s *Store) ByPlayer(ctx context.Context, player string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx, `
		SELECT area_id, main_player, guesses, score, won, finished_at
		FROM results
		WHERE main_player=?
		ORDER BY finished_at DESC
		LIMIT ?`, player, limit)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Result{}
	for rows.Next() {
		var r Result
		var finished string
		if err := rows.Scan(&r.AreaID, &r.MainPlayer, &r.Guesses, &r.Score, &r.Won, &finished); err != nil {
			return nil, err
		}
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
