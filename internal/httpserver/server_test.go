package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/robalobadob/wordle/apps/area-server/assets"
	"github.com/robalobadob/wordle/apps/area-server/internal/area"
	"github.com/robalobadob/wordle/apps/area-server/internal/config"
	"github.com/robalobadob/wordle/apps/area-server/internal/hub"
	"github.com/robalobadob/wordle/apps/area-server/internal/results"
	"github.com/robalobadob/wordle/apps/area-server/internal/store"
	"github.com/robalobadob/wordle/apps/area-server/internal/words"
)

var areaBounds = area.Bounds{X: 0, Y: 0, Width: 10, Height: 8}

type fixture struct {
	t   *testing.T
	srv *Server
	ts  *httptest.Server
	res *results.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithClaims(t, nil)
}

func newFixtureWithClaims(t *testing.T, claims Claims) *fixture {
	t.Helper()
	db, err := results.Open(filepath.Join(t.TempDir(), "areas.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := results.Migrate(db, assets.Migrations()); err != nil {
		t.Fatal(err)
	}
	res := results.NewStore(db)

	corpus := words.FromLists(
		[]string{"GUESS", "GUEST", "PARSE", "GHAST", "CRANE", "SLATE", "AUDIO"},
		[]string{"GUESS"},
	)
	srv, err := New(Deps{
		Config: config.Config{
			JWTSecret:      "test_secret",
			JWTExpiresDays: 1,
			SolutionPolicy: "fresh",
			ClientOrigin:   "http://localhost:5173",
		},
		Store:   store.NewMemoryStore(),
		Corpus:  corpus,
		Hub:     hub.New(),
		Results: res,
		Claims:  claims,
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &fixture{t: t, srv: srv, ts: ts, res: res}
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (f *fixture) do(method, path, token string, body any, out any) int {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	if err != nil {
		f.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		f.t.Fatal(err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			f.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return res.StatusCode
}

func (f *fixture) session(name string) sessionRes {
	f.t.Helper()
	var s sessionRes
	if code := f.do(http.MethodPost, "/session", "", sessionReq{Name: name}, &s); code != http.StatusCreated {
		f.t.Fatalf("POST /session = %d", code)
	}
	return s
}

func (f *fixture) createArea(token, id string) areaView {
	f.t.Helper()
	var v areaView
	body := createAreaReq{ID: id, Bounds: areaBounds}
	if code := f.do(http.MethodPost, "/areas", token, body, &v); code != http.StatusCreated {
		f.t.Fatalf("POST /areas = %d", code)
	}
	return v
}

type errBody struct {
	Error string `json:"error"`
}

func TestHealthAndWords(t *testing.T) {
	f := newFixture(t)
	var ok map[string]bool
	if code := f.do(http.MethodGet, "/health", "", nil, &ok); code != 200 || !ok["ok"] {
		t.Fatalf("/health = %d %v", code, ok)
	}
	var counts map[string]int
	f.do(http.MethodGet, "/debug/words", "", nil, &counts)
	if counts["all"] != 7 || counts["pool"] != 1 {
		t.Fatalf("/debug/words = %v", counts)
	}
	var e errBody
	if code := f.do(http.MethodGet, "/nope", "", nil, &e); code != 404 || e.Error != "not_found" {
		t.Fatalf("/nope = %d %v", code, e)
	}
}

func TestSessionAndMe(t *testing.T) {
	f := newFixture(t)
	s := f.session("Ada")
	if s.Token == "" || s.Participant.ID == "" || s.Participant.Name != "Ada" {
		t.Fatalf("session = %+v", s)
	}
	var me participant
	if code := f.do(http.MethodGet, "/me", s.Token, nil, &me); code != 200 || me != s.Participant {
		t.Fatalf("/me = %d %+v", code, me)
	}
	if code := f.do(http.MethodGet, "/me", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("/me with bad token = %d", code)
	}
	if code := f.do(http.MethodPost, "/session", "", sessionReq{Name: "  "}, nil); code != http.StatusBadRequest {
		t.Fatalf("blank name = %d", code)
	}
}

func TestCreateArea(t *testing.T) {
	f := newFixture(t)
	ada := f.session("Ada")

	if code := f.do(http.MethodPost, "/areas", "", createAreaReq{Bounds: areaBounds}, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous create = %d", code)
	}

	v := f.createArea(ada.Token, "plaza")
	m := v.Area
	if m.ID != "plaza" || !m.IsPlaying || m.MainPlayer != ada.Participant.ID || len(m.OccupantIDs) != 1 {
		t.Fatalf("created = %+v", m)
	}
	if m.CurrentScore != 0 || len(m.GuessHistory) != 0 || m.IsWon || m.IsLost {
		t.Fatalf("fresh area not clean: %+v", m)
	}
	if v.Seq != 1 {
		t.Fatalf("seq = %d, want 1 (one broadcast on start)", v.Seq)
	}

	var e errBody
	if code := f.do(http.MethodPost, "/areas", ada.Token, createAreaReq{ID: "plaza", Bounds: areaBounds}, &e); code != http.StatusConflict {
		t.Fatalf("duplicate create = %d", code)
	}
	if code := f.do(http.MethodPost, "/areas", ada.Token, createAreaReq{ID: "flat"}, &e); code != http.StatusBadRequest {
		t.Fatalf("zero bounds = %d", code)
	}
	if code := f.do(http.MethodPost, "/areas", ada.Token, createAreaReq{MainPlayer: "someone-else", Bounds: areaBounds}, &e); code != http.StatusForbidden {
		t.Fatalf("foreign main player = %d", code)
	}

	var list []areaView
	f.do(http.MethodGet, "/areas", "", nil, &list)
	if len(list) != 1 || list[0].Area.ID != "plaza" || list[0].Bounds != areaBounds {
		t.Fatalf("list = %+v", list)
	}
}

func TestGuessFlowAndRejections(t *testing.T) {
	f := newFixture(t)
	ada, bob := f.session("Ada"), f.session("Bob")
	f.createArea(ada.Token, "plaza")

	if code := f.do(http.MethodPost, "/areas/plaza/occupants", bob.Token, nil, nil); code != 200 {
		t.Fatalf("bob enters = %d", code)
	}

	cases := []struct {
		token, guess string
		code         int
		reason       string
	}{
		{bob.Token, "GUEST", http.StatusForbidden, "NotMainPlayer"},
		{ada.Token, "GUES", http.StatusUnprocessableEntity, "WrongLength"},
		{ada.Token, "ZZZZZ", http.StatusUnprocessableEntity, "NotInDictionary"},
	}
	for _, tc := range cases {
		var e errBody
		code := f.do(http.MethodPost, "/areas/plaza/guess", tc.token, guessReq{Guess: tc.guess}, &e)
		if code != tc.code || e.Error != tc.reason {
			t.Errorf("guess %q = %d %q, want %d %q", tc.guess, code, e.Error, tc.code, tc.reason)
		}
	}

	var v areaView
	f.do(http.MethodGet, "/areas/plaza", "", nil, &v)
	if len(v.Area.GuessHistory) != 0 || v.Seq != 2 {
		t.Fatalf("rejections changed the area: %+v", v)
	}

	for _, g := range []string{"parse", "GHAST", "GUEST"} {
		if code := f.do(http.MethodPost, "/areas/plaza/guess", ada.Token, guessReq{Guess: g}, &v); code != 200 {
			t.Fatalf("guess %s = %d", g, code)
		}
	}
	if code := f.do(http.MethodPost, "/areas/plaza/guess", ada.Token, guessReq{Guess: "GUESS"}, &v); code != 200 {
		t.Fatal("winning guess rejected")
	}
	if !v.Area.IsWon || v.Area.CurrentScore != 875 {
		t.Fatalf("after win: %+v", v.Area)
	}

	var e errBody
	if code := f.do(http.MethodPost, "/areas/plaza/guess", ada.Token, guessReq{Guess: "CRANE"}, &e); code != http.StatusConflict || e.Error != "GameFinished" {
		t.Fatalf("guess after win = %d %q", code, e.Error)
	}

	var board boardRes
	f.do(http.MethodGet, "/areas/plaza/board", "", nil, &board)
	if len(board.Marks) != 4 || board.Status != "won" {
		t.Fatalf("board = %+v", board)
	}
	for _, m := range board.Marks[3] {
		if m != "hit" {
			t.Fatalf("winning row = %v", board.Marks[3])
		}
	}

	// The archive is written asynchronously.
	var lb []results.Result
	deadline := time.Now().Add(2 * time.Second)
	for len(lb) == 0 && time.Now().Before(deadline) {
		f.do(http.MethodGet, "/leaderboard", "", nil, &lb)
		if len(lb) == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}
	if len(lb) != 1 || lb[0].AreaID != "plaza" || lb[0].Score != 875 || !lb[0].Won || lb[0].MainPlayer != ada.Participant.ID {
		t.Fatalf("leaderboard = %+v", lb)
	}
	var mine []results.Result
	f.do(http.MethodGet, "/results/"+ada.Participant.ID, "", nil, &mine)
	if len(mine) != 1 || mine[0].Guesses != 4 {
		t.Fatalf("results = %+v", mine)
	}

	if code := f.do(http.MethodPost, "/areas/plaza/reset", bob.Token, nil, &e); code != http.StatusForbidden {
		t.Fatalf("bob reset = %d", code)
	}
	if code := f.do(http.MethodPost, "/areas/plaza/reset", ada.Token, nil, &v); code != 200 {
		t.Fatalf("reset = %d", code)
	}
	if len(v.Area.GuessHistory) != 0 || v.Area.IsWon || v.Area.CurrentScore != 0 || !v.Area.IsPlaying {
		t.Fatalf("after reset: %+v", v.Area)
	}
}

func TestLeavingAndDeleting(t *testing.T) {
	f := newFixture(t)
	ada, bob := f.session("Ada"), f.session("Bob")
	f.createArea(ada.Token, "plaza")
	f.do(http.MethodPost, "/areas/plaza/occupants", bob.Token, nil, nil)

	var v areaView
	if code := f.do(http.MethodDelete, "/areas/plaza/occupants", ada.Token, nil, &v); code != 200 {
		t.Fatalf("ada leaves = %d", code)
	}
	if v.Area.MainPlayer != bob.Participant.ID || !v.Area.IsPlaying {
		t.Fatalf("hand-over failed: %+v", v.Area)
	}
	if code := f.do(http.MethodDelete, "/areas/plaza", bob.Token, nil, nil); code != http.StatusConflict {
		t.Fatalf("delete occupied = %d", code)
	}
	f.do(http.MethodDelete, "/areas/plaza/occupants", bob.Token, nil, &v)
	if v.Area.IsPlaying || v.Area.MainPlayer != "" || len(v.Area.OccupantIDs) != 0 {
		t.Fatalf("empty area still active: %+v", v.Area)
	}
	if code := f.do(http.MethodDelete, "/areas/plaza/occupants", bob.Token, nil, nil); code != http.StatusNotFound {
		t.Fatalf("second leave = %d", code)
	}

	var e errBody
	if code := f.do(http.MethodPost, "/areas/plaza/guess", bob.Token, guessReq{Guess: "GUEST"}, &e); code != http.StatusForbidden {
		t.Fatalf("guess on empty area = %d %q", code, e.Error)
	}

	if code := f.do(http.MethodDelete, "/areas/plaza", bob.Token, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
	if code := f.do(http.MethodGet, "/areas/plaza", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("get deleted = %d", code)
	}
}

func TestApplyModel(t *testing.T) {
	f := newFixture(t)
	ada := f.session("Ada")
	v := f.createArea(ada.Token, "plaza")

	m := v.Area
	m.GuessHistory = []string{"PARSE", "GHAST", "GUEST"}
	m.CurrentScore = 99999
	m.IsWon = true
	if code := f.do(http.MethodPut, "/areas/plaza", ada.Token, m, &v); code != 200 {
		t.Fatalf("PUT = %d", code)
	}
	if v.Area.CurrentScore != 375 || v.Area.IsWon {
		t.Fatalf("score/status must be recomputed: %+v", v.Area)
	}

	m.GuessHistory = []string{"TOOLONG"}
	var e errBody
	if code := f.do(http.MethodPut, "/areas/plaza", ada.Token, m, &e); code != http.StatusBadRequest || e.Error != "MalformedModel" {
		t.Fatalf("malformed PUT = %d %q", code, e.Error)
	}

	m.GuessHistory = []string{"PARSE", "GHAST", "GUEST", "AAAAA"}
	if code := f.do(http.MethodPut, "/areas/plaza", ada.Token, m, &e); code != http.StatusUnprocessableEntity || e.Error != "NotInDictionary" {
		t.Fatalf("non-word PUT = %d %q", code, e.Error)
	}
	f.do(http.MethodGet, "/areas/plaza", "", nil, &v)
	if len(v.Area.GuessHistory) != 3 {
		t.Fatalf("rejected PUT changed the history: %v", v.Area.GuessHistory)
	}
}
