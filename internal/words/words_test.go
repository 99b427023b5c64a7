package words

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func loadedEmbedded(t *testing.T) *Corpus {
	t.Helper()
	c := New()
	if err := c.Load(context.Background(), Source{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func TestEmbeddedListsMembership(t *testing.T) {
	c := loadedEmbedded(t)

	for _, w := range c.Words(true) {
		if ok, err := c.IsValidWord(w, true); err != nil || !ok {
			t.Fatalf("pool word %q restricted: ok=%v err=%v", w, ok, err)
		}
		if ok, _ := c.IsValidWord(w, false); !ok {
			t.Fatalf("pool word %q must be in the broad set", w)
		}
	}
	for _, w := range c.Words(false) {
		if ok, _ := c.IsValidWord(w, false); !ok {
			t.Fatalf("broad word %q not valid", w)
		}
	}
}

func TestBroadButNotPoolWord(t *testing.T) {
	c := loadedEmbedded(t)
	if ok, _ := c.IsValidWord("AAHED", false); !ok {
		t.Fatal("AAHED should be in the broad list")
	}
	if ok, _ := c.IsValidWord("aahed", true); ok {
		t.Fatal("AAHED should not be in the pool")
	}
}

func TestInvalidWords(t *testing.T) {
	c := loadedEmbedded(t)
	for _, restricted := range []bool{true, false} {
		if ok, err := c.IsValidWord("IDDQD", restricted); err != nil || ok {
			t.Fatalf("IDDQD restricted=%v: ok=%v err=%v", restricted, ok, err)
		}
	}
}

func TestUnsupportedLength(t *testing.T) {
	c := loadedEmbedded(t)
	var lenErr *UnsupportedLengthError

	if _, err := c.IsValidWord("HUH", true); !errors.As(err, &lenErr) || lenErr.Length != 3 {
		t.Fatalf("IsValidWord(HUH) err = %v", err)
	}
	if _, err := c.IsValidWord("HUH", false); !errors.As(err, &lenErr) {
		t.Fatalf("IsValidWord(HUH) err = %v", err)
	}
	if _, err := c.RandomWord(4, true); !errors.As(err, &lenErr) || lenErr.Length != 4 {
		t.Fatalf("RandomWord(4) err = %v", err)
	}
}

func TestRandomWord(t *testing.T) {
	c := loadedEmbedded(t)
	for _, restricted := range []bool{true, false} {
		w, err := c.RandomWord(Length, restricted)
		if err != nil {
			t.Fatalf("RandomWord: %v", err)
		}
		if len(w) != Length {
			t.Fatalf("RandomWord = %q", w)
		}
		if ok, _ := c.IsValidWord(w, restricted); !ok {
			t.Fatalf("RandomWord(%v) = %q not in its own list", restricted, w)
		}
	}
}

func TestQueriesBeforeLoadAreGated(t *testing.T) {
	c := New()
	if _, err := c.IsValidWord("CRANE", false); !errors.Is(err, ErrNotReady) {
		t.Fatalf("IsValidWord before load err = %v", err)
	}
	if _, err := c.RandomWord(Length, true); !errors.Is(err, ErrNotReady) {
		t.Fatalf("RandomWord before load err = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait before load err = %v", err)
	}

	go func() { _ = c.Load(context.Background(), Source{}) }()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if ok, err := c.IsValidWord("crane", false); err != nil || !ok {
		t.Fatalf("CRANE after load: ok=%v err=%v", ok, err)
	}
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	all := filepath.Join(dir, "all.txt")
	pool := filepath.Join(dir, "pool.txt")
	if err := os.WriteFile(all, []byte("zesty\n# comment\n\nquirk\ntoolong\nab1cd\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pool, []byte("crane\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New()
	if err := c.Load(context.Background(), Source{AllFile: all, PoolFile: pool}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	allCount, poolCount := c.Stats()
	if allCount != 3 || poolCount != 1 {
		t.Fatalf("Stats = (%d, %d), want (3, 1)", allCount, poolCount)
	}
	if w, _ := c.RandomWord(Length, true); w != "CRANE" {
		t.Fatalf("RandomWord(pool) = %q", w)
	}
}

func TestLoadMissingFile(t *testing.T) {
	c := New()
	err := c.Load(context.Background(), Source{AllFile: filepath.Join(t.TempDir(), "missing.txt")})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if werr := c.Wait(context.Background()); werr == nil {
		t.Fatal("Wait should surface the load error")
	}
}

func TestFromListsIsReady(t *testing.T) {
	c := FromLists([]string{"parse"}, []string{"guess"})
	select {
	case <-c.Ready():
	default:
		t.Fatal("FromLists corpus not ready")
	}
	if ok, _ := c.IsValidWord("GUESS", false); !ok {
		t.Fatal("pool words belong to the broad set")
	}
	if ok, _ := c.IsValidWord("PARSE", true); ok {
		t.Fatal("PARSE is not a pool word")
	}
}
