// Package assets embeds the default word lists and the SQL migrations.
//
// ENG-5-ALL.txt holds every accepted five-letter guess; ENG-5-POOL.txt holds
// the narrower set of common words solutions are drawn from.
package assets

import (
	"bufio"
	"embed"
	"io"
	"io/fs"
	"strings"
)

//go:embed ENG-5-ALL.txt ENG-5-POOL.txt
var FS embed.FS

//go:embed sql/*.sql
var migrations embed.FS

// Migrations returns the migration files rooted at the sql directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// ReadWords parses one word per line, skipping blanks and '#' comments.
// Words are upper-cased.
func ReadWords(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, strings.ToUpper(s))
	}
	return out, sc.Err()
}

func readLines(name string) ([]string, error) {
	f, err := FS.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadWords(f)
}

// AllList returns the embedded broad word list.
func AllList() ([]string, error) {
	return readLines("ENG-5-ALL.txt")
}

// PoolList returns the embedded common-word list.
func PoolList() ([]string, error) {
	return readLines("ENG-5-POOL.txt")
}
