package chroma

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoDatabase is returned when a directory holds no Chroma database.
var ErrNoDatabase = errors.New("no chroma database found")

// databaseNames are tried in order before any other *.sqlite3 file.
var databaseNames = []string{"chroma.sqlite3", "chroma.db", "database.db"}

// Discover returns the database file of a Chroma store. path may be the file
// itself or the store directory.
func Discover(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("open chroma store: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}

	for _, name := range databaseNames {
		candidate := filepath.Join(path, name)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, nil
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("open chroma store: %w", err)
	}
	var found []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sqlite3") {
			found = append(found, e.Name())
		}
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoDatabase, path)
	}
	sort.Strings(found)
	return filepath.Join(path, found[0]), nil
}
