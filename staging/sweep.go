package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Listing describes one staging directory found on disk.
type Listing struct {
	Manifest
	Path  string `json:"path"`
	Files int    `json:"files"`
	Bytes int64  `json:"bytes"`
	// Orphan is set when the manifest is missing or unreadable.
	Orphan bool `json:"orphan"`
}

// List returns every session directory under the root, oldest first.
func (a *Area) List() ([]Listing, error) {
	users, err := os.ReadDir(a.root)
	if err != nil {
		return nil, fmt.Errorf("list staging root: %w", err)
	}

	var out []Listing
	for _, u := range users {
		if !u.IsDir() {
			continue
		}
		userID, err := strconv.ParseInt(u.Name(), 10, 64)
		if err != nil {
			continue
		}
		gens, err := os.ReadDir(filepath.Join(a.root, u.Name()))
		if err != nil {
			return nil, fmt.Errorf("list staging user %s: %w", u.Name(), err)
		}
		for _, g := range gens {
			if !g.IsDir() {
				continue
			}
			out = append(out, a.inspect(userID, g))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

func (a *Area) inspect(userID int64, g fs.DirEntry) Listing {
	path := filepath.Join(a.userPath(userID), g.Name())
	l := Listing{Path: path}

	m, err := readManifest(filepath.Join(path, manifestName))
	if err != nil {
		l.Orphan = true
		l.UserID = userID
		l.Generation, _ = strconv.ParseUint(g.Name(), 10, 64)
		if info, statErr := g.Info(); statErr == nil {
			l.CreatedAt = info.ModTime()
		}
	} else {
		l.Manifest = m
	}

	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() == manifestName {
			return nil
		}
		if info, infoErr := d.Info(); infoErr == nil {
			l.Files++
			l.Bytes += info.Size()
		}
		return nil
	})
	return l
}

// Sweep removes session directories created before now-olderThan.
// Orphans are judged by modification time. olderThan <= 0 removes everything.
// It returns what was removed; removal errors are joined.
func (a *Area) Sweep(olderThan time.Duration, now time.Time) ([]Listing, error) {
	listings, err := a.List()
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-olderThan)
	var (
		removed []Listing
		errs    []error
	)
	for _, l := range listings {
		if olderThan > 0 && !l.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(l.Path); err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", l.Path, err))
			continue
		}
		_ = os.Remove(filepath.Dir(l.Path))
		removed = append(removed, l)
	}
	return removed, errors.Join(errs...)
}
