// Package guard implements the file-staleness guard: a process-lifetime map
// from canonical path to the last moment this process observed the file's
// content. An edit is blocked when the file's on-disk modification time is
// newer than that observation, which means someone else changed the file and
// the caller must re-read before retrying.
//
// The guard is an explicit, injectable object (no package-level state) so
// each test run and each engine instance owns an isolated map. The map is
// mutex-guarded for concurrent in-flight requests; the check-then-write
// window for the same path is a deliberate, accepted race (callers needing
// stronger guarantees serialize at a higher layer).
package guard

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Mode controls which reads count as observations.
type Mode int

const (
	ModeFullReads Mode = iota // only full reads count as observation
	ModeAllReads              // full and partial (collapsed-view) reads both count
	ModeDisabled              // never block
)

// ParseMode maps the configuration spelling to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "full", "full-reads":
		return ModeFullReads, nil
	case "all", "all-reads", "partial":
		return ModeAllReads, nil
	case "disabled", "off":
		return ModeDisabled, nil
	}
	return 0, fmt.Errorf("unknown guard mode %q", s)
}

// StaleError reports a blocked write. It carries both timestamps so the
// caller can see how far behind its view of the file is.
type StaleError struct {
	Path       string
	ObservedAt time.Time
	ModifiedAt time.Time
}

func (e *StaleError) Error() string {
	if e.ObservedAt.IsZero() {
		return fmt.Sprintf("stale file: %s has never been read in this session; read it before editing", e.Path)
	}
	return fmt.Sprintf("stale file: %s changed on disk at %s, after it was last read at %s; re-read before editing",
		e.Path, e.ModifiedAt.Format(time.RFC3339), e.ObservedAt.Format(time.RFC3339))
}

// Guard owns the observation map. The zero value is not usable; use New.
type Guard struct {
	mode Mode

	mu   sync.Mutex
	seen map[string]int64 // canonical path -> last observed, epoch millis
}

// New creates a guard with the given mode.
func New(mode Mode) *Guard {
	return &Guard{mode: mode, seen: make(map[string]int64)}
}

// Check reports whether path may be written. It returns *StaleError when the
// on-disk mtime is newer than the last observation (or when the file exists
// but was never observed). A path that does not exist yet is always allowed.
func (g *Guard) Check(path string) error {
	if g.mode == ModeDisabled {
		return nil
	}
	key := canonical(path)

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	mod := fi.ModTime()

	g.mu.Lock()
	obs, ok := g.seen[key]
	g.mu.Unlock()

	if !ok {
		return &StaleError{Path: path, ModifiedAt: mod}
	}
	if mod.UnixMilli() > obs {
		return &StaleError{Path: path, ObservedAt: time.UnixMilli(obs), ModifiedAt: mod}
	}
	return nil
}

// ObserveRead records a read of the file's content. full distinguishes a
// complete read from a partial (collapsed-view) one; partial reads only
// count in ModeAllReads.
func (g *Guard) ObserveRead(path string, full bool) {
	if g.mode == ModeDisabled {
		return
	}
	if !full && g.mode != ModeAllReads {
		return
	}
	g.observe(path)
}

// ObserveWrite records a write this engine performed. The file's own
// modification time is recorded (not wall clock) to avoid losing a race with
// an external writer that lands between our write and this call.
func (g *Guard) ObserveWrite(path string) {
	if g.mode == ModeDisabled {
		return
	}
	g.observe(path)
}

func (g *Guard) observe(path string) {
	fi, err := os.Stat(path)
	if err != nil {
		return
	}
	key := canonical(path)
	g.mu.Lock()
	g.seen[key] = fi.ModTime().UnixMilli()
	g.mu.Unlock()
}

// ObservedAt returns the last observation for the path, if any.
func (g *Guard) ObservedAt(path string) (time.Time, bool) {
	key := canonical(path)
	g.mu.Lock()
	obs, ok := g.seen[key]
	g.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(obs), true
}

// canonical resolves the map key for a path: absolute, cleaned, with
// symlinks resolved when possible so two spellings of the same file share
// one entry.
func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
