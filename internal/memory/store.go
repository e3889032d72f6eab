// internal/memory/store.go

// Package memory persists selector knowledge across sessions: a curated
// static seed set plus selectors learned from successful resolutions. The
// whole store is one JSON document, rewritten atomically on every change.
package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/config"
	"github.com/xkilldash9x/locus/internal/scorer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// document is the on-disk shape of the store.
type document struct {
	Version int                   `json:"version"`
	Static  []schemas.MemoryEntry `json:"static"`
	Learned []schemas.MemoryEntry `json:"learned"`
}

const documentVersion = 1

// Store holds the selector memory for one automation session. Not safe
// for concurrent writers across sessions; each session owns its own
// instance (sharing a path between sessions is the caller's risk).
type Store struct {
	mu         sync.Mutex
	logger     *zap.Logger
	path       string
	maxLearned int
	now        func() time.Time

	static  []schemas.MemoryEntry
	learned []schemas.MemoryEntry
}

// NewStore loads the selector store from cfg.Path, seeding and rewriting
// it when the file is missing or unreadable. An empty path keeps the
// store purely in memory.
func NewStore(logger *zap.Logger, cfg config.StoreConfig) (*Store, error) {
	s := &Store{
		logger:     logger.Named("memory"),
		path:       cfg.Path,
		maxLearned: cfg.MaxLearned,
		now:        time.Now,
		static:     defaultStaticEntries(),
	}
	if s.maxLearned <= 0 {
		s.maxLearned = 500
	}
	if s.path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: persist the seed set.
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading selector store: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		// A corrupt store is replaced, not fatal: resolution can always
		// fall back to scoring.
		s.logger.Warn("Selector store corrupt, reseeding", zap.String("path", s.path), zap.Error(err))
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}

	s.learned = doc.Learned
	s.static = mergeStatic(defaultStaticEntries(), doc.Static)
	return s, nil
}

// mergeStatic unions the compiled-in seed set with user-curated static
// entries from disk; disk entries with a known identity win.
func mergeStatic(compiled, fromDisk []schemas.MemoryEntry) []schemas.MemoryEntry {
	out := append([]schemas.MemoryEntry(nil), fromDisk...)
	for _, c := range compiled {
		known := false
		for _, d := range fromDisk {
			if c.SameIdentity(d) {
				known = true
				break
			}
		}
		if !known {
			out = append(out, c)
		}
	}
	return out
}

// Lookup returns matching entries, static first then learned, for a label,
// element type, and current URL. Matching normalizes the label the same
// way scoring does; "any" on either side wildcards the element type; an
// entry's URL pattern is a substring test against the URL.
func (s *Store) Lookup(label string, elementType string, url string) []schemas.MemoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := scorer.NormalizeLabel(label)
	var out []schemas.MemoryEntry
	for _, pool := range [][]schemas.MemoryEntry{s.static, s.learned} {
		for _, e := range pool {
			if matches(e, target, elementType, url) {
				out = append(out, e)
			}
		}
	}
	return out
}

func matches(e schemas.MemoryEntry, normalizedLabel, elementType, url string) bool {
	if scorer.NormalizeLabel(e.Label) != normalizedLabel {
		return false
	}
	if e.ElementType != "any" && elementType != "any" && e.ElementType != elementType {
		return false
	}
	if e.URLPattern != "" && !containsFold(url, e.URLPattern) {
		return false
	}
	return true
}

// AddLearnedSelector records a successful resolution. An entry with the
// same identity is reinforced in place; a new one is inserted at the
// front. The learned list is capped, evicting the least recently used.
func (s *Store) AddLearnedSelector(entry schemas.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	entry.Source = schemas.SourceLearnedEntry
	for i := range s.learned {
		if s.learned[i].SameIdentity(entry) {
			s.learned[i].UsedCount++
			s.learned[i].LastUsedAt = now
			if entry.Confidence > s.learned[i].Confidence {
				s.learned[i].Confidence = entry.Confidence
			}
			s.learned[i].Fallbacks = unionFallbacks(s.learned[i].Fallbacks, entry.Fallbacks)
			if entry.Reasoning != "" {
				s.learned[i].Reasoning = entry.Reasoning
			}
			return s.flushLocked()
		}
	}

	entry.UsedCount = 1
	entry.LastUsedAt = now
	s.learned = append([]schemas.MemoryEntry{entry}, s.learned...)
	if len(s.learned) > s.maxLearned {
		s.evictLocked()
	}
	return s.flushLocked()
}

// evictLocked drops the stalest learned entry to honor the cap.
func (s *Store) evictLocked() {
	oldest := 0
	for i := 1; i < len(s.learned); i++ {
		if s.learned[i].LastUsedAt.Before(s.learned[oldest].LastUsedAt) {
			oldest = i
		}
	}
	s.learned = append(s.learned[:oldest], s.learned[oldest+1:]...)
}

func unionFallbacks(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, f := range existing {
		seen[f] = true
	}
	for _, f := range extra {
		if f != "" && !seen[f] {
			existing = append(existing, f)
			seen[f] = true
		}
	}
	return existing
}

// StaticEntries returns a copy of the static seed set.
func (s *Store) StaticEntries() []schemas.MemoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schemas.MemoryEntry(nil), s.static...)
}

// LearnedEntries returns a copy of the learned set, newest first.
func (s *Store) LearnedEntries() []schemas.MemoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schemas.MemoryEntry(nil), s.learned...)
}

// flushLocked rewrites the whole document through a temp file so a crash
// mid-write never leaves a truncated store behind.
func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}

	doc := document{Version: documentVersion, Static: s.static, Learned: s.learned}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding selector store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".selectors-*.json")
	if err != nil {
		return fmt.Errorf("creating temp store file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// defaultStaticEntries is the compiled-in seed set covering the fields
// nearly every site exposes.
func defaultStaticEntries() []schemas.MemoryEntry {
	entries := []schemas.MemoryEntry{
		{Label: "email", ElementType: "type", Selector: "input[type='email']",
			Fallbacks: []string{"input[name='email']", "#email"}},
		{Label: "password", ElementType: "type", Selector: "input[type='password']",
			Fallbacks: []string{"input[name='password']", "#password"}},
		{Label: "search", ElementType: "type", Selector: "input[type='search']",
			Fallbacks: []string{"input[name='q']", "input[name='search']"}},
		{Label: "username", ElementType: "type", Selector: "input[name='username']",
			Fallbacks: []string{"#username", "input[autocomplete='username']"}},
		{Label: "submit", ElementType: "click", Selector: "button[type='submit']",
			Fallbacks: []string{"input[type='submit']"}},
	}
	for i := range entries {
		entries[i].Source = schemas.SourceManual
		entries[i].Confidence = 0.9
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Label < entries[j].Label })
	return entries
}
