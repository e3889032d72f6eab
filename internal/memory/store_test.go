// internal/memory/store_test.go
package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/config"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "selectors.json")
	s, err := NewStore(zap.NewNop(), config.StoreConfig{Path: path, MaxLearned: 500})
	require.NoError(t, err)
	return s, path
}

func learnedEntry(label, selector string) schemas.MemoryEntry {
	return schemas.MemoryEntry{
		Label:       label,
		ElementType: "type",
		Selector:    selector,
		URLPattern:  "app.test",
		Confidence:  0.8,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.AddLearnedSelector(learnedEntry("Coupon Code", "#coupon")))
	require.NoError(t, s.AddLearnedSelector(learnedEntry("Gift Card", "#gift-card")))

	reloaded, err := NewStore(zap.NewNop(), config.StoreConfig{Path: path, MaxLearned: 500})
	require.NoError(t, err)

	if diff := cmp.Diff(s.LearnedEntries(), reloaded.LearnedEntries()); diff != "" {
		t.Errorf("learned entries changed across reload (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(s.StaticEntries(), reloaded.StaticEntries()); diff != "" {
		t.Errorf("static entries changed across reload (-before +after):\n%s", diff)
	}
}

func TestStoreSeedsOnMissingFile(t *testing.T) {
	s, path := newTestStore(t)
	assert.NotEmpty(t, s.StaticEntries())
	_, err := os.Stat(path)
	assert.NoError(t, err, "the seed set should be persisted on first run")
}

func TestStoreReseedsOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := NewStore(zap.NewNop(), config.StoreConfig{Path: path, MaxLearned: 500})
	require.NoError(t, err, "a corrupt store must be replaced, not fatal")
	assert.NotEmpty(t, s.StaticEntries())
	assert.Empty(t, s.LearnedEntries())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version"`, "the corrupt file should have been rewritten")
}

func TestLookupMatching(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.AddLearnedSelector(learnedEntry("E-Mail-Adresse", "#mail-input")))

	t.Run("normalized label equality", func(t *testing.T) {
		hits := s.Lookup("e mail adresse", "type", "https://app.test/signup")
		require.NotEmpty(t, hits)
		assert.Equal(t, "#mail-input", hits[len(hits)-1].Selector)
	})

	t.Run("url pattern is a substring gate", func(t *testing.T) {
		hits := s.Lookup("E-Mail-Adresse", "type", "https://other.example/signup")
		assert.Empty(t, hits)
	})

	t.Run("static entries come first", func(t *testing.T) {
		require.NoError(t, s.AddLearnedSelector(schemas.MemoryEntry{
			Label: "email", ElementType: "type", Selector: "#learned-email",
		}))
		hits := s.Lookup("email", "type", "https://anything.test/")
		require.GreaterOrEqual(t, len(hits), 2)
		assert.Equal(t, schemas.SourceManual, hits[0].Source)
		assert.Equal(t, schemas.SourceLearnedEntry, hits[len(hits)-1].Source)
	})

	t.Run("any wildcards the element type", func(t *testing.T) {
		hits := s.Lookup("email", "any", "https://x.test/")
		assert.NotEmpty(t, hits)
	})

	t.Run("mismatched type excludes", func(t *testing.T) {
		hits := s.Lookup("email", "click", "https://x.test/")
		assert.Empty(t, hits)
	})
}

func TestAddLearnedSelectorUpsert(t *testing.T) {
	s, _ := newTestStore(t)
	entry := learnedEntry("Email", "#email")
	entry.Fallbacks = []string{"input[name='email']"}
	require.NoError(t, s.AddLearnedSelector(entry))

	again := learnedEntry("Email", "#email")
	again.Confidence = 0.95
	again.Fallbacks = []string{"input[name='email']", "#mail"}
	require.NoError(t, s.AddLearnedSelector(again))

	learned := s.LearnedEntries()
	require.Len(t, learned, 1, "same identity must reinforce, not duplicate")
	assert.Equal(t, 2, learned[0].UsedCount)
	assert.Equal(t, 0.95, learned[0].Confidence)
	assert.Equal(t, []string{"input[name='email']", "#mail"}, learned[0].Fallbacks)
	assert.Equal(t, schemas.SourceLearnedEntry, learned[0].Source)
}

func TestNewEntriesInsertAtFront(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.AddLearnedSelector(learnedEntry("First", "#first")))
	require.NoError(t, s.AddLearnedSelector(learnedEntry("Second", "#second")))

	learned := s.LearnedEntries()
	require.Len(t, learned, 2)
	assert.Equal(t, "#second", learned[0].Selector)
}

func TestLearnedCapEvictsStalest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.json")
	s, err := NewStore(zap.NewNop(), config.StoreConfig{Path: path, MaxLearned: 3})
	require.NoError(t, err)

	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	require.NoError(t, s.AddLearnedSelector(learnedEntry("A", "#a")))
	require.NoError(t, s.AddLearnedSelector(learnedEntry("B", "#b")))
	require.NoError(t, s.AddLearnedSelector(learnedEntry("C", "#c")))
	// Reinforce A so B becomes the stalest.
	require.NoError(t, s.AddLearnedSelector(learnedEntry("A", "#a")))
	require.NoError(t, s.AddLearnedSelector(learnedEntry("D", "#d")))

	selectors := make([]string, 0, 3)
	for _, e := range s.LearnedEntries() {
		selectors = append(selectors, e.Selector)
	}
	assert.Len(t, selectors, 3)
	assert.NotContains(t, selectors, "#b", "the least recently used entry is evicted")
	assert.Contains(t, selectors, "#a")
	assert.Contains(t, selectors, "#d")
}

func TestInMemoryStoreSkipsPersistence(t *testing.T) {
	s, err := NewStore(zap.NewNop(), config.StoreConfig{})
	require.NoError(t, err)
	require.NoError(t, s.AddLearnedSelector(learnedEntry("Email", "#email")))
	assert.Len(t, s.LearnedEntries(), 1)
}
