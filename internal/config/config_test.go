// File: internal/config/config_test.go
package config

import (
	"strings"
	"testing"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.InDelta(t, 0.78, cfg.Scoring.Thresholds.Direct, 0.001)
	assert.InDelta(t, 0.60, cfg.Scoring.Thresholds.TryMultiple, 0.001)
	assert.Equal(t, 2, cfg.Resolver.MaxExtraAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Resolver.RetryDelay)
	assert.Equal(t, 8, cfg.Resolver.EscalationCandidates)
	assert.Equal(t, 20, cfg.Semantic.BatchSize)
	assert.Equal(t, 3, cfg.Semantic.BatchConcurrency)
	assert.Equal(t, 3, cfg.Semantic.CachedFingerprints)
	assert.Equal(t, 500, cfg.Store.MaxLearned)
	assert.NotEmpty(t, cfg.Scoring.Synonyms["email"])
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Scoring.Thresholds.Direct = 0.5
	cfg.Scoring.Thresholds.TryMultiple = 0.7

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direct")
}

func TestValidateRejectsOutOfRangeWeight(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Scoring.Weights.LabelSimilarity = 1.4
	assert.Error(t, cfg.Validate())
}

func TestNewConfigFromViperExpandsStorePath(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("store.path", "~/.locus/selectors.json")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cfg.Store.Path, home))
	assert.False(t, strings.HasPrefix(cfg.Store.Path, "~"))
}

func TestNewConfigFromViperRejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("store.max_learned", 0)

	_, err := NewConfigFromViper(v)
	assert.Error(t, err)
}
