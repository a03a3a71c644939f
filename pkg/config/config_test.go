package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.False(t, cfg.Run.Sweeping())
	require.Equal(t, 5, cfg.Run.Folds)
	require.Equal(t, 10, cfg.Coherence.TopN)
	require.Equal(t, 110, cfg.Coherence.Window)
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	yaml := `
run:
  folds: 3
  candidateKs: [4, 2, 8]
  foldTimeout: 30s
coherence:
  topN: 5
  window: 20
input:
  path: corpus.jsonl
  stem: true
kafka:
  messagesPerSecond: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("TC_RUN_SEED", "99")
	t.Setenv("TC_EXPORT_DIR", "/tmp/results")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Run.Folds)
	require.True(t, cfg.Run.Sweeping())
	require.Equal(t, []int{4, 2, 8}, cfg.Run.CandidateKs)
	require.Equal(t, 30*time.Second, cfg.Run.FoldTimeout)
	require.Equal(t, uint64(99), cfg.Run.Seed)
	require.Equal(t, "/tmp/results", cfg.Export.Dir)
	require.True(t, cfg.Input.Stem)
	require.Equal(t, 3, cfg.Input.MinTokenLength)
	require.Equal(t, 50.0, cfg.Kafka.MessagesPerSecond)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run: [unclosed"), 0o644))
	_, err := Load(path)
	require.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
	require.Equal(t, apperrors.ExitConfiguration, apperrors.ExitCode(err))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"one fold":            func(c *Config) { c.Run.Folds = 1 },
		"fixed k below two":   func(c *Config) { c.Run.FixedK = 1 },
		"candidate below two": func(c *Config) { c.Run.CandidateKs = []int{3, 1} },
		"zero iterations":     func(c *Config) { c.Run.MaxIterations = 0 },
		"negative tolerance":  func(c *Config) { c.Run.Tolerance = -1 },
		"unknown alpha mode":  func(c *Config) { c.Run.AlphaMode = "asymmetric" },
		"no workers":          func(c *Config) { c.Run.Workers = 0 },
		"top one word":        func(c *Config) { c.Coherence.TopN = 1 },
		"window of one":       func(c *Config) { c.Coherence.Window = 1 },
		"max df above one":    func(c *Config) { c.Vocabulary.MaxDocFreq = 1.5 },
		"kafka without topic": func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "" },
		"no keywords":         func(c *Config) { c.Export.KeywordsTopN = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), apperrors.ErrInvalidConfiguration)
		})
	}
}

func TestDSN(t *testing.T) {
	p := Default().Postgres
	require.Equal(t, "host=localhost port=5432 user=topics password=localdev dbname=topics sslmode=disable", p.DSN())
}
