package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/export"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func writeCorpus(t *testing.T, path string) {
	t.Helper()
	themes := [][]string{
		{"budget", "deficit", "revenue", "taxation", "spending"},
		{"soldiers", "missile", "navy", "troops", "fleet"},
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := 0; i < 12; i++ {
		words := themes[i%2]
		text := ""
		for j := 0; j < 20; j++ {
			text += words[(i+j)%len(words)] + " "
		}
		rec := map[string]string{"id": fmt.Sprintf("doc-%02d", i), "text": text, "group": fmt.Sprintf("%d", 1990+i%3)}
		require.NoError(t, enc.Encode(rec))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Input.Path = filepath.Join(dir, "corpus.jsonl")
	cfg.Export.Dir = filepath.Join(dir, "out")
	cfg.Export.ReportPath = filepath.Join(dir, "out", "report.html")
	cfg.Export.SQLitePath = filepath.Join(dir, "out", "results.db")
	cfg.Export.Similarity = true
	cfg.Run.Folds = 3
	cfg.Run.FixedK = 0
	cfg.Run.CandidateKs = []int{2, 3}
	cfg.Coherence.TopN = 4
	cfg.Coherence.Window = 10
	writeCorpus(t, cfg.Input.Path)
	return cfg
}

func TestRunWritesExports(t *testing.T) {
	cfg := testConfig(t)
	var stdout bytes.Buffer
	m := metrics.New(prometheus.NewRegistry())

	require.NoError(t, run(context.Background(), cfg, "test-run", m, &stdout))

	for _, name := range []string{
		export.DistributionsFile, export.DocumentsFile, export.DominantFile,
		export.KeywordsFile, export.SummaryFile, export.CountsFile,
		export.PrevalenceFile, export.SimilarityFile,
	} {
		require.FileExists(t, filepath.Join(cfg.Export.Dir, name))
	}
	require.FileExists(t, cfg.Export.ReportPath)
	require.FileExists(t, cfg.Export.SQLitePath)
	require.Contains(t, stdout.String(), "run test-run")
	require.Contains(t, stdout.String(), "documents:          12")
}

func TestRunWithoutInput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.Path = ""
	err := run(context.Background(), cfg, "r", nil, &bytes.Buffer{})
	require.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
	require.Equal(t, apperrors.ExitConfiguration, apperrors.ExitCode(err))
}

func TestRunReportsUnavailableSink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.SQLitePath = filepath.Join(t.TempDir(), "missing", "dir", "results.db")
	err := run(context.Background(), cfg, "r", nil, &bytes.Buffer{})
	require.ErrorIs(t, err, apperrors.ErrSinkUnavailable)
	require.FileExists(t, filepath.Join(cfg.Export.Dir, export.SummaryFile))
}
