package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/aggregate"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/coherence"
)

// File names of the CSV outputs.
const (
	DistributionsFile = "topic_distributions.csv"
	DocumentsFile     = "document_topics.csv"
	DominantFile      = "dominant_topics.csv"
	KeywordsFile      = "topic_keywords.csv"
	SummaryFile       = "lda_summary.csv"
	CountsFile        = "topic_counts.csv"
	PrevalenceFile    = "topic_prevalence.csv"
	SimilarityFile    = "document_similarity.csv"
)

// CSVOptions selects the optional tables.
type CSVOptions struct {
	KeywordsTopN int
	Similarity   bool
}

// CSVWriter writes the tabular outputs of a run into one directory.
type CSVWriter struct {
	dir    string
	opts   CSVOptions
	logger *slog.Logger
}

func NewCSVWriter(dir string, opts CSVOptions) *CSVWriter {
	if opts.KeywordsTopN < 1 {
		opts.KeywordsTopN = 10
	}
	return &CSVWriter{
		dir:    dir,
		opts:   opts,
		logger: slog.Default().With("component", "csv-export"),
	}
}

// Write creates every table and returns the paths written.
func (w *CSVWriter) Write(r *Results) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir %s: %w", w.dir, err)
	}
	tables := []struct {
		name string
		rows func(*Results) ([][]string, error)
		skip bool
	}{
		{name: DistributionsFile, rows: distributionsTable},
		{name: DocumentsFile, rows: documentsTable},
		{name: DominantFile, rows: dominantTable},
		{name: KeywordsFile, rows: w.keywordsTable},
		{name: SummaryFile, rows: summaryTable},
		{name: CountsFile, rows: countsTable},
		{name: PrevalenceFile, rows: prevalenceTable, skip: len(r.Groups) == 0},
		{name: SimilarityFile, rows: similarityTable, skip: !w.opts.Similarity},
	}

	var written []string
	for _, tbl := range tables {
		if tbl.skip {
			continue
		}
		rows, err := tbl.rows(r)
		if err != nil {
			return written, fmt.Errorf("building %s: %w", tbl.name, err)
		}
		path := filepath.Join(w.dir, tbl.name)
		if err := writeCSV(path, rows); err != nil {
			return written, err
		}
		w.logger.Debug("table written", "file", path, "rows", len(rows)-1)
		written = append(written, path)
	}
	w.logger.Info("csv export finished", "dir", w.dir, "files", len(written))
	return written, nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func distributionsTable(r *Results) ([][]string, error) {
	rows := [][]string{{"Document ID", "Topic ID", "Probability", "Fold"}}
	for _, d := range r.distributionRows() {
		rows = append(rows, []string{d.DocumentID, strconv.Itoa(d.TopicID), formatFloat(d.Probability), strconv.Itoa(d.Fold)})
	}
	return rows, nil
}

func documentsTable(r *Results) ([][]string, error) {
	rows := [][]string{{"Document ID", "Topic ID", "Probability"}}
	for _, d := range r.documentRows() {
		rows = append(rows, []string{d.DocumentID, strconv.Itoa(d.TopicID), formatFloat(d.Probability)})
	}
	return rows, nil
}

func dominantTable(r *Results) ([][]string, error) {
	rows := [][]string{{"Document ID", "Dominant Topic", "Probability"}}
	for _, id := range r.Order {
		res, err := aggregate.Lookup(r.Documents, id)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []string{id, strconv.Itoa(res.DominantTopic), formatFloat(res.DominantProbability)})
	}
	return rows, nil
}

func (w *CSVWriter) keywordsTable(r *Results) ([][]string, error) {
	rows := [][]string{{"Fold", "Topic ID", "Keywords"}}
	for _, f := range r.Report.Folds {
		if f.Err != nil || f.Model == nil {
			continue
		}
		for t, ids := range coherence.TopWords(f.Model, w.opts.KeywordsTopN) {
			words := make([]string, 0, len(ids))
			for _, id := range ids {
				if tok, ok := r.Vocab.Token(id); ok {
					words = append(words, tok)
				}
			}
			rows = append(rows, []string{strconv.Itoa(f.Index), strconv.Itoa(t), strings.Join(words, ", ")})
		}
	}
	return rows, nil
}

func summaryTable(r *Results) ([][]string, error) {
	rep := r.Report
	rows := [][]string{
		{"Metric", "Value"},
		{"Run ID", r.RunID},
		{"Documents", strconv.Itoa(len(r.Order))},
		{"Folds", strconv.Itoa(len(rep.Folds))},
		{"Successful Folds", strconv.Itoa(rep.Succeeded)},
		{"Average Coherence Score", formatFloat(rep.MeanCoherence)},
	}
	for _, f := range rep.Folds {
		prefix := fmt.Sprintf("Fold %d ", f.Index)
		if f.Err != nil {
			rows = append(rows, []string{prefix + "Error", f.Err.Error()})
			continue
		}
		rows = append(rows,
			[]string{prefix + "Topics", strconv.Itoa(f.K)},
			[]string{prefix + "Coherence", formatFloat(f.Coherence.Aggregate)},
		)
	}
	return rows, nil
}

func countsTable(r *Results) ([][]string, error) {
	rows := [][]string{{"Topic ID", "Document Count"}}
	for t, n := range aggregate.DominantCounts(r.Documents) {
		rows = append(rows, []string{strconv.Itoa(t), strconv.Itoa(n)})
	}
	return rows, nil
}

func prevalenceTable(r *Results) ([][]string, error) {
	rows := [][]string{{"Group", "Topic ID", "Mean Probability"}}
	for _, p := range aggregate.Prevalence(r.Documents, r.Groups) {
		rows = append(rows, []string{p.Group, strconv.Itoa(p.TopicID), formatFloat(p.MeanProbability)})
	}
	return rows, nil
}

func similarityTable(r *Results) ([][]string, error) {
	sim, err := aggregate.Similarity(r.Documents, r.Order)
	if err != nil {
		return nil, err
	}
	header := append([]string{"Document ID"}, r.Order...)
	rows := [][]string{header}
	for i, id := range r.Order {
		row := make([]string, 0, len(r.Order)+1)
		row = append(row, id)
		for j := range r.Order {
			row = append(row, formatFloat(sim.At(i, j)))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
