// Command synthcorpus writes a JSON Lines corpus drawn from planted topics,
// for smoke-testing topicfold against a known answer.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/logger"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

type Config struct {
	Documents     int
	Topics        int
	WordsPerTopic int
	Length        int
	Groups        int
	Alpha         float64
	Seed          uint64
}

func main() {
	out := flag.String("out", "", "output file (stdout when empty)")
	docs := flag.Int("docs", 200, "number of documents")
	topics := flag.Int("topics", 5, "number of planted topics")
	words := flag.Int("words", 20, "vocabulary words per topic")
	length := flag.Int("length", 80, "tokens per document")
	groups := flag.Int("groups", 4, "number of group labels (0 for none)")
	alpha := flag.Float64("alpha", 0.1, "document-topic Dirichlet concentration")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	logger.Setup("info", "text")
	cfg := Config{
		Documents:     *docs,
		Topics:        *topics,
		WordsPerTopic: *words,
		Length:        *length,
		Groups:        *groups,
		Alpha:         *alpha,
		Seed:          *seed,
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "creating %s: %v\n", *out, err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	if err := Generate(bw, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "generating corpus: %v\n", err)
		os.Exit(1)
	}
	if err := bw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "writing corpus: %v\n", err)
		os.Exit(1)
	}
	slog.Info("corpus written", "documents", cfg.Documents, "topics", cfg.Topics, "out", *out)
}

// Generate draws each document's topic mixture from a symmetric Dirichlet
// and each token from its topic's word list, then writes one record per
// line. The output depends only on cfg.
func Generate(w io.Writer, cfg Config) error {
	if cfg.Documents < 1 || cfg.Topics < 1 || cfg.WordsPerTopic < 1 || cfg.Length < 1 {
		return fmt.Errorf("documents, topics, words and length must be positive")
	}
	if cfg.Alpha <= 0 {
		return fmt.Errorf("alpha must be positive, got %g", cfg.Alpha)
	}
	src := rand.NewSource(cfg.Seed)
	alpha := make([]float64, cfg.Topics)
	for i := range alpha {
		alpha[i] = cfg.Alpha
	}
	mixture := distmv.NewDirichlet(alpha, src)
	wordWeights := make([]float64, cfg.WordsPerTopic)
	for j := range wordWeights {
		wordWeights[j] = 1 / float64(j+1)
	}
	pickWord := distuv.NewCategorical(wordWeights, src)

	enc := json.NewEncoder(w)
	theta := make([]float64, cfg.Topics)
	for d := 0; d < cfg.Documents; d++ {
		mixture.Rand(theta)
		if math.IsNaN(theta[0]) {
			// every gamma draw underflowed
			for i := range theta {
				theta[i] = 1 / float64(cfg.Topics)
			}
		}
		pickTopic := distuv.NewCategorical(theta, src)
		tokens := make([]string, cfg.Length)
		for i := range tokens {
			t := int(pickTopic.Rand())
			tokens[i] = fmt.Sprintf("topic%dword%d", t, int(pickWord.Rand()))
		}
		rec := corpus.Record{ID: fmt.Sprintf("synth-%05d", d), Tokens: tokens}
		if cfg.Groups > 0 {
			rec.Group = fmt.Sprintf("group-%d", d%cfg.Groups)
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding document %d: %w", d, err)
		}
	}
	return nil
}
