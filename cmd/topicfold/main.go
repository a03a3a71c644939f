// Command topicfold runs k-fold cross-validation of LDA topic models over a
// JSON Lines corpus and exports per-document topic distributions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/crossval"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/export"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/lda"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/modelcache"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/report"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/selector"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/textprep"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/health"
	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/resilience"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults only when empty)")
	inputPath := flag.String("input", "", "corpus JSONL file, overrides input.path")
	outDir := flag.String("out", "", "export directory, overrides export.dir")
	runID := flag.String("run-id", "", "run identifier (random UUID when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
	if *inputPath != "" {
		cfg.Input.Path = *inputPath
	}
	if *outDir != "" {
		cfg.Export.Dir = *outDir
	}
	if *runID == "" {
		*runID = uuid.NewString()
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logger.WithRunID(ctx, *runID)
	err = run(ctx, cfg, *runID, metrics.New(prometheus.DefaultRegisterer), os.Stdout)
	stop()
	if err != nil {
		slog.Error("run failed", "run_id", *runID, "error", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config, runID string, m *metrics.Metrics, stdout io.Writer) error {
	log := logger.FromContext(ctx)
	log.Info("starting topicfold",
		"input", cfg.Input.Path,
		"folds", cfg.Run.Folds,
		"candidate_ks", cfg.Run.CandidateKs,
		"fixed_k", cfg.Run.FixedK,
	)

	checker := health.NewChecker(runID)
	if cfg.Metrics.Enabled {
		shutdown := m.StartServer(cfg.Metrics.Port, checker.Handler())
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	vocab, c, err := loadCorpus(cfg)
	if err != nil {
		return err
	}
	log.Info("corpus loaded", "documents", c.Len(), "vocabulary", vocab.Len())

	trainer, closeCache := buildTrainer(cfg, m, checker)
	defer closeCache()

	orch := crossval.New(crossval.Options{
		Run:       cfg.Run,
		Coherence: cfg.Coherence,
		Trainer:   trainer,
		Metrics:   m,
	})
	rep, err := orch.Run(ctx, c, vocab)
	if err != nil {
		return err
	}
	rep.Span.Log(log)

	results, err := export.NewResults(runID, rep, c, vocab)
	if err != nil {
		return err
	}
	files, err := export.NewCSVWriter(cfg.Export.Dir, export.CSVOptions{
		KeywordsTopN: cfg.Export.KeywordsTopN,
		Similarity:   cfg.Export.Similarity,
	}).Write(results)
	if err != nil {
		return err
	}
	m.AddExported("csv", len(rep.Records))
	if cfg.Export.ReportPath != "" {
		if err := report.WriteFile(cfg.Export.ReportPath, results); err != nil {
			log.Warn("html report failed", "error", err)
		} else {
			files = append(files, cfg.Export.ReportPath)
		}
	}

	sinkErr := dispatch(ctx, cfg, m, checker, results)

	printSummary(stdout, results, files)
	return sinkErr
}

func loadCorpus(cfg *config.Config) (*corpus.Vocabulary, *corpus.Corpus, error) {
	if cfg.Input.Path == "" {
		return nil, nil, apperrors.New(apperrors.ErrInvalidConfiguration, "no corpus given (set input.path or -input)")
	}
	tok := textprep.New(textprep.Options{
		MinLength:    cfg.Input.MinTokenLength,
		Stem:         cfg.Input.Stem,
		StripAccents: cfg.Input.StripAccents,
		StopWords:    cfg.Input.StopWords,
	})
	records, err := corpus.NewReader(tok).ReadFile(cfg.Input.Path)
	if err != nil {
		return nil, nil, err
	}
	return corpus.BuildVocabulary(records, corpus.Options{
		MinDocFreq: cfg.Vocabulary.MinDocFreq,
		MaxDocFreq: cfg.Vocabulary.MaxDocFreq,
	})
}

// buildTrainer returns the plain LDA trainer, wrapped in the Redis model
// cache when it is enabled and reachable.
func buildTrainer(cfg *config.Config, m *metrics.Metrics, checker *health.Checker) (selector.Trainer, func()) {
	base := lda.NewTrainer(lda.ConfigFromRun(cfg.Run))
	noop := func() {}
	if !cfg.Redis.Enabled {
		return base, noop
	}
	client, err := pkgredis.NewClient(cfg.Redis, "topicfold")
	if err != nil {
		slog.Warn("redis unavailable, model caching disabled", "error", err)
		return base, noop
	}
	cached, err := modelcache.New(base, base.Config().String(), client, modelcache.Options{
		TTL:     cfg.Redis.CacheTTL,
		Metrics: m,
	})
	if err != nil {
		slog.Warn("model cache setup failed", "error", err)
		client.Close()
		return base, noop
	}
	checker.Register("redis", false, client.Ping)
	slog.Info("model cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	return cached, func() {
		hits, misses := cached.Stats()
		slog.Info("model cache stats", "hits", hits, "misses", misses)
		client.Close()
	}
}

func dispatch(ctx context.Context, cfg *config.Config, m *metrics.Metrics, checker *health.Checker, results *export.Results) error {
	var sinks []export.Sink
	var closers []func() error
	defer func() {
		for _, c := range closers {
			_ = c()
		}
	}()

	var setupErrs []error
	if cfg.Export.SQLitePath != "" {
		s, err := export.OpenSQLite(ctx, cfg.Export.SQLitePath)
		if err != nil {
			setupErrs = append(setupErrs, err)
		} else {
			sinks = append(sinks, s)
			closers = append(closers, s.Close)
			checker.Register("sqlite", true, s.DB().PingContext)
		}
	}
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			setupErrs = append(setupErrs, err)
		} else {
			sinks = append(sinks, export.NewPostgresSink(db))
			closers = append(closers, db.Close)
			checker.Register("postgres", true, db.DB.PingContext)
		}
	}
	if cfg.Kafka.Enabled {
		p := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topic)
		sinks = append(sinks, export.NewKafkaSink(p))
		closers = append(closers, p.Close)
	}

	err := export.NewDispatcher(resilience.RetryConfig{}, m, sinks...).Dispatch(ctx, results)
	if len(setupErrs) > 0 {
		setup := fmt.Errorf("%w: %w", apperrors.ErrSinkUnavailable, errors.Join(setupErrs...))
		slog.Error("sink setup failed", "error", setup)
		return errors.Join(setup, err)
	}
	return err
}

func printSummary(w io.Writer, r *export.Results, files []string) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "run %s\n", r.RunID)
	p.Fprintf(w, "documents:          %d\n", len(r.Order))
	p.Fprintf(w, "folds succeeded:    %d of %d\n", r.Report.Succeeded, len(r.Report.Folds))
	p.Fprintf(w, "average coherence:  %.4f\n", r.Report.MeanCoherence)
	for _, f := range r.Report.Folds {
		if f.Err != nil {
			p.Fprintf(w, "  fold %d: failed: %v\n", f.Index, f.Err)
			continue
		}
		p.Fprintf(w, "  fold %d: K=%d coherence=%.4f train=%d test=%d (%v)\n",
			f.Index, f.K, f.Coherence.Aggregate, f.TrainSize, f.TestSize, f.Duration.Round(time.Millisecond))
	}
	for _, f := range files {
		p.Fprintf(w, "wrote %s\n", f)
	}
}
