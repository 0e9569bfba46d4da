package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/abelbrown/topicstream/internal/config"
	"github.com/abelbrown/topicstream/internal/embed"
	"github.com/abelbrown/topicstream/internal/eval"
	"github.com/abelbrown/topicstream/internal/logging"
	"github.com/abelbrown/topicstream/internal/otel"
	"github.com/abelbrown/topicstream/internal/pipeline"
	"github.com/abelbrown/topicstream/internal/store"
	"github.com/abelbrown/topicstream/internal/ui"
)

var runFlags struct {
	models      []string
	datasetPath string
	optionsPath string
	noStore     bool
	tui         bool
	trace       bool

	thresholds     []float64
	batchSize      int
	window         int
	annotation     string
	lang           string
	removeMentions bool
	subModel       string
	minDF          int
	corpus         string
	distance       string
	update         string
	windowSpan     string
	workers        int
	results        string
	noSave         bool
}

var runCmd = &cobra.Command{
	Use:   "run --dataset <file> --model <name> [--model <name>...]",
	Short: "Cluster a dataset and score the result",
	Long: `Cluster a tab-separated dataset with one or more models, once per
threshold, and score every run against the label column.

Models:
  tfidf_dataset      TF-IDF with IDF fitted on the dataset
  tfidf_all_tweets   TF-IDF with IDF fitted on --corpus
  jina               Jina embeddings API (JINA_API_KEY)
  ollama             local Ollama embeddings (OLLAMA_HOST)

Parameters come from options.yaml ("standard" section, then the model's
section); flags given on the command line override both.

Examples:
  topicstream run --dataset event2012.tsv --model tfidf_dataset --threshold 0.6 --threshold 0.7
  topicstream run --dataset event2018.tsv --lang fr --model jina --sub-model jina-embeddings-v3 --tui`,
	RunE: runExperiments,
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVar(&runFlags.models, "model", nil, "embedding model (repeatable)")
	f.StringVar(&runFlags.datasetPath, "dataset", "", "tab-separated dataset file")
	f.StringVar(&runFlags.optionsPath, "options", config.DefaultFile, "YAML options file")
	f.BoolVar(&runFlags.noStore, "no-store", false, "do not record runs in the database")
	f.BoolVar(&runFlags.tui, "tui", false, "show a live progress view")
	f.BoolVar(&runFlags.trace, "trace", false, "emit per-batch events (env TOPICSTREAM_TRACE)")

	f.Float64SliceVar(&runFlags.thresholds, "threshold", nil, "distance threshold (repeatable)")
	f.IntVar(&runFlags.batchSize, "batch_size", 0, "items per batch")
	f.IntVar(&runFlags.window, "window", 0, "window length in hours")
	f.StringVar(&runFlags.annotation, "annotation", "", "rows to keep: no, annotated, examined")
	f.StringVar(&runFlags.lang, "lang", "", "stopword language: en, fr")
	f.BoolVar(&runFlags.removeMentions, "remove_mentions", false, "strip @mentions before embedding")
	f.StringVar(&runFlags.subModel, "sub-model", "", "service model name for jina or ollama")
	f.IntVar(&runFlags.minDF, "min_df", 0, "minimum document frequency for TF-IDF terms")
	f.StringVar(&runFlags.corpus, "corpus", "", "IDF corpus file for tfidf_all_tweets")
	f.StringVar(&runFlags.distance, "distance", "", "distance: cosine, euclidean")
	f.StringVar(&runFlags.update, "update", "", "cluster representative: first-member, centroid")
	f.StringVar(&runFlags.windowSpan, "window-span", "", "also retire clusters older than this item-time span, e.g. 6h")
	f.IntVar(&runFlags.workers, "workers", 0, "distance workers (0 = GOMAXPROCS)")
	f.StringVar(&runFlags.results, "results", "", "results CSV file")
	f.BoolVar(&runFlags.noSave, "no-save", false, "do not append to the results CSV")

	runCmd.MarkFlagRequired("dataset")
	runCmd.MarkFlagRequired("model")
	rootCmd.AddCommand(runCmd)
}

// applyFlags overrides p with every flag set on the command line.
func applyFlags(cmd *cobra.Command, p *config.Params) {
	changed := cmd.Flags().Changed
	if changed("threshold") {
		p.Thresholds = runFlags.thresholds
	}
	if changed("batch_size") {
		p.BatchSize = runFlags.batchSize
	}
	if changed("window") {
		p.Window = runFlags.window
	}
	if changed("annotation") {
		p.Annotation = runFlags.annotation
	}
	if changed("lang") {
		p.Lang = runFlags.lang
	}
	if changed("remove_mentions") {
		p.RemoveMentions = runFlags.removeMentions
	}
	if changed("sub-model") {
		p.SubModel = runFlags.subModel
	}
	if changed("min_df") {
		p.MinDF = runFlags.minDF
	}
	if changed("corpus") {
		p.Corpus = runFlags.corpus
	}
	if changed("distance") {
		p.Metric = runFlags.distance
	}
	if changed("update") {
		p.Update = runFlags.update
	}
	if changed("window-span") {
		p.WindowSpan = runFlags.windowSpan
	}
	if changed("workers") {
		p.Workers = runFlags.workers
	}
	if changed("results") {
		p.ResultsFile = runFlags.results
	}
	if changed("no-save") {
		p.SaveResults = !runFlags.noSave
	}
}

// experiments resolves the parameters of every requested model.
func experiments(cmd *cobra.Command, opts *config.Options, env config.Env) ([]pipeline.Experiment, error) {
	var out []pipeline.Experiment
	for _, model := range runFlags.models {
		p, err := opts.Params(model)
		if err != nil {
			return nil, err
		}
		applyFlags(cmd, &p)
		if model == embed.Jina && env.JinaAPIKey == "" {
			return nil, errors.New("JINA_API_KEY environment variable is required for the jina model")
		}
		out = append(out, pipeline.Experiment{Dataset: runFlags.datasetPath, Model: model, Params: p})
	}
	return out, nil
}

// denseEmbedders builds the dense services for one experiment. The
// sub-model, when set, names the service's own model.
func denseEmbedders(env config.Env, p config.Params) map[string]embed.Embedder {
	jinaModel, ollamaModel := env.JinaModel, env.OllamaModel
	if p.SubModel != "" {
		jinaModel, ollamaModel = p.SubModel, p.SubModel
	}
	m := map[string]embed.Embedder{
		embed.Ollama: embed.NewOllamaEmbedder(env.OllamaHost, ollamaModel),
	}
	if env.JinaAPIKey != "" {
		m[embed.Jina] = embed.NewJinaEmbedder(env.JinaAPIKey, jinaModel)
	}
	return m
}

func runExperiments(cmd *cobra.Command, args []string) error {
	if err := initLogging(runFlags.tui); err != nil {
		return err
	}
	defer logging.Close()
	if runFlags.trace {
		otel.SetTraceEnabled(true)
	}

	env := config.FromEnv()
	opts, err := config.Load(runFlags.optionsPath)
	if err != nil {
		return err
	}
	exps, err := experiments(cmd, opts, env)
	if err != nil {
		return err
	}

	events, err := otel.Open(eventsLog)
	if err != nil {
		logging.Warn("Event log unavailable", "path", eventsLog, "error", err)
		events = otel.NewNullLogger()
	}
	defer events.Close()
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	events.SetRingBuffer(ring)
	events.Info(otel.KindStartup, "main", "topicstream "+version)
	defer events.Info(otel.KindShutdown, "main", "")

	runner := &pipeline.Runner{Events: events}
	if !runFlags.noStore {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		runner.Store = st
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !runFlags.tui {
		results, err := runAll(ctx, runner, env, exps)
		printResults(cmd.OutOrStdout(), results)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := tea.NewProgram(ui.NewApp(ring, cancel))
	runner.Reporter = ui.NewReporter(p)
	stopRunner := startBackground(ctx, cancel, func(ctx context.Context) error {
		_, err := runAll(ctx, runner, env, exps)
		return err
	}, p.Send)

	final, err := p.Run()
	// the store and event log close on return
	stopRunner()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	app := final.(ui.App)
	printResults(cmd.OutOrStdout(), app.Results())
	return app.Err()
}

// startBackground runs work on its own goroutine and reports its result
// to send as ui.ExperimentsDone. The returned stop cancels work and blocks
// until it has returned.
func startBackground(ctx context.Context, cancel context.CancelFunc, work func(context.Context) error, send func(tea.Msg)) (stop func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		send(ui.ExperimentsDone{Err: work(ctx)})
	}()
	return func() {
		cancel()
		<-done
	}
}

// runAll runs every experiment in order and stops at the first failure.
func runAll(ctx context.Context, runner *pipeline.Runner, env config.Env, exps []pipeline.Experiment) ([]eval.Result, error) {
	var all []eval.Result
	for _, exp := range exps {
		runner.Dense = denseEmbedders(env, exp.Params)
		results, err := runner.Run(ctx, exp)
		all = append(all, results...)
		if err != nil {
			logging.Error("Experiment failed", "model", exp.Model, "error", err)
			runner.Events.Error(otel.KindError, "main", err)
			return all, fmt.Errorf("%s: %w", exp.Model, err)
		}
	}
	return all, nil
}

func printResults(w io.Writer, results []eval.Result) {
	if t := ui.ScoreTable(results); t != "" {
		fmt.Fprintln(w, t)
	}
}
