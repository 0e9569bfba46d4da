// Package pipeline runs clustering experiments end to end: it loads a
// dataset, builds vectors for a model, clusters the stream once per
// threshold, then scores and persists every run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/abelbrown/topicstream/internal/cluster"
	"github.com/abelbrown/topicstream/internal/config"
	"github.com/abelbrown/topicstream/internal/dataset"
	"github.com/abelbrown/topicstream/internal/embed"
	"github.com/abelbrown/topicstream/internal/eval"
	"github.com/abelbrown/topicstream/internal/logging"
	"github.com/abelbrown/topicstream/internal/otel"
	"github.com/abelbrown/topicstream/internal/store"
	"github.com/abelbrown/topicstream/internal/vecs"
)

// Reporter receives progress. Implementations must be safe to call from
// the goroutine running the experiment.
type Reporter interface {
	Stage(model, stage string)
	Embedded(model string, done, total int)
	Batch(model string, threshold float64, s cluster.BatchStats, total int)
	Scored(r eval.Result)
}

// Experiment is one dataset clustered with one model.
type Experiment struct {
	Dataset string
	Model   string
	Params  config.Params
}

// Runner executes experiments. Every field except Dense is optional.
type Runner struct {
	// Dense maps dense model names to their embedding services.
	Dense map[string]embed.Embedder
	// Store persists runs, assignments and the embedding cache.
	Store    *store.Store
	Events   *otel.Logger
	Reporter Reporter
	// Now is the clock stamped on results.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) events() *otel.Logger {
	if r.Events == nil {
		r.Events = otel.NewNullLogger()
	}
	return r.Events
}

func (r *Runner) reporter() Reporter {
	if r.Reporter == nil {
		r.Reporter = logReporter{}
	}
	return r.Reporter
}

// Run executes exp for every configured threshold and returns one Result
// per completed run. On cancellation the results finished so far are
// returned with ctx.Err().
func (r *Runner) Run(ctx context.Context, exp Experiment) ([]eval.Result, error) {
	p := exp.Params
	ev := r.events()
	rep := r.reporter()

	if len(p.Thresholds) == 0 {
		return nil, fmt.Errorf("pipeline: %s: no thresholds", exp.Model)
	}
	base, err := engineConfig(p)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %s: %w", exp.Model, err)
	}

	rep.Stage(exp.Model, "loading dataset")
	ds, err := r.load(exp)
	if err != nil {
		ev.Error(otel.KindError, "pipeline", err)
		return nil, err
	}

	rep.Stage(exp.Model, "embedding")
	vs, err := r.vectors(ctx, exp, ds)
	if err != nil {
		ev.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindEmbedError, Comp: "pipeline", Model: exp.Model, Err: err.Error()})
		return nil, err
	}

	base.WindowSize = dataset.WindowFromDaily(ds.Records, p.Window, p.BatchSize)
	logging.Info("Window derived", "model", exp.Model, "hours", p.Window, "size", base.WindowSize)

	var results []eval.Result
	for _, t := range p.Thresholds {
		cfg := base
		cfg.Threshold = t
		res, err := r.runOne(ctx, exp, ds, vs, cfg)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// load reads the dataset and records a dataset.load event.
func (r *Runner) load(exp Experiment) (*dataset.Dataset, error) {
	ann, err := dataset.ParseAnnotation(exp.Params.Annotation)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	start := time.Now()
	ds, err := dataset.Load(exp.Dataset, dataset.Options{
		Annotation:     ann,
		RemoveMentions: exp.Params.RemoveMentions,
	})
	if err != nil {
		return nil, err
	}
	r.events().Emit(otel.Event{
		Level: otel.LevelInfo,
		Kind:  otel.KindDatasetLoad,
		Comp:  "pipeline",
		Count: len(ds.Records),
		Dur:   time.Since(start),
		Msg:   ds.Name(),
	})
	return ds, nil
}

// vectors embeds the dataset's texts with the experiment's model.
func (r *Runner) vectors(ctx context.Context, exp Experiment, ds *dataset.Dataset) (*vecs.Store, error) {
	p := exp.Params
	model := exp.Model
	b := &embed.Builder{
		Tokenizer: embed.NewTokenizer(p.Lang),
		MinDF:     p.MinDF,
		Dense:     r.Dense,
		Progress: func(done, total int) {
			r.reporter().Embedded(model, done, total)
			if otel.TraceEnabled() {
				r.events().Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindEmbedBatch, Comp: "embed", Model: model, Count: done})
			}
		},
	}
	if r.Store != nil {
		b.Cache = r.Store
	}
	if model == embed.TFIDFAllTweets {
		if p.Corpus == "" {
			return nil, fmt.Errorf("pipeline: %s needs a corpus file", model)
		}
		corpus, err := dataset.Load(p.Corpus, dataset.Options{Annotation: dataset.AllRows, RemoveMentions: p.RemoveMentions})
		if err != nil {
			return nil, fmt.Errorf("pipeline: corpus: %w", err)
		}
		b.Corpus = corpus.Texts()
	}

	docs := make([]embed.Doc, len(ds.Records))
	for i, rec := range ds.Records {
		docs[i] = embed.Doc{ID: rec.ID, Text: rec.Text, At: rec.At}
	}

	r.events().Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindEmbedStart, Comp: "embed", Model: model, Count: len(docs)})
	start := time.Now()
	vs, err := b.Build(ctx, model, docs)
	if err != nil {
		return nil, err
	}
	shape, _ := vs.Shape()
	r.events().Emit(otel.Event{
		Level: otel.LevelInfo,
		Kind:  otel.KindEmbedComplete,
		Comp:  "embed",
		Model: model,
		Count: vs.Len(),
		Dims:  shape.Dim,
		Dur:   time.Since(start),
	})
	return vs, nil
}

// runOne clusters, writes, scores and persists one threshold.
func (r *Runner) runOne(ctx context.Context, exp Experiment, ds *dataset.Dataset, vs *vecs.Store, cfg cluster.Config) (eval.Result, error) {
	rep := r.reporter()
	runID := store.NewRunID()
	scope := r.events().Run(runID, exp.Model, cfg.Threshold)
	startedAt := r.now()

	eng, err := cluster.New(cfg)
	if err != nil {
		return eval.Result{}, fmt.Errorf("pipeline: %w", err)
	}
	total := vs.Len()
	eng.OnBatch(func(s cluster.BatchStats) {
		rep.Batch(exp.Model, cfg.Threshold, s, total)
		if otel.TraceEnabled() {
			scope.Emit(otel.Event{
				Level:    otel.LevelDebug,
				Kind:     otel.KindClusterBatch,
				Comp:     "cluster",
				Batch:    s.Batch,
				Count:    s.Size,
				Clusters: s.Clusters,
				Dur:      s.Dur,
				Extra:    map[string]any{"created": s.Created, "assigned": s.Assigned, "evicted": s.Evicted, "active": s.Active},
			})
		}
	})

	scope.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindRunStart, Comp: "pipeline", Count: total, Msg: ds.Name()})
	rep.Stage(exp.Model, "clustering t="+ftoa(cfg.Threshold))
	start := time.Now()
	pred, err := eng.Run(ctx, vs)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			scope.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindRunCancel, Comp: "pipeline", Count: len(pred)})
		}
		return eval.Result{}, err
	}
	scope.Emit(otel.Event{
		Level:    otel.LevelInfo,
		Kind:     otel.KindClusterComplete,
		Comp:     "cluster",
		Count:    len(pred),
		Clusters: eng.Clusters(),
		Dur:      time.Since(start),
	})
	logging.Info("Clustering complete",
		"model", exp.Model,
		"threshold", cfg.Threshold,
		"items", len(pred),
		"clusters", eng.Clusters(),
		"dur", time.Since(start))

	if err := ds.WriteResults(dataset.ResultsPath(ds.Path), pred); err != nil {
		return eval.Result{}, err
	}

	res, err := eval.Score(ds.Labels(), pred)
	if err != nil {
		return eval.Result{}, fmt.Errorf("pipeline: score: %w", err)
	}
	res.RunID = runID
	res.Dataset = ds.Name()
	res.Model = exp.Model
	res.Threshold = cfg.Threshold
	res.Params = paramMap(exp.Params, cfg)
	res.RunAt = startedAt

	if res.McMinn == nil {
		scope.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindEvalSkip, Comp: "eval", Msg: "mcminn: no candidate clusters"})
	}
	scope.Emit(otel.Event{
		Level:    otel.LevelInfo,
		Kind:     otel.KindEvalScore,
		Comp:     "eval",
		Clusters: res.Stats.Clusters,
		Extra:    map[string]any{"f1": res.Match.F1, "ami": res.AMI, "ari": res.ARI},
	})

	if exp.Params.SaveResults && exp.Params.ResultsFile != "" {
		if err := eval.AppendCSV(exp.Params.ResultsFile, res); err != nil {
			return res, err
		}
		scope.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindReportWrite, Comp: "eval", Msg: exp.Params.ResultsFile})
	}

	r.persist(ctx, scope, ds, res, pred, cfg, startedAt)

	scope.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindRunComplete, Comp: "pipeline", Dur: r.now().Sub(startedAt)})
	rep.Scored(res)
	return res, nil
}

// persist records the run in the store. Failures are logged, not returned;
// the CSV and TSV outputs are already written.
func (r *Runner) persist(ctx context.Context, scope *otel.Scope, ds *dataset.Dataset, res eval.Result, pred []int, cfg cluster.Config, startedAt time.Time) {
	if r.Store == nil {
		return
	}
	run := store.Run{
		ID:         res.RunID,
		Dataset:    res.Dataset,
		Model:      res.Model,
		Threshold:  res.Threshold,
		Window:     cfg.WindowSize,
		BatchSize:  cfg.BatchSize,
		Params:     res.Params,
		Items:      res.Stats.Items,
		Clusters:   res.Stats.Clusters,
		P:          res.Match.P,
		R:          res.Match.R,
		F1:         res.Match.F1,
		AMI:        res.AMI,
		ARI:        res.ARI,
		StartedAt:  startedAt,
		FinishedAt: r.now(),
	}
	if res.McMinn != nil {
		run.McMinn = &[3]float64{res.McMinn.P, res.McMinn.R, res.McMinn.F1}
	}

	err := r.Store.SaveRun(ctx, run)
	if err == nil {
		err = r.Store.SaveAssignments(ctx, run.ID, ds.IDs(), pred)
	}
	if err != nil {
		logging.Warn("Failed to persist run", "run", run.ID, "error", err)
		scope.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindStoreError, Comp: "store", Err: err.Error()})
	}
}

// engineConfig maps options onto an engine configuration. WindowSize and
// Threshold are filled per run.
func engineConfig(p config.Params) (cluster.Config, error) {
	metric, err := cluster.MetricByName(p.Metric)
	if err != nil {
		return cluster.Config{}, err
	}
	update, err := cluster.ParseUpdatePolicy(p.Update)
	if err != nil {
		return cluster.Config{}, err
	}
	var span time.Duration
	if p.WindowSpan != "" {
		if span, err = time.ParseDuration(p.WindowSpan); err != nil {
			return cluster.Config{}, &cluster.ConfigError{Field: "window_span", Reason: err.Error()}
		}
	}
	return cluster.Config{
		BatchSize:  p.BatchSize,
		Metric:     metric,
		Update:     update,
		WindowSpan: span,
		Workers:    p.Workers,
	}, nil
}

// paramMap lists the parameters recorded next to the scores.
func paramMap(p config.Params, cfg cluster.Config) map[string]string {
	m := map[string]string{
		"batch_size":      strconv.Itoa(p.BatchSize),
		"window":          strconv.Itoa(p.Window),
		"window_size":     strconv.Itoa(cfg.WindowSize),
		"annotation":      p.Annotation,
		"lang":            p.Lang,
		"remove_mentions": strconv.FormatBool(p.RemoveMentions),
		"distance":        cfg.Metric.Name(),
		"update":          cfg.Update.String(),
	}
	if p.SubModel != "" {
		m["sub_model"] = p.SubModel
	}
	if p.WindowSpan != "" {
		m["window_span"] = p.WindowSpan
	}
	if p.MinDF > 1 {
		m["min_df"] = strconv.Itoa(p.MinDF)
	}
	return m
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// logReporter reports progress through the file logger.
type logReporter struct{}

func (logReporter) Stage(model, stage string) {
	logging.Info("Stage", "model", model, "stage", stage)
}

func (logReporter) Embedded(model string, done, total int) {
	logging.Debug("Embedded", "model", model, "done", done, "total", total)
}

func (logReporter) Batch(model string, threshold float64, s cluster.BatchStats, total int) {}

func (logReporter) Scored(r eval.Result) {
	logging.Info("Run scored", "model", r.Model, "threshold", r.Threshold, "f1", r.Match.F1, "ami", r.AMI, "ari", r.ARI)
}
