// Package pipeline orchestrates one export run: parallel per-variable loads,
// coordinate reconciliation, unit normalization, merge, lead-step collapse,
// and the chunked store write.
//
// Every transformation stage fails fast and propagates the first error; a
// store with silently dropped or mis-converted variables is worse than an
// aborted run. Store write failures are surfaced without retry; retrying
// against a partially removed destination risks data loss.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sayantanonfire/era5-export/internal/adapter/zarr"
	"github.com/sayantanonfire/era5-export/internal/dataset"
	"github.com/sayantanonfire/era5-export/internal/observability"
)

// VariableOpener opens the source archive filtered to one named variable.
// Implementations must be safe for concurrent use; loads share no state.
type VariableOpener interface {
	OpenVariable(ctx context.Context, selector string) (*dataset.Variable, error)
}

// StoreWriter persists a dataset at a destination path with full-replace
// semantics.
type StoreWriter interface {
	Write(ctx context.Context, path string, ds *dataset.Dataset, spec zarr.StoreSpec) (zarr.WriteReport, error)
}

// Notifier announces a completed export to downstream consumers.
type Notifier interface {
	NotifyExport(ctx context.Context, notice ExportNotice) error
}

// ExportNotice summarizes one completed export for downstream consumers.
type ExportNotice struct {
	StorePath   string            `json:"store_path"`
	Variables   []VariableSummary `json:"variables"`
	CompletedAt time.Time         `json:"completed_at"`
}

// VariableSummary describes one exported variable.
type VariableSummary struct {
	Name     string `json:"name"`
	Shape    []int  `json:"shape"`
	Units    string `json:"units"`
	LongName string `json:"long_name"`
}

// VariableJob is one variable to load and normalize, in merge order.
type VariableJob struct {
	Selector string
	Info     dataset.VariableInfo
}

// CollapseJob is one lead-step collapse to apply after the merge.
type CollapseJob struct {
	Variable string
	Agg      dataset.AggFunc
}

// Options configures one export run.
type Options struct {
	Variables []VariableJob
	Reconcile dataset.ReconcileRules
	Collapse  []CollapseJob

	StorePath string
	StoreSpec zarr.StoreSpec

	// Concurrency bounds parallel archive loads. Loads are independent and
	// read-only; the merge waits for all of them.
	Concurrency int
}

// Progress is a point-in-time snapshot of a running export, served by the
// status endpoint.
type Progress struct {
	Stage           string    `json:"stage"`
	VariablesLoaded int       `json:"variables_loaded"`
	VariablesTotal  int       `json:"variables_total"`
	StartedAt       time.Time `json:"started_at,omitzero"`
}

// Pipeline runs the export sequence.
type Pipeline struct {
	opener   VariableOpener
	store    StoreWriter
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	opts     Options

	ready  atomic.Bool
	loaded atomic.Int64

	mu       sync.Mutex
	progress Progress
}

// New creates a Pipeline. Pass a nil notifier to disable export
// notifications.
func New(opener VariableOpener, store StoreWriter, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Pipeline{
		opener:   opener,
		store:    store,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
	}
}

// CheckReadiness returns nil once the run has loaded at least one variable,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded any variables yet")
	}
	return nil
}

// Progress returns the current run snapshot.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.progress
	snap.VariablesLoaded = int(p.loaded.Load())
	snap.VariablesTotal = len(p.opts.Variables)
	return snap
}

func (p *Pipeline) setStage(stage string) {
	p.mu.Lock()
	p.progress.Stage = stage
	p.mu.Unlock()
}

// Run executes one complete export. It either produces one internally
// consistent store or no store at all, plus a diagnostic naming the failed
// stage and variable.
func (p *Pipeline) Run(ctx context.Context) error {
	if len(p.opts.Variables) == 0 {
		return errors.New("pipeline: no variables configured")
	}

	p.mu.Lock()
	p.progress = Progress{StartedAt: time.Now()}
	p.mu.Unlock()

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	p.logger.Info("export started",
		"variables", len(p.opts.Variables),
		"store", p.opts.StorePath,
		"concurrency", p.opts.Concurrency,
	)

	streams, err := p.loadAll(ctx)
	if err != nil {
		return err
	}

	ds, err := p.stageMerge(streams)
	if err != nil {
		return err
	}

	if err := p.stageCollapse(ds); err != nil {
		return err
	}

	report, err := p.stageExport(ctx, ds)
	if err != nil {
		return err
	}

	p.notify(ctx, ds)

	p.setStage("done")
	p.logger.Info("export complete",
		"store", p.opts.StorePath,
		"arrays", report.Arrays,
		"chunks", report.Chunks,
		"bytes", report.Bytes,
	)
	return nil
}

// loadAll loads, reconciles, and normalizes every configured variable.
// Loads run in parallel up to the configured concurrency; the slice preserves
// merge order. The first failure cancels the remaining loads.
func (p *Pipeline) loadAll(ctx context.Context) ([]*dataset.Variable, error) {
	p.setStage("load")
	start := time.Now()

	streams := make([]*dataset.Variable, len(p.opts.Variables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, job := range p.opts.Variables {
		i, job := i, job
		g.Go(func() error {
			v, err := p.loadOne(gctx, job)
			if err != nil {
				return err
			}
			streams[i] = v
			p.loaded.Add(1)
			p.ready.Store(true)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.metrics.StageFailures.WithLabelValues("load").Inc()
		return nil, err
	}
	p.metrics.StageDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
	return streams, nil
}

// loadOne performs the per-variable sequence: open, reconcile, normalize,
// and fill in display metadata the archive may lack.
func (p *Pipeline) loadOne(ctx context.Context, job VariableJob) (*dataset.Variable, error) {
	v, err := p.opener.OpenVariable(ctx, job.Selector)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load %q: %w", job.Selector, err)
	}
	p.metrics.VariablesLoaded.Inc()

	if err := dataset.Reconcile(v, p.opts.Reconcile); err != nil {
		return nil, fmt.Errorf("pipeline: reconcile %q: %w", job.Selector, err)
	}

	before := v.Unit()
	if err := dataset.Normalize(v, job.Info.Units); err != nil {
		return nil, fmt.Errorf("pipeline: normalize %q: %w", job.Selector, err)
	}
	if v.Unit() != before {
		p.metrics.UnitConversions.Inc()
	}

	// Downstream consumers read by name and coordinate only; every exported
	// variable must carry complete display metadata.
	if v.Attrs[dataset.AttrLongName] == "" {
		v.Attrs[dataset.AttrLongName] = job.Info.LongName
	}

	p.logger.Debug("variable loaded",
		"variable", job.Selector,
		"shape", v.Shape,
		"units", v.Unit(),
	)
	return v, nil
}

func (p *Pipeline) stageMerge(streams []*dataset.Variable) (*dataset.Dataset, error) {
	p.setStage("merge")
	start := time.Now()

	ds, err := dataset.Merge(streams...)
	if err != nil {
		p.metrics.StageFailures.WithLabelValues("merge").Inc()
		return nil, fmt.Errorf("pipeline: merge: %w", err)
	}
	p.metrics.StageDuration.WithLabelValues("merge").Observe(time.Since(start).Seconds())
	return ds, nil
}

func (p *Pipeline) stageCollapse(ds *dataset.Dataset) error {
	if len(p.opts.Collapse) == 0 {
		return nil
	}
	p.setStage("collapse")
	start := time.Now()

	for _, job := range p.opts.Collapse {
		derived, err := dataset.Collapse(ds, job.Variable, dataset.DimLeadStep, job.Agg)
		if err != nil {
			p.metrics.StageFailures.WithLabelValues("collapse").Inc()
			return fmt.Errorf("pipeline: collapse %q: %w", job.Variable, err)
		}
		p.logger.Debug("collapsed variable", "source", job.Variable, "derived", derived.Name, "agg", string(job.Agg))
	}
	p.metrics.StageDuration.WithLabelValues("collapse").Observe(time.Since(start).Seconds())
	return nil
}

func (p *Pipeline) stageExport(ctx context.Context, ds *dataset.Dataset) (zarr.WriteReport, error) {
	p.setStage("export")
	start := time.Now()

	report, err := p.store.Write(ctx, p.opts.StorePath, ds, p.opts.StoreSpec)
	if err != nil {
		p.metrics.StageFailures.WithLabelValues("export").Inc()
		return report, fmt.Errorf("pipeline: export: %w", err)
	}
	p.metrics.StageDuration.WithLabelValues("export").Observe(time.Since(start).Seconds())
	p.metrics.ChunksWritten.Add(float64(report.Chunks))
	p.metrics.StoreBytesWritten.Add(float64(report.Bytes))
	return report, nil
}

// notify announces the export. The store is already durable at this point, so
// a notification failure is logged and counted, not escalated into a failed
// run.
func (p *Pipeline) notify(ctx context.Context, ds *dataset.Dataset) {
	if p.notifier == nil {
		return
	}
	p.setStage("notify")

	notice := ExportNotice{
		StorePath:   p.opts.StorePath,
		CompletedAt: time.Now().UTC(),
	}
	for _, name := range exportedNames(ds, p.opts.StoreSpec) {
		v := ds.Vars[name]
		notice.Variables = append(notice.Variables, VariableSummary{
			Name:     v.Name,
			Shape:    v.Shape,
			Units:    v.Unit(),
			LongName: v.Attrs[dataset.AttrLongName],
		})
	}

	if err := p.notifier.NotifyExport(ctx, notice); err != nil {
		p.metrics.StageFailures.WithLabelValues("notify").Inc()
		p.logger.Warn("export notification failed", "error", err)
	}
}

func exportedNames(ds *dataset.Dataset, spec zarr.StoreSpec) []string {
	if len(spec.Variables) == 0 {
		return ds.VarNames()
	}
	return spec.Variables
}
