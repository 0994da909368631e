package runner

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/samjbobb/exportbench/export/harness"
	"github.com/samjbobb/exportbench/export/seed"
	"github.com/samjbobb/exportbench/export/sink"
	"github.com/samjbobb/exportbench/export/source"
	"github.com/samjbobb/exportbench/export/strategy"
	"github.com/sirupsen/logrus"
)

const separator = "==========="

// Output files, one per strategy.
const (
	FileStreaming        = "DataAsyncEnumerable.csv"
	FileList             = "DataAsList.csv"
	FileListAsync        = "DataAsListAsync.csv"
	FileBatchedList      = "DataNormalDapper.csv"
	FileBatchedListAsync = "DataNormalDapperAsync.csv"
	FileBatchedListRaw   = "DataNormalDapperList.csv"
)

// FirstPass is measured without thread pinning.
var FirstPass = []strategy.Strategy{
	strategy.StreamingCursor{Label: "StreamingCursor", File: FileStreaming},
	strategy.EagerList{Label: "EagerList", File: FileList},
	strategy.EagerList{Label: "EagerListAsync", File: FileListAsync, Async: true},
	strategy.BatchedList{Label: "BatchedList", File: FileBatchedList, Query: strategy.SyncQuery},
	strategy.BatchedList{Label: "BatchedListAsync", File: FileBatchedListAsync, Query: strategy.AsyncQuery},
	strategy.BatchedList{Label: "BatchedListRaw", File: FileBatchedListRaw, Query: strategy.ListQuery},
}

// SecondPass repeats the suspending strategies with the goroutine pinned to its thread.
var SecondPass = []strategy.Strategy{
	strategy.StreamingCursor{Label: "StreamingCursorPinned", File: FileStreaming},
	strategy.EagerList{Label: "EagerListAsyncPinned", File: FileListAsync, Async: true},
	strategy.BatchedList{Label: "BatchedListAsyncPinned", File: FileBatchedListAsync, Query: strategy.AsyncQuery},
}

// Source is a data source that can also be seeded.
type Source interface {
	source.DataSource
	seed.Store
}

type Runner struct {
	src     Source
	open    sink.Opener
	out     io.Writer
	seed    seed.Options
	metrics *harness.Metrics
	probe   harness.MemoryProbe
}

type Option func(*Runner)

func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

func WithSeed(opts seed.Options) Option {
	return func(r *Runner) {
		r.seed = opts
	}
}

func WithProbe(p harness.MemoryProbe) Option {
	return func(r *Runner) {
		r.probe = p
	}
}

func NewRunner(src Source, open sink.Opener, opts ...Option) *Runner {
	r := &Runner{
		src:     src,
		open:    open,
		out:     os.Stdout,
		metrics: harness.NewMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metrics returns the gauges of every measurement taken so far.
func (r *Runner) Metrics() *harness.Metrics {
	return r.metrics
}

// Run seeds the source when empty, then measures both passes in order.
// The first failing strategy stops the run.
func (r *Runner) Run(ctx context.Context) ([]harness.Result, error) {
	if err := r.EnsureSeeded(ctx); err != nil {
		return nil, err
	}

	var results []harness.Result
	res, err := r.runPass(ctx, r.harness(false), FirstPass)
	results = append(results, res...)
	if err != nil {
		return results, err
	}

	for i := 0; i < 3; i++ {
		if _, err := fmt.Fprintln(r.out, separator); err != nil {
			return results, err
		}
	}

	res, err = r.runPass(ctx, r.harness(true), SecondPass)
	results = append(results, res...)
	return results, err
}

// RunOne measures the strategy with the given name from either pass.
func (r *Runner) RunOne(ctx context.Context, name string) (harness.Result, error) {
	for _, s := range FirstPass {
		if s.Name() == name {
			return r.measure(ctx, r.harness(false), s)
		}
	}
	for _, s := range SecondPass {
		if s.Name() == name {
			return r.measure(ctx, r.harness(true), s)
		}
	}
	return harness.Result{}, fmt.Errorf("unknown strategy %q", name)
}

func (r *Runner) EnsureSeeded(ctx context.Context) error {
	_, err := seed.EnsureSeeded(ctx, r.src, r.seed)
	return err
}

func (r *Runner) harness(pinned bool) *harness.Harness {
	opts := []harness.Option{harness.WithPinnedThread(pinned), harness.WithMetrics(r.metrics)}
	if r.probe != nil {
		opts = append(opts, harness.WithProbe(r.probe))
	}
	return harness.New(r.out, opts...)
}

func (r *Runner) runPass(ctx context.Context, h *harness.Harness, pass []strategy.Strategy) ([]harness.Result, error) {
	results := make([]harness.Result, 0, len(pass))
	for _, s := range pass {
		res, err := r.measure(ctx, h, s)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) measure(ctx context.Context, h *harness.Harness, s strategy.Strategy) (harness.Result, error) {
	logrus.WithField("strategy", s.Name()).Infoln("running")
	res, err := h.Measure(ctx, s.Name(), func(ctx context.Context) error {
		return s.Execute(ctx, r.src, r.open)
	})
	if err != nil {
		return res, fmt.Errorf("%s: %w", s.Name(), err)
	}
	return res, nil
}

// Names lists every strategy the runner knows, first pass first.
func Names() []string {
	out := make([]string, 0, len(FirstPass)+len(SecondPass))
	for _, s := range FirstPass {
		out = append(out, s.Name())
	}
	for _, s := range SecondPass {
		out = append(out, s.Name())
	}
	return out
}
