package harness

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

const bytesPerMB = 1024.0 * 1024.0

// Result is one measurement.
type Result struct {
	Name    string
	Elapsed time.Duration
	// MemoryDelta is heap bytes after the action minus heap bytes before it. It can be negative
	// when a collection runs during the action.
	MemoryDelta int64
	Pinned      bool
}

func (r Result) String() string {
	return fmt.Sprintf("%s: Time = %s, Max Memory Used = %.2f MB", r.Name, r.Elapsed, float64(r.MemoryDelta)/bytesPerMB)
}

// MemoryProbe takes heap snapshots.
type MemoryProbe interface {
	// Settle reclaims as much garbage as the runtime allows.
	Settle()
	HeapBytes() int64
}

type runtimeProbe struct {
	gc    func()
	yield func()
}

func newRuntimeProbe() runtimeProbe {
	return runtimeProbe{gc: runtime.GC, yield: runtime.Gosched}
}

// Settle collects, yields, then collects twice more. The yield is best-effort: Go has no way to
// wait for the finalizer goroutine, so finalizers queued by the first pass may still be pending.
// The last collection is the one the heap read that follows is taken against.
func (p runtimeProbe) Settle() {
	p.gc()
	p.yield()
	p.gc()
	p.gc()
}

func (runtimeProbe) HeapBytes() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.HeapAlloc)
}

// Harness times actions and measures the heap they leave behind.
type Harness struct {
	out    io.Writer
	probe  MemoryProbe
	pinned bool
	now    func() time.Time

	metrics *Metrics
}

type Option func(*Harness)

// WithPinnedThread locks the measured goroutine to its OS thread for the duration of the action,
// so every resumption after a blocking call happens on the same thread. The export runs on a single
// goroutine, so this must not change results.
func WithPinnedThread(pinned bool) Option {
	return func(h *Harness) {
		h.pinned = pinned
	}
}

func WithProbe(p MemoryProbe) Option {
	return func(h *Harness) {
		h.probe = p
	}
}

// WithMetrics records gauges on m instead of a harness-owned set, letting several harnesses
// report into one registry.
func WithMetrics(m *Metrics) Option {
	return func(h *Harness) {
		h.metrics = m
	}
}

// New returns a harness that reports to out, stdout when out is nil.
func New(out io.Writer, opts ...Option) *Harness {
	if out == nil {
		out = os.Stdout
	}
	h := &Harness{
		out:   out,
		probe: newRuntimeProbe(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics()
	}
	return h
}

// Measure runs action once and reports its elapsed time and memory delta.
// The heap is settled before the action but not after it, so the delta includes buffers the action
// left unreleased. An error from action is returned as is and nothing is reported.
func (h *Harness) Measure(ctx context.Context, name string, action func(context.Context) error) (Result, error) {
	h.probe.Settle()
	before := h.probe.HeapBytes()

	start := h.now()
	if err := h.run(ctx, action); err != nil {
		logrus.WithError(err).WithField("strategy", name).Debugln("measurement aborted")
		return Result{}, err
	}
	elapsed := h.now().Sub(start)

	after := h.probe.HeapBytes()
	res := Result{
		Name:        name,
		Elapsed:     elapsed,
		MemoryDelta: after - before,
		Pinned:      h.pinned,
	}
	if _, err := fmt.Fprintln(h.out, res.String()); err != nil {
		return res, fmt.Errorf("could not write report: %w", err)
	}
	h.metrics.observe(res)
	logrus.WithFields(logrus.Fields{
		"strategy":    name,
		"elapsed":     elapsed,
		"memoryDelta": res.MemoryDelta,
		"pinned":      h.pinned,
	}).Debugln("measured")
	return res, nil
}

func (h *Harness) run(ctx context.Context, action func(context.Context) error) error {
	if !h.pinned {
		return action(ctx)
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return action(ctx)
}
