package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/workerpool"
)

// ProgressFunc receives the number of finished detectors and the total.
type ProgressFunc func(completed, total int)

// Outcome is the completion record of one detector.
type Outcome struct {
	Detector Detector
	Result   *finding.Result // nil when nothing matched
	Err      error
	Elapsed  time.Duration
}

// Stream runs ds against target on min(concurrency, len(ds)) workers and
// delivers one Outcome per dispatched detector. The channel is closed once
// every dispatched detector has finished. Detectors still queued when ctx
// ends are not dispatched and produce no Outcome.
func (r *Registry) Stream(ctx context.Context, ds []Detector, target string, concurrency int) <-chan Outcome {
	out := make(chan Outcome, len(ds))
	if len(ds) == 0 {
		close(out)
		return out
	}
	workers := min(max(concurrency, 1), len(ds))

	go func() {
		defer close(out)
		pool := workerpool.New(workers, workerpool.WithLogger(r.logger))
		defer pool.Close()
		pool.ParallelFor(ctx, len(ds), func(i int) {
			if ctx.Err() != nil {
				return
			}
			out <- r.runOne(ctx, ds[i], target)
		})
	}()
	return out
}

func (r *Registry) runOne(ctx context.Context, d Detector, target string) (o Outcome) {
	o.Detector = d
	start := time.Now()
	defer func() {
		o.Elapsed = time.Since(start)
		if p := recover(); p != nil {
			o.Result = nil
			o.Err = fmt.Errorf("%w: %v", ErrPanic, p)
			r.logger.Error("detector panicked",
				slog.String("rule", d.Rule().ID),
				slog.Any("panic", p))
		}
	}()

	o.Result, o.Err = d.Detect(ctx, target)
	if o.Err != nil && ctx.Err() == nil {
		r.logger.Warn("detector failed",
			slog.String("rule", d.Rule().ID),
			slog.String("target", target),
			slog.Any("error", o.Err))
	}
	return o
}

// RunConcurrent runs ds and returns the matches in completion order.
// onProgress is called from the calling goroutine once per finished
// detector with a strictly increasing count. Failures and panics are
// logged and do not affect other detectors.
func (r *Registry) RunConcurrent(ctx context.Context, ds []Detector, target string, concurrency int, onProgress ProgressFunc) []*finding.Result {
	var (
		results   []*finding.Result
		completed int
	)
	for o := range r.Stream(ctx, ds, target, concurrency) {
		completed++
		if o.Result != nil {
			results = append(results, o.Result)
		}
		if onProgress != nil {
			onProgress(completed, len(ds))
		}
	}
	return results
}
