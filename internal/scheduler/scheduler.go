// Package scheduler fans feedback records out to a bounded worker pool and
// reports progress as items complete. No record is ever dropped: a worker
// failure surfaces as a processing-error callback, never a silent skip.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/triagehq/triage-cli/internal/model"
)

// defaultWorkers caps parallelism to stay inside oracle rate limits.
const defaultWorkers = 3

// Hooks receive per-item events from the pool. All hooks are invoked under
// the scheduler's lock, serialized with the completion counter, so
// implementations need no locking of their own.
type Hooks struct {
	// OnOutcome is called once per record with its guaranteed outcome.
	OnOutcome func(rec model.FeedbackRecord, out model.Outcome)
	// OnWorkerFailure is called when a worker fails outside the pipeline's
	// own fallback (currently: a panic in the processor).
	OnWorkerFailure func(rec model.FeedbackRecord, err error)
	// OnProgress receives mapped progress (10-90) and a human message.
	// Errors and panics in the callback are contained: progress reporting
	// must never break processing.
	OnProgress func(progress int, message string)
	// OnFlush is called every FlushEvery completions and once at the end.
	OnFlush func(completed, total int)
}

// Options configures a run.
type Options struct {
	// Workers is the pool size cap; effective parallelism is
	// min(Workers, len(records)). Zero means the default of 3.
	Workers int
	// FlushEvery is the completion interval between OnFlush calls.
	// Zero means 5.
	FlushEvery int
}

// Processor turns one feedback record into an outcome.
type Processor func(ctx context.Context, rec model.FeedbackRecord) model.Outcome

// Run processes all records through proc with bounded parallelism. It
// returns only when every record has been accounted for. The returned error
// is non-nil only when the context was cancelled mid-run.
func Run(ctx context.Context, records []model.FeedbackRecord, proc Processor, opts Options, hooks Hooks) error {
	total := len(records)
	if total == 0 {
		return nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > total {
		workers = total
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 5
	}

	zap.L().Info("starting worker pool",
		zap.Int("items", total),
		zap.Int("workers", workers),
	)
	reportProgress(hooks, 10, fmt.Sprintf("Starting parallel processing of %d items...", total))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var tracker completionTracker

	for _, rec := range records {
		g.Go(func() error {
			out, workerErr := safeProcess(gctx, proc, rec)

			tracker.complete(total, flushEvery, hooks, rec, func() {
				if workerErr != nil {
					if hooks.OnWorkerFailure != nil {
						hooks.OnWorkerFailure(rec, workerErr)
					}
					return
				}
				if hooks.OnOutcome != nil {
					hooks.OnOutcome(rec, out)
				}
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// completionTracker serializes outcome delivery, the completion count, and
// the progress/flush callbacks behind one mutex so observers see a
// consistent ordering.
type completionTracker struct {
	mu        sync.Mutex
	completed int
}

// complete runs deliver, advances the counter, and fires progress and flush
// hooks, all atomically with respect to other completions.
func (t *completionTracker) complete(total, flushEvery int, hooks Hooks, rec model.FeedbackRecord, deliver func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	deliver()
	t.completed++

	progress := 10 + (80*t.completed)/total
	reportProgress(hooks, progress, fmt.Sprintf("Processed %d/%d items", t.completed, total))

	if hooks.OnFlush != nil && (t.completed%flushEvery == 0 || t.completed == total) {
		hooks.OnFlush(t.completed, total)
	}
}

// safeProcess contains processor panics so one poisoned record cannot take
// down the pool.
func safeProcess(ctx context.Context, proc Processor, rec model.FeedbackRecord) (out model.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("scheduler: worker panic processing %s: %v", rec.SourceID, r)
			zap.L().Error("worker panic",
				zap.String("source_id", rec.SourceID),
				zap.Any("panic", r),
			)
		}
	}()
	return proc(ctx, rec), nil
}

func reportProgress(hooks Hooks, progress int, message string) {
	if hooks.OnProgress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("progress callback failed", zap.Any("panic", r))
		}
	}()
	hooks.OnProgress(progress, message)
}
