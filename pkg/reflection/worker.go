package reflection

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/bufferstore"
	"github.com/papercomputeco/remem/pkg/consolidation"
	"github.com/papercomputeco/remem/pkg/memory"
)

// Worker runs reflection in the background at session end: it stages the
// user's buffer, extracts memories from the snapshot, consolidates each one,
// and clears the staging slot only after everything landed in the bank.
type Worker struct {
	extractor    *Extractor
	consolidator *consolidation.Consolidator
	buffers      *bufferstore.Store
	logger       *zap.Logger

	done  atomic.Int64
	total atomic.Int64
}

// NewWorker creates a reflection worker.
func NewWorker(extractor *Extractor, consolidator *consolidation.Consolidator, buffers *bufferstore.Store, logger *zap.Logger) *Worker {
	return &Worker{
		extractor:    extractor,
		consolidator: consolidator,
		buffers:      buffers,
		logger:       logger,
	}
}

// Progress returns the number of memories consolidated and total extracted
// for the most recent Reflect call.
func (w *Worker) Progress() (done, total int) {
	return int(w.done.Load()), int(w.total.Load())
}

// Reflect processes one user's session end. The buffer is staged first so a
// crash mid-reflection leaves the snapshot recoverable; staging is cleared
// only after every extracted memory was consolidated. Blocks until done or
// the context is cancelled.
func (w *Worker) Reflect(ctx context.Context, userID, sessionID string) {
	staged := w.buffers.Stage(ctx, userID)
	fresh := staged != nil
	if staged == nil {
		// Nothing newly staged, but a previous run may have left a
		// snapshot behind.
		staged = w.buffers.LoadStaging(ctx, userID)
	}
	if staged == nil {
		w.logger.Debug("nothing to reflect", zap.String("user_id", userID))
		return
	}

	entries := w.extractor.Extract(ctx, sessionID, staged)

	w.total.Store(int64(len(entries)))
	w.done.Store(0)

	if len(entries) > 0 {
		// Bounded concurrency to avoid hammering the model provider.
		const maxConcurrency = 2
		sem := make(chan struct{}, maxConcurrency)
		var wg sync.WaitGroup

		for _, entry := range entries {
			if ctx.Err() != nil {
				break
			}

			sem <- struct{}{}
			wg.Add(1)
			go func(e *consolidateJob) {
				defer wg.Done()
				defer func() { <-sem }()

				if ctx.Err() != nil {
					return
				}

				if _, err := w.consolidator.ProcessNewMemory(ctx, e.userID, e.entry); err != nil {
					w.logger.Warn("consolidation failed",
						zap.String("user_id", e.userID),
						zap.String("entry_id", e.entry.ID),
						zap.Error(err),
					)
				}
				w.done.Add(1)
			}(&consolidateJob{userID: userID, entry: entry})
		}

		wg.Wait()
	}

	if ctx.Err() != nil {
		// Keep the staged snapshot so the next session end retries it.
		return
	}

	w.buffers.ClearStaging(ctx, userID)
	// The main buffer is cleared only when this run staged it. A recovered
	// snapshot covers an older session; main may hold messages that were
	// never staged, and those must survive for the next run.
	if fresh {
		w.buffers.Clear(ctx, userID)
	}
}

type consolidateJob struct {
	userID string
	entry  *memory.Entry
}
