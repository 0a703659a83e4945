package batch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultConcurrency bounds in-flight address lookups per job.
const DefaultConcurrency = 100

// Task is one unit of per-row work handed to the pool.
type Task struct {
	Ordinal int
	Row     Row
}

// TaskFunc executes one task and returns its outcome. Implementations
// must convert every failure into a StatusError outcome; the pool adds
// a panic guard so a misbehaving task can never take down its workers.
type TaskFunc func(ctx context.Context, task Task) RowOutcome

// Pool executes per-row tasks with bounded concurrency. It accepts
// exactly one batch of tasks per Run call and guarantees one completion
// per submitted task, surfaced in finish order.
type Pool struct {
	concurrency int
	logger      *zap.Logger
}

// NewPool builds a pool running at most concurrency tasks at once,
// independent of batch size.
func NewPool(concurrency int, logger *zap.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{concurrency: concurrency, logger: logger}
}

// Run submits every task and returns a channel of completions in
// arrival (finish) order. The channel is buffered to the batch size so
// workers never block on a slow or absent consumer, and it is closed
// once all tasks have completed. Context cancellation stops new tasks
// from being picked up; tasks already running finish on their own.
func (p *Pool) Run(ctx context.Context, tasks []Task, run TaskFunc) <-chan RowOutcome {
	completions := make(chan RowOutcome, len(tasks))
	taskCh := make(chan Task)

	workers := p.concurrency
	if len(tasks) < workers {
		workers = len(tasks)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				completions <- p.runGuarded(ctx, task, run)
			}
		}()
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case <-ctx.Done():
				// Unstarted tasks still owe a completion; report them
				// as failed rather than dropping them silently.
				completions <- RowOutcome{
					Ordinal: task.Ordinal,
					Status:  StatusError,
					Row:     failedRow(task.Row, ctx.Err().Error()),
					Err:     ctx.Err().Error(),
				}
			case taskCh <- task:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(completions)
	}()

	return completions
}

func (p *Pool) runGuarded(ctx context.Context, task Task, run TaskFunc) (outcome RowOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("row task panicked",
				zap.Int("ordinal", task.Ordinal),
				zap.Any("panic", rec),
			)
			msg := fmt.Sprintf("internal error: %v", rec)
			outcome = RowOutcome{
				Ordinal: task.Ordinal,
				Status:  StatusError,
				Row:     failedRow(task.Row, msg),
				Err:     msg,
			}
		}
	}()
	return run(ctx, task)
}

func failedRow(row Row, msg string) Row {
	cp := row.Clone()
	cp[EmailColumn] = ErrorMarker(msg)
	return cp
}
