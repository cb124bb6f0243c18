package sync

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/ThalesMMS/replicant/internal/git"
)

// Executor runs planned tasks against the git client with a fixed concurrency
// ceiling. A slot is acquired before each task starts and released on every
// exit path, so a burst of failures can never shrink the pool.
type Executor struct {
	git         git.Client
	concurrency int
	timeout     time.Duration
	dryRun      bool
	logger      *slog.Logger
}

// NewExecutor creates an executor. A non-positive concurrency falls back to 1.
func NewExecutor(gitClient git.Client, concurrency int, timeout time.Duration, dryRun bool, logger *slog.Logger) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{
		git:         gitClient,
		concurrency: concurrency,
		timeout:     timeout,
		dryRun:      dryRun,
		logger:      logger,
	}
}

// Run executes every task, at most concurrency at a time, and reports each
// outcome to the sink as it lands. Cancellation stops new tasks from starting;
// tasks never started are reported as skipped, so nothing is silently dropped.
func (e *Executor) Run(ctx context.Context, tasks []Task, sink Sink) Summary {
	sem := make(chan struct{}, e.concurrency)
	var wg stdsync.WaitGroup
	var mu stdsync.Mutex
	var summary Summary

	record := func(out Outcome) {
		mu.Lock()
		defer mu.Unlock()
		summary.add(out)
		if sink != nil {
			sink.Report(out)
		}
	}

	for _, task := range tasks {
		// Cancellation is checked before every acquire so a cancelled run
		// reports the remaining tasks instead of dropping them.
		if ctx.Err() != nil {
			record(Outcome{Action: task.Action, Path: task.Path, Status: StatusSkipped, Reason: "cancelled"})
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			record(Outcome{Action: task.Action, Path: task.Path, Status: StatusSkipped, Reason: "cancelled"})
			continue
		}

		wg.Add(1)
		go func(t Task) {
			defer func() {
				<-sem
				wg.Done()
			}()
			record(e.execute(ctx, t))
		}(task)
	}

	wg.Wait()

	if sink != nil {
		sink.Close(summary)
	}
	return summary
}

// execute runs one task to an outcome. Every action kind is handled here;
// the switch is exhaustive over the Action enum.
func (e *Executor) execute(ctx context.Context, t Task) Outcome {
	if t.Action == ActionSkip {
		return Outcome{Action: ActionSkip, Path: t.Path, Status: StatusSkipped, Reason: t.Reason}
	}
	if e.dryRun {
		return Outcome{Action: t.Action, Path: t.Path, Status: StatusSkipped, Reason: "dry-run"}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	switch t.Action {
	case ActionClone:
		return e.cloneOutcome(ctx, t, ActionClone)
	case ActionPull:
		return e.pull(ctx, t)
	case ActionForceReset:
		return e.forceReset(ctx, t)
	case ActionReclone:
		return e.reclone(ctx, t)
	case ActionDelete:
		if err := e.git.Remove(t.Path); err != nil {
			return Outcome{Action: ActionDelete, Path: t.Path, Status: StatusFailed, Err: err}
		}
		return Outcome{Action: ActionDelete, Path: t.Path, Status: StatusSuccess}
	case ActionSkip:
		// handled above
	}
	return Outcome{Action: t.Action, Path: t.Path, Status: StatusFailed, Err: errors.New("unknown action")}
}

// cloneOutcome clones and classifies the result, reporting it under the given
// action so escalated pulls show up as reclones.
func (e *Executor) cloneOutcome(ctx context.Context, t Task, as Action) Outcome {
	err := e.git.Clone(ctx, t.Repo.CloneURL, t.Path)
	switch {
	case err == nil:
		return Outcome{Action: as, Path: t.Path, Status: StatusSuccess}
	case errors.Is(err, git.ErrRestricted):
		return Outcome{Action: as, Path: t.Path, Status: StatusSkipped, Reason: "restricted"}
	default:
		return Outcome{Action: as, Path: t.Path, Status: StatusFailed, Err: err}
	}
}

func (e *Executor) pull(ctx context.Context, t Task) Outcome {
	err := e.git.Pull(ctx, t.Path)
	if err == nil {
		return Outcome{Action: ActionPull, Path: t.Path, Status: StatusSuccess}
	}

	// The remote renamed its default branch: the working copy tracks a ref
	// that no longer exists, so a fresh clone is the only way forward. This
	// escalation happens at most once; a failing clone is a plain failure.
	if errors.Is(err, git.ErrBranchGone) {
		e.logger.Info("default branch changed, recloning", "path", t.Path, "repo", t.Repo.FullName)
		if rmErr := e.git.Remove(t.Path); rmErr != nil {
			return Outcome{Action: ActionReclone, Path: t.Path, Status: StatusFailed, Err: rmErr}
		}
		return e.cloneOutcome(ctx, t, ActionReclone)
	}

	return Outcome{Action: ActionPull, Path: t.Path, Status: StatusFailed, Err: err}
}

func (e *Executor) forceReset(ctx context.Context, t Task) Outcome {
	if err := e.git.ForceReset(ctx, t.Path, t.Repo.DefaultBranch); err != nil {
		return Outcome{Action: ActionForceReset, Path: t.Path, Status: StatusFailed, Err: err}
	}
	return Outcome{Action: ActionForceReset, Path: t.Path, Status: StatusSuccess}
}

// reclone removes the existing path before cloning fresh. A failed removal is
// reported without attempting the clone.
func (e *Executor) reclone(ctx context.Context, t Task) Outcome {
	if err := e.git.Remove(t.Path); err != nil {
		return Outcome{Action: ActionReclone, Path: t.Path, Status: StatusFailed, Err: err}
	}
	return e.cloneOutcome(ctx, t, ActionReclone)
}
