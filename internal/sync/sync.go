package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThalesMMS/replicant/internal/config"
	"github.com/ThalesMMS/replicant/internal/git"
	"github.com/ThalesMMS/replicant/internal/github"
)

// Source yields the complete, deduplicated descriptor listing for a mode.
// A listing error is fatal to the run; the engine never plans against a
// partial view.
type Source interface {
	ListRepositories(ctx context.Context, mode config.Mode, user string) ([]github.Repository, error)
}

// Engine orchestrates one sync run: list, plan, execute, summarize. It holds
// no state between runs; the mirror tree on disk is the only durable state.
type Engine struct {
	opts   config.Options
	source Source
	git    git.Client
	sink   Sink
	logger *slog.Logger
}

// NewEngine creates a new sync engine
func NewEngine(opts config.Options, source Source, gitClient git.Client, sink Sink, logger *slog.Logger) *Engine {
	return &Engine{
		opts:   opts,
		source: source,
		git:    gitClient,
		sink:   sink,
		logger: logger,
	}
}

// Run executes the complete sync process. The returned summary is always
// meaningful; the error is non-nil only for fatal conditions (listing
// failure, unusable mirror root), never for per-repository failures.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	e.logger.Info("starting sync",
		"user", e.opts.User,
		"mode", string(e.opts.Mode),
		"force", e.opts.Force,
		"exact_mirror", e.opts.ExactMirror,
		"dry_run", e.opts.DryRun)

	repos, err := e.source.ListRepositories(ctx, e.opts.Mode, e.opts.User)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list repositories: %w", err)
	}
	e.logger.Info("listing complete", "repositories", len(repos))

	root := e.opts.RootDir()
	if err := os.MkdirAll(root, 0755); err != nil {
		return Summary{}, fmt.Errorf("failed to create mirror root: %w", err)
	}

	tasks, err := Plan(ctx, repos, e.git, PlanOptions{
		User:         e.opts.User,
		Root:         root,
		IncludeForks: e.opts.IncludeForks,
		Force:        e.opts.Force,
		ExactMirror:  e.opts.ExactMirror,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to build sync plan: %w", err)
	}

	counts := planCounts(tasks)
	e.logger.Info("sync plan",
		"clone", counts[ActionClone],
		"pull", counts[ActionPull],
		"force_reset", counts[ActionForceReset],
		"reclone", counts[ActionReclone],
		"skip", counts[ActionSkip],
		"delete", counts[ActionDelete])

	executor := NewExecutor(e.git, e.opts.Concurrency, e.opts.GitTimeout, e.opts.DryRun, e.logger)
	summary := executor.Run(ctx, tasks, e.sink)

	e.logger.Info("sync completed",
		"cloned", summary.Cloned,
		"pulled", summary.Pulled,
		"reset", summary.Reset,
		"recloned", summary.Recloned,
		"deleted", summary.Deleted,
		"skipped", summary.Skipped,
		"failed", summary.Failed)

	return summary, nil
}

func planCounts(tasks []Task) map[Action]int {
	counts := make(map[Action]int)
	for _, t := range tasks {
		counts[t.Action]++
	}
	return counts
}
