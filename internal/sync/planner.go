package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ThalesMMS/replicant/internal/git"
	"github.com/ThalesMMS/replicant/internal/github"
)

// PlanOptions control planning decisions for one run
type PlanOptions struct {
	User         string
	Root         string
	IncludeForks bool
	Force        bool
	ExactMirror  bool
}

// Inspector is the slice of the git client the planner needs. Inspection is
// read-only; planning never mutates the tree.
type Inspector interface {
	Inspect(ctx context.Context, path string) (git.WorkingCopy, error)
}

// Plan reconciles the remote descriptor listing against local disk state and
// returns one task per expected path, in descriptor arrival order. When
// exact-mirror is on, delete tasks for unmatched local repositories are
// appended last. Descriptors are deduplicated by full name first, which is
// what guarantees no two tasks target the same path.
func Plan(ctx context.Context, repos []github.Repository, inspector Inspector, opts PlanOptions) ([]Task, error) {
	var tasks []Task
	seen := make(map[string]bool, len(repos))
	expected := make(map[string]bool, len(repos))

	for i := range repos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		repo := &repos[i]
		if seen[repo.FullName] {
			continue
		}
		seen[repo.FullName] = true

		// Excluded forks are not tracked as expected paths at all, so in
		// exact-mirror mode a previously mirrored fork gets deleted.
		if repo.Fork && !opts.IncludeForks {
			continue
		}

		path := ExpectedPath(opts.Root, opts.User, *repo)
		expected[filepath.Clean(path)] = true

		wc, err := inspector.Inspect(ctx, path)
		if err != nil {
			tasks = append(tasks, Task{
				Action: ActionSkip,
				Path:   path,
				Repo:   repo,
				Reason: fmt.Sprintf("inspect failed: %v", err),
			})
			continue
		}

		tasks = append(tasks, decide(repo, path, wc, opts))
	}

	if opts.ExactMirror {
		locals, err := scanLocalRepos(opts.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mirror root: %w", err)
		}
		for _, local := range locals {
			if !expected[filepath.Clean(local)] {
				tasks = append(tasks, Task{Action: ActionDelete, Path: local})
			}
		}
	}

	return tasks, nil
}

// decide applies the per-descriptor decision rule in priority order.
func decide(repo *github.Repository, path string, wc git.WorkingCopy, opts PlanOptions) Task {
	switch {
	case !wc.Exists:
		return Task{Action: ActionClone, Path: path, Repo: repo}
	case !wc.Valid:
		return Task{Action: ActionReclone, Path: path, Repo: repo, Reason: "invalid working copy"}
	case !sameRemote(wc.RemoteURL, repo.CloneURL):
		return Task{Action: ActionReclone, Path: path, Repo: repo, Reason: "remote URL mismatch"}
	case !wc.Dirty:
		return Task{Action: ActionPull, Path: path, Repo: repo}
	case opts.Force:
		return Task{Action: ActionForceReset, Path: path, Repo: repo}
	default:
		return Task{Action: ActionSkip, Path: path, Repo: repo, Reason: "local changes present, use --force"}
	}
}

// ExpectedPath returns the local path a descriptor must live at: directly
// under root when the owner is the target user, nested under an owner
// directory otherwise so same-named repositories never collide.
func ExpectedPath(root, user string, repo github.Repository) string {
	if strings.EqualFold(repo.Owner.Login, user) {
		return filepath.Join(root, repo.Name)
	}
	return filepath.Join(root, repo.Owner.Login, repo.Name)
}

// sameRemote compares clone URLs, tolerating a trailing .git or slash.
func sameRemote(a, b string) bool {
	return normalizeRemote(a) == normalizeRemote(b)
}

func normalizeRemote(url string) string {
	url = strings.TrimSuffix(strings.TrimSpace(url), "/")
	url = strings.TrimSuffix(url, ".git")
	return url
}
