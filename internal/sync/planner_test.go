package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThalesMMS/replicant/internal/git"
	"github.com/ThalesMMS/replicant/internal/github"
)

func TestExpectedPath(t *testing.T) {
	tests := []struct {
		name string
		user string
		repo github.Repository
		want string
	}{
		{
			name: "own repo stays flat",
			user: "alice",
			repo: repo("alice", "dotfiles", false),
			want: filepath.Join("root", "dotfiles"),
		},
		{
			name: "owner match is case insensitive",
			user: "alice",
			repo: repo("Alice", "dotfiles", false),
			want: filepath.Join("root", "dotfiles"),
		},
		{
			name: "foreign owner nests",
			user: "alice",
			repo: repo("bob", "dotfiles", false),
			want: filepath.Join("root", "bob", "dotfiles"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpectedPath("root", tt.user, tt.repo))
		})
	}
}

func TestPlan_Decisions(t *testing.T) {
	root := t.TempDir()
	path := func(name string) string { return filepath.Join(root, name) }

	tests := []struct {
		name       string
		copy       git.WorkingCopy
		force      bool
		wantAction Action
		wantReason string
	}{
		{
			name:       "missing clones",
			copy:       git.WorkingCopy{},
			wantAction: ActionClone,
		},
		{
			name:       "invalid reclones",
			copy:       git.WorkingCopy{Exists: true},
			wantAction: ActionReclone,
			wantReason: "invalid working copy",
		},
		{
			name:       "remote mismatch reclones",
			copy:       git.WorkingCopy{Exists: true, Valid: true, RemoteURL: "https://example.com/elsewhere.git"},
			wantAction: ActionReclone,
			wantReason: "remote URL mismatch",
		},
		{
			name:       "clean pulls",
			copy:       git.WorkingCopy{Exists: true, Valid: true, RemoteURL: "https://example.com/u/r.git"},
			wantAction: ActionPull,
		},
		{
			name:       "dirty without force skips",
			copy:       git.WorkingCopy{Exists: true, Valid: true, RemoteURL: "https://example.com/u/r.git", Dirty: true},
			wantAction: ActionSkip,
			wantReason: "local changes present, use --force",
		},
		{
			name:       "dirty with force resets",
			copy:       git.WorkingCopy{Exists: true, Valid: true, RemoteURL: "https://example.com/u/r.git", Dirty: true},
			force:      true,
			wantAction: ActionForceReset,
		},
		{
			name:       "trailing .git difference is not a mismatch",
			copy:       git.WorkingCopy{Exists: true, Valid: true, RemoteURL: "https://example.com/u/r"},
			wantAction: ActionPull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeGit()
			fake.copies[path("r")] = tt.copy

			tasks, err := Plan(context.Background(), []github.Repository{repo("u", "r", false)}, fake, PlanOptions{
				User:  "u",
				Root:  root,
				Force: tt.force,
			})
			require.NoError(t, err)
			require.Len(t, tasks, 1)
			assert.Equal(t, tt.wantAction, tasks[0].Action)
			assert.Equal(t, tt.wantReason, tasks[0].Reason)
		})
	}
}

func TestPlan_FiltersForksAndDuplicates(t *testing.T) {
	repos := []github.Repository{
		repo("u", "keep", false),
		repo("u", "fork", true),
		repo("u", "keep", false),
	}

	tasks, err := Plan(context.Background(), repos, newFakeGit(), PlanOptions{User: "u", Root: "root"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, ActionClone, tasks[0].Action)
	assert.Equal(t, filepath.Join("root", "keep"), tasks[0].Path)
}

func TestPlan_IncludeForks(t *testing.T) {
	repos := []github.Repository{repo("u", "fork", true)}

	tasks, err := Plan(context.Background(), repos, newFakeGit(), PlanOptions{User: "u", Root: "root", IncludeForks: true})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestPlan_InspectFailureSkips(t *testing.T) {
	fake := &erroringInspector{err: errors.New("boom")}

	tasks, err := Plan(context.Background(), []github.Repository{repo("u", "r", false)}, fake, PlanOptions{User: "u", Root: "root"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, ActionSkip, tasks[0].Action)
	assert.Contains(t, tasks[0].Reason, "inspect failed")
}

type erroringInspector struct{ err error }

func (e *erroringInspector) Inspect(context.Context, string) (git.WorkingCopy, error) {
	return git.WorkingCopy{}, e.err
}

func TestPlan_ExactMirrorDeletesStrays(t *testing.T) {
	root := t.TempDir()
	mkRepoDir(t, filepath.Join(root, "expected"))
	mkRepoDir(t, filepath.Join(root, "stray"))
	mkRepoDir(t, filepath.Join(root, "bob", "nested-stray"))

	tasks, err := Plan(context.Background(), []github.Repository{repo("u", "expected", false)}, newFakeGit(), PlanOptions{
		User:        "u",
		Root:        root,
		ExactMirror: true,
	})
	require.NoError(t, err)

	var deletes []string
	for _, task := range tasks {
		if task.Action == ActionDelete {
			deletes = append(deletes, task.Path)
		}
	}
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "stray"),
		filepath.Join(root, "bob", "nested-stray"),
	}, deletes)
}

func TestPlan_ExactMirrorDeletesExcludedFork(t *testing.T) {
	root := t.TempDir()
	mkRepoDir(t, filepath.Join(root, "fork"))

	tasks, err := Plan(context.Background(), []github.Repository{repo("u", "fork", true)}, newFakeGit(), PlanOptions{
		User:        "u",
		Root:        root,
		ExactMirror: true,
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, ActionDelete, tasks[0].Action)
	assert.Equal(t, filepath.Join(root, "fork"), tasks[0].Path)
}

func TestPlan_NoDeletesWithoutExactMirror(t *testing.T) {
	root := t.TempDir()
	mkRepoDir(t, filepath.Join(root, "stray"))

	tasks, err := Plan(context.Background(), nil, newFakeGit(), PlanOptions{User: "u", Root: root})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestPlan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Plan(ctx, []github.Repository{repo("u", "r", false)}, newFakeGit(), PlanOptions{User: "u", Root: "root"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestScanLocalRepos(t *testing.T) {
	root := t.TempDir()
	mkRepoDir(t, filepath.Join(root, "a"))
	mkRepoDir(t, filepath.Join(root, "owner", "b"))
	// A repo nested inside another repo must not be reported.
	mkRepoDir(t, filepath.Join(root, "a", "vendor", "inner"))
	// Plain directories without git metadata are ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o755))

	repos, err := scanLocalRepos(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a"),
		filepath.Join(root, "owner", "b"),
	}, repos)
}

func TestScanLocalRepos_MissingRoot(t *testing.T) {
	repos, err := scanLocalRepos(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, repos)
}

func mkRepoDir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(path, ".git"), 0o755))
}
