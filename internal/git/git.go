package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrRestricted marks a clone or pull refused because the remote content is
// access-blocked (takedown, legal hold). Callers treat it as a skip, not a
// failure.
var ErrRestricted = errors.New("repository access restricted")

// ErrBranchGone marks a pull that failed because the remote's default branch
// reference no longer exists, typically after a default-branch rename.
var ErrBranchGone = errors.New("remote default branch no longer exists")

// WorkingCopy describes the observed state of a local clone. It is recomputed
// fresh on every run; disk layout is the only durable state.
type WorkingCopy struct {
	Path      string
	Exists    bool
	Valid     bool // path holds usable git metadata
	RemoteURL string
	Branch    string
	Dirty     bool // uncommitted changes or commits ahead of upstream
}

// Client provides the git operations the sync engine needs
type Client interface {
	// Inspect reports the state of the working copy at path without mutating it
	Inspect(ctx context.Context, path string) (WorkingCopy, error)
	// Clone clones url into path, creating parent directories as needed
	Clone(ctx context.Context, url, path string) error
	// Pull fast-forwards the existing working copy at path
	Pull(ctx context.Context, path string) error
	// ForceReset discards local changes and hard-resets to the remote branch tip
	ForceReset(ctx context.Context, path, branch string) error
	// Remove deletes the path recursively
	Remove(path string) error
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	sshKeyFile string
	token      string
}

// NewShellClient creates a new git client that uses the git command
func NewShellClient(sshKeyFile, token string) *ShellClient {
	return &ShellClient{
		sshKeyFile: sshKeyFile,
		token:      token,
	}
}

// Inspect reports whether a working copy exists at path and, if so, its
// configured remote, checked-out branch, and whether it carries local changes.
// A path that exists without usable git metadata is reported Exists=true,
// Valid=false, which steers the planner toward a reclone.
func (c *ShellClient) Inspect(ctx context.Context, path string) (WorkingCopy, error) {
	wc := WorkingCopy{Path: path}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return wc, nil
		}
		return wc, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	wc.Exists = true

	info, err := os.Stat(filepath.Join(path, ".git"))
	if err != nil || !info.IsDir() {
		return wc, nil
	}

	remote, err := c.runOutput(ctx, path, "remote", "get-url", "origin")
	if err != nil {
		// Metadata present but unreadable; treat the copy as invalid rather
		// than guessing.
		return wc, nil
	}
	wc.Valid = true
	wc.RemoteURL = strings.TrimSpace(remote)

	branch, err := c.runOutput(ctx, path, "branch", "--show-current")
	if err == nil {
		wc.Branch = strings.TrimSpace(branch)
	}

	status, err := c.runOutput(ctx, path, "status", "--porcelain")
	if err != nil {
		wc.Valid = false
		return wc, nil
	}
	wc.Dirty = strings.TrimSpace(status) != ""

	if !wc.Dirty {
		// Local commits not present upstream also block a plain pull.
		ahead, err := c.runOutput(ctx, path, "rev-list", "--count", "@{u}..HEAD")
		if err == nil {
			if n, convErr := strconv.Atoi(strings.TrimSpace(ahead)); convErr == nil && n > 0 {
				wc.Dirty = true
			}
		}
	}

	return wc, nil
}

// Clone clones url into path. On failure the partially created directory is
// removed so the next run starts clean.
func (c *ShellClient) Clone(ctx context.Context, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", url, path)
	c.configureAuth(cmd, url)

	if err := c.runCommand(cmd); err != nil {
		_ = os.RemoveAll(path)
		if isRestricted(err.Error()) {
			return fmt.Errorf("%w: %s", ErrRestricted, shortReason(err))
		}
		return fmt.Errorf("git clone failed: %w", err)
	}
	return nil
}

// Pull fast-forwards the working copy at path from its remote.
func (c *ShellClient) Pull(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", path, "pull", "--ff-only")
	c.configureAuth(cmd, "")

	if err := c.runCommand(cmd); err != nil {
		if isBranchGone(err.Error()) {
			return fmt.Errorf("%w: %s", ErrBranchGone, shortReason(err))
		}
		return fmt.Errorf("git pull failed: %w", err)
	}
	return nil
}

// ForceReset fetches and hard-resets the working copy to the remote branch
// tip, discarding local commits and modifications.
func (c *ShellClient) ForceReset(ctx context.Context, path, branch string) error {
	fetch := exec.CommandContext(ctx, "git", "-C", path, "fetch", "--all", "--prune")
	c.configureAuth(fetch, "")
	if err := c.runCommand(fetch); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}

	target := ""
	if branch != "" {
		target = "origin/" + branch
	} else {
		upstream, err := c.upstreamRef(ctx, path)
		if err != nil {
			return fmt.Errorf("unable to determine upstream for forced update: %w", err)
		}
		target = upstream
	}

	reset := exec.CommandContext(ctx, "git", "-C", path, "reset", "--hard", target)
	if err := c.runCommand(reset); err != nil {
		return fmt.Errorf("git reset failed: %w", err)
	}
	return nil
}

// Remove deletes the path recursively
func (c *ShellClient) Remove(path string) error {
	return os.RemoveAll(path)
}

// upstreamRef resolves the current branch's upstream (e.g. origin/main),
// falling back to origin/<branch> when no upstream is configured.
func (c *ShellClient) upstreamRef(ctx context.Context, path string) (string, error) {
	out, err := c.runOutput(ctx, path, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}")
	if err == nil {
		return strings.TrimSpace(out), nil
	}

	out, err = c.runOutput(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(out)
	if branch == "HEAD" {
		return "", fmt.Errorf("detached HEAD, cannot determine upstream")
	}
	return "origin/" + branch, nil
}

// configureAuth sets up authentication for git operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// SSH authentication
	if c.sshKeyFile != "" && (url == "" || strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		// Use GIT_SSH_COMMAND to specify the SSH key.
		// The path is shell-quoted to prevent injection via crafted filenames.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
	}

	// HTTPS authentication with token. The token travels via environment
	// variable and a credential helper, never embedded in the URL or argv.
	if c.token != "" && (url == "" || strings.HasPrefix(url, "https://")) {
		cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
		cmd.Env = append(cmd.Env, "REPLICANT_GIT_TOKEN="+c.token)
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$REPLICANT_GIT_TOKEN"; }; f`,
		)
	}
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "pull").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runCommand executes a command and returns an error with combined output on failure
func (c *ShellClient) runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// runOutput executes a git command in dir and returns stdout
func (c *ShellClient) runOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// restrictedPatterns match git's stderr when GitHub blocks access to a
// repository's content. Unmatched failures stay generic failures.
var restrictedPatterns = []string{
	"dmca",
	"access blocked",
	"repository unavailable",
	"blocked due to a legal",
}

func isRestricted(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range restrictedPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// isBranchGone matches the stderr git emits when the tracked remote branch
// reference disappeared, i.e. the remote renamed its default branch.
func isBranchGone(msg string) bool {
	if strings.Contains(msg, "Your configuration specifies to merge with the ref") &&
		strings.Contains(msg, "no such ref was fetched") {
		return true
	}
	return strings.Contains(msg, "couldn't find remote ref")
}

// shortReason trims a git error down to its first stderr line for reporting.
func shortReason(err error) string {
	msg := err.Error()
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return msg
}
