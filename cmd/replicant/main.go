package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ThalesMMS/replicant/internal/archive"
	"github.com/ThalesMMS/replicant/internal/config"
	"github.com/ThalesMMS/replicant/internal/git"
	"github.com/ThalesMMS/replicant/internal/github"
	"github.com/ThalesMMS/replicant/internal/report"
	"github.com/ThalesMMS/replicant/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Sync command flags
	opts          config.Options
	modeStars     bool
	modeFollowing bool
	modeFollowers bool

	// Archive command flags
	archiveInput string
	archiveDepth int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "replicant",
	Short: "Mirror GitHub repositories to local disk",
	Long: `replicant keeps a local directory tree in step with the repositories of a
GitHub account: the account's own repositories, its starred repositories, or
the repositories of every account it follows or is followed by.

Each run lists the remote side, compares it with what is on disk, and clones
or updates working copies with the system git binary.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync <username>",
	Short: "Mirror one account's repositories into the output directory",
	Long: `Sync lists the selected repository set for the given account, plans one
operation per repository (clone, pull, force-reset, reclone, or skip) and
executes the plan with bounded concurrency.

Runs are idempotent: a second run over an unchanged account only pulls.
Local-only changes are never discarded unless --force is given, and local
repositories missing from the listing are never deleted unless --exact-mirror
is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Compress mirrored folders into individual zip files",
	Long: `Archive packs every directory at the given depth below the input directory
into a sibling .zip file. Depth 0 compresses the immediate children; use
depth 1 for mirrors that nest repositories under owner directories.`,
	RunE: runArchive,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("replicant %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/replicant/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Sync command flags
	syncCmd.Flags().BoolVar(&modeStars, "stars", false, "mirror the account's starred repositories")
	syncCmd.Flags().BoolVar(&modeFollowing, "following", false, "mirror the repositories of accounts the user follows")
	syncCmd.Flags().BoolVar(&modeFollowers, "followers", false, "mirror the repositories of the user's followers")
	syncCmd.MarkFlagsMutuallyExclusive("stars", "following", "followers")

	syncCmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "", "output directory (default \"output\")")
	syncCmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "c", 0, fmt.Sprintf("maximum concurrent git operations (default %d)", config.DefaultConcurrency))
	syncCmd.Flags().BoolVar(&opts.IncludeForks, "include-forks", false, "mirror forks as well")
	syncCmd.Flags().BoolVar(&opts.Force, "force", false, "discard local changes instead of skipping dirty repositories")
	syncCmd.Flags().BoolVar(&opts.ExactMirror, "exact-mirror", false, "delete local repositories no longer present remotely")
	syncCmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show what would be done without touching disk")
	syncCmd.Flags().StringVar(&opts.Token, "token", "", "GitHub API token (defaults to $GITHUB_TOKEN)")
	syncCmd.Flags().StringVar(&opts.TokenFile, "token-file", "", "file containing the GitHub API token")
	syncCmd.Flags().StringVar(&opts.SSHKeyFile, "ssh-key", "", "SSH private key for git operations")
	syncCmd.Flags().DurationVar(&opts.GitTimeout, "git-timeout", 0, fmt.Sprintf("timeout per git operation (default %s)", config.DefaultGitTimeout))

	// Archive command flags
	archiveCmd.Flags().StringVarP(&archiveInput, "input", "i", "", "directory containing folders to compress")
	archiveCmd.Flags().IntVarP(&archiveDepth, "depth", "d", 0, "depth of the folders to compress (0 = immediate children)")
	_ = archiveCmd.MarkFlagRequired("input")

	// Add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	options, err := resolveOptions(args[0], logger)
	if err != nil {
		return err
	}

	token, err := options.ResolveToken()
	if err != nil {
		return err
	}

	source := github.NewClient(token)
	gitClient := git.NewShellClient(options.SSHKeyFile, token)
	sink := report.NewLogger(logger)

	engine := sync.NewEngine(*options, source, gitClient, sink, logger)
	summary, err := engine.Run(ctx)
	if err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d repositories failed to sync", summary.Failed, summary.Total())
	}
	return nil
}

func runArchive(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	result, err := archive.Compress(archiveInput, archiveDepth, logger)
	if err != nil {
		logger.Error("archive failed", "error", err)
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d folders failed to compress", result.Failed)
	}

	logger.Info("archive completed", "archived", result.Archived)
	return nil
}

// resolveOptions merges flags, the optional config file, environment and
// defaults into a validated option set. Precedence is flags, then file, then
// environment, then built-in defaults.
func resolveOptions(user string, logger *slog.Logger) (*config.Options, error) {
	options := opts
	options.User = user
	options.Mode = selectedMode()

	file, err := config.LoadFile(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := options.ApplyFile(file); err != nil {
		return nil, err
	}

	if options.Token == "" && options.TokenFile == "" {
		options.Token = os.Getenv("GITHUB_TOKEN")
	}

	options.ApplyDefaults()
	if err := options.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("configuration resolved",
		"user", options.User,
		"mode", string(options.Mode),
		"output", options.OutputDir,
		"concurrency", options.Concurrency,
		"git_timeout", options.GitTimeout)

	return &options, nil
}

func selectedMode() config.Mode {
	switch {
	case modeStars:
		return config.ModeStars
	case modeFollowing:
		return config.ModeFollowing
	case modeFollowers:
		return config.ModeFollowers
	default:
		return config.ModeOwn
	}
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/.config/replicant/config.yaml", home)
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	handlerOpts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}

	return slog.New(handler)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
