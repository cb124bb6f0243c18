package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects which slice of the account graph is mirrored
type Mode string

const (
	ModeOwn       Mode = "own"
	ModeStars     Mode = "stars"
	ModeFollowing Mode = "following"
	ModeFollowers Mode = "followers"
)

// DefaultConcurrency bounds how many git operations run in flight when the
// operator does not say otherwise.
const DefaultConcurrency = 8

// DefaultGitTimeout is applied per git invocation so a hung subprocess cannot
// pin a concurrency slot indefinitely.
const DefaultGitTimeout = 10 * time.Minute

// Options represents the complete configuration of a sync run
type Options struct {
	User         string
	Mode         Mode
	OutputDir    string
	Concurrency  int
	IncludeForks bool
	Force        bool
	ExactMirror  bool
	DryRun       bool
	Token        string
	TokenFile    string
	SSHKeyFile   string
	GitTimeout   time.Duration
}

// File is the optional on-disk defaults file. Flags always win over it.
type File struct {
	OutputDir   string `yaml:"output_dir"`
	Concurrency int    `yaml:"concurrency"`
	GitTimeout  string `yaml:"git_timeout"`
	TokenFile   string `yaml:"token_file"`
	SSHKeyFile  string `yaml:"ssh_key_file"`
}

// LoadFile reads and parses the defaults file. A missing file is not an
// error; callers get an empty File back.
func LoadFile(path string) (*File, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	f.expandEnv()

	return &f, nil
}

// expandEnv expands environment variables in all string fields
func (f *File) expandEnv() {
	f.OutputDir = os.ExpandEnv(f.OutputDir)
	f.GitTimeout = os.ExpandEnv(f.GitTimeout)
	f.TokenFile = os.ExpandEnv(f.TokenFile)
	f.SSHKeyFile = os.ExpandEnv(f.SSHKeyFile)
}

// ApplyFile fills unset options from the defaults file.
func (o *Options) ApplyFile(f *File) error {
	if f == nil {
		return nil
	}
	if o.OutputDir == "" {
		o.OutputDir = f.OutputDir
	}
	if o.Concurrency == 0 {
		o.Concurrency = f.Concurrency
	}
	if o.TokenFile == "" {
		o.TokenFile = f.TokenFile
	}
	if o.SSHKeyFile == "" {
		o.SSHKeyFile = f.SSHKeyFile
	}
	if o.GitTimeout == 0 && f.GitTimeout != "" {
		d, err := time.ParseDuration(f.GitTimeout)
		if err != nil {
			return fmt.Errorf("invalid git_timeout in config file: %w", err)
		}
		o.GitTimeout = d
	}
	return nil
}

// ApplyDefaults fills remaining zero-value fields with sensible defaults.
func (o *Options) ApplyDefaults() {
	if o.Mode == "" {
		o.Mode = ModeOwn
	}
	if o.OutputDir == "" {
		o.OutputDir = "output"
	}
	if o.Concurrency == 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.GitTimeout == 0 {
		o.GitTimeout = DefaultGitTimeout
	}
}

// Validate checks the options for errors
func (o *Options) Validate() error {
	if o.User == "" {
		return fmt.Errorf("username is required")
	}

	switch o.Mode {
	case ModeOwn, ModeStars, ModeFollowing, ModeFollowers:
		// valid
	default:
		return fmt.Errorf("invalid mode: %s (must be own, stars, following, or followers)", o.Mode)
	}

	if o.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", o.Concurrency)
	}
	if o.GitTimeout < 0 {
		return fmt.Errorf("git timeout must not be negative")
	}
	if o.Token != "" && o.TokenFile != "" {
		return fmt.Errorf("only one of token or token_file may be set")
	}

	return nil
}

// ResolveToken returns the API token, reading the token file if one is
// configured.
func (o *Options) ResolveToken() (string, error) {
	if o.Token != "" {
		return o.Token, nil
	}
	if o.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(o.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// RootDir returns the mode-specific mirror root. The directory layout is the
// on-disk contract: own repos live in output/<user>, the other modes append a
// suffix so the sets never collide.
func (o *Options) RootDir() string {
	name := o.User
	switch o.Mode {
	case ModeStars:
		name += "-stars"
	case ModeFollowing:
		name += "-follows"
	case ModeFollowers:
		name += "-followers"
	}
	return filepath.Join(o.OutputDir, name)
}
