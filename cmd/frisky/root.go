package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/crfloyd/git-frisky/internal/config"
	"github.com/crfloyd/git-frisky/internal/database"
	"github.com/crfloyd/git-frisky/internal/gitpanel"
	"github.com/crfloyd/git-frisky/internal/logging"
	"github.com/crfloyd/git-frisky/internal/vcs"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var ErrUnsupportedOutput = errors.New("unsupported output format")

type rootOptions struct {
	repo       string
	configPath string
	output     string
	noColor    bool
	verbose    bool
	noHistory  bool

	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "frisky",
		Short: "Stage, unstage and commit git changes hunk by hunk",
		Long: `frisky inspects a working copy and moves individual hunks between the
working tree and the index.

Examples:
  frisky status
  frisky diff src/main.go
  frisky stage-hunk src/main.go --hunk 2
  frisky commit -m "Fix parser"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.noColor {
				color.NoColor = true
			}
			switch opts.output {
			case formatTable, formatJSON, formatYAML:
				return nil
			}
			return fmt.Errorf("%w: %q", ErrUnsupportedOutput, opts.output)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.repo, "repo", "C", ".", "path inside the repository")
	flags.StringVar(&opts.configPath, "config", "", "config file (default: .frisky.yaml in CWD or $HOME)")
	flags.StringVarP(&opts.output, "output", "o", formatTable, "output format (table, json, yaml)")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&opts.noHistory, "no-history", false, "do not record repositories and commands")

	rootCmd.AddCommand(
		statusCmd(opts),
		diffCmd(opts),
		stageCmd(opts),
		unstageCmd(opts),
		stageHunkCmd(opts),
		unstageHunkCmd(opts),
		commitCmd(opts),
		logCmd(opts),
		repoCmd(opts),
		watchCmd(opts),
		versionCmd(opts),
	)

	return rootCmd
}

func versionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(opts.stdout, "frisky %s (backends: %s)\n", config.AppVersion, strings.Join(vcs.Backends(), ", "))
		},
	}
}

// session is everything one command needs, built from config.
type session struct {
	cfg *config.Config
	log logging.Logger
	svc *gitpanel.Service
	db  *database.Service
	out *printer
}

func (o *rootOptions) open() (*session, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if o.verbose {
		level = "debug"
	}
	log, err := logging.New(o.stderr, cfg.Logging.Format, level)
	if err != nil {
		return nil, err
	}

	opener, err := vcs.NewOpener(cfg.Git.Backend, vcs.Options{
		Binary:       cfg.Git.Binary,
		ReadTimeout:  cfg.Git.ReadTimeout,
		WriteTimeout: cfg.Git.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}

	svcOpts := []gitpanel.Option{
		gitpanel.WithLogger(log),
		gitpanel.WithWriteTimeout(cfg.Git.WriteTimeout),
		gitpanel.WithLogLimit(cfg.History.Limit),
	}

	s := &session{cfg: cfg, log: log, out: newPrinter(o.stdout, o.output)}
	if !o.noHistory {
		db, dbErr := database.NewService(cfg.Storage.DBPath, log)
		if dbErr != nil {
			log.Warn("history disabled", "error", dbErr)
		} else {
			s.db = db
			svcOpts = append(svcOpts, gitpanel.WithStore(db))
		}
	}

	s.svc = gitpanel.NewService(nil, opener, svcOpts...)
	return s, nil
}

func (s *session) close() {
	_ = s.svc.Close(context.Background())
	if s.db != nil {
		_ = s.db.Close()
	}
}

// withSession runs fn with a freshly opened session.
func (o *rootOptions) withSession(fn func(*session) error) error {
	s, err := o.open()
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}
