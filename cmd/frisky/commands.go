package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crfloyd/git-frisky/internal/filewatcher"
	"github.com/crfloyd/git-frisky/internal/gitpanel"
)

// Sentinel errors for command arguments.
var (
	ErrHunkOutOfRange = errors.New("hunk index out of range")
	ErrEmptyMessage   = errors.New("commit message is required")
	ErrNoHistory      = errors.New("history is disabled")
)

func statusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show staged and unstaged changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(func(s *session) error {
				status, err := s.svc.GetStatus(cmd.Context(), opts.repo)
				if err != nil {
					return err
				}
				return s.out.print(status, func(w io.Writer) error {
					return renderStatus(w, status)
				})
			})
		},
	}
}

func diffCmd(opts *rootOptions) *cobra.Command {
	var staged bool

	cmd := &cobra.Command{
		Use:   "diff <path>",
		Short: "Show the hunks of one file",
		Long: `Show the hunks of one file, numbered for stage-hunk and unstage-hunk.

Without --staged the diff is index to working tree; with --staged it is
HEAD to index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(func(s *session) error {
				hunks, err := s.svc.GetDiff(cmd.Context(), opts.repo, args[0], staged)
				if err != nil {
					return err
				}
				return s.out.print(hunks, func(w io.Writer) error {
					return renderHunks(w, args[0], hunks)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&staged, "staged", false, "diff HEAD against the index")
	return cmd
}

func stageCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stage <path>...",
		Short: "Stage whole files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(func(s *session) error {
				if err := s.svc.Stage(cmd.Context(), opts.repo, args); err != nil {
					return err
				}
				return s.out.print(pathsResult("staged", args), func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "staged %d path(s)\n", len(args))
					return err
				})
			})
		},
	}
}

func unstageCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unstage <path>...",
		Short: "Unstage whole files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(func(s *session) error {
				if err := s.svc.Unstage(cmd.Context(), opts.repo, args); err != nil {
					return err
				}
				return s.out.print(pathsResult("unstaged", args), func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "unstaged %d path(s)\n", len(args))
					return err
				})
			})
		},
	}
}

func pathsResult(action string, paths []string) map[string]any {
	return map[string]any{"action": action, "paths": paths}
}

func stageHunkCmd(opts *rootOptions) *cobra.Command {
	return hunkCmd(opts, "stage-hunk", "Stage one hunk of the working tree diff", false)
}

func unstageHunkCmd(opts *rootOptions) *cobra.Command {
	return hunkCmd(opts, "unstage-hunk", "Unstage one hunk of the staged diff", true)
}

// hunkCmd builds stage-hunk and unstage-hunk. The hunk is picked by its
// 1-based number in the diff output.
func hunkCmd(opts *rootOptions, use string, short string, staged bool) *cobra.Command {
	var number int

	cmd := &cobra.Command{
		Use:   use + " <path>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			return opts.withSession(func(s *session) error {
				ctx := cmd.Context()
				hunks, err := s.svc.GetDiff(ctx, opts.repo, path, staged)
				if err != nil {
					return err
				}
				hunk, err := pickHunk(hunks, number)
				if err != nil {
					return err
				}

				if staged {
					err = s.svc.UnstageHunk(ctx, opts.repo, path, hunk)
				} else {
					err = s.svc.StageHunk(ctx, opts.repo, path, hunk)
				}
				if err != nil {
					return err
				}

				verb := strings.SplitN(use, "-", 2)[0] + "d"
				return s.out.print(map[string]any{"action": use, "path": path, "hunk": hunk}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s hunk #%d of %s (%s)\n", verb, number, path, hunkHeader(hunk))
					return err
				})
			})
		},
	}
	cmd.Flags().IntVarP(&number, "hunk", "n", 1, "hunk number as shown by diff")
	return cmd
}

func pickHunk(hunks []gitpanel.DiffHunk, number int) (gitpanel.DiffHunk, error) {
	if number < 1 || number > len(hunks) {
		return gitpanel.DiffHunk{}, fmt.Errorf("%w: %d (have %d)", ErrHunkOutOfRange, number, len(hunks))
	}
	return hunks[number-1], nil
}

func commitCmd(opts *rootOptions) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the staged changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(message) == "" {
				return ErrEmptyMessage
			}
			return opts.withSession(func(s *session) error {
				commit, err := s.svc.Commit(cmd.Context(), opts.repo, message)
				if err != nil {
					return err
				}
				return s.out.print(commit, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "[%s] %s\n", hunkColor.Sprint(shortID(commit.ID)), commit.Summary)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}

func logCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show commits reachable from local branches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(func(s *session) error {
				commits, err := s.svc.Log(cmd.Context(), opts.repo, limit)
				if err != nil {
					return err
				}
				return s.out.print(commits, func(w io.Writer) error {
					return renderLog(w, commits, time.Now())
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum commits (default: history.limit)")
	return cmd
}

func repoCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Summarize the repository: HEAD, state and branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(func(s *session) error {
				summary, err := s.svc.OpenRepo(cmd.Context(), opts.repo)
				if err != nil {
					return err
				}
				return s.out.print(summary, func(w io.Writer) error {
					return renderSummary(w, summary)
				})
			})
		},
	}

	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List recently opened repositories",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.withSession(func(s *session) error {
				if s.db == nil {
					return ErrNoHistory
				}
				repos, err := s.db.RecentRepositories(limit)
				if err != nil {
					return err
				}
				return s.out.print(repos, func(w io.Writer) error {
					return renderRecent(w, repos, time.Now())
				})
			})
		},
	}
	recent.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries")

	var commandLimit int
	commands := &cobra.Command{
		Use:   "commands",
		Short: "List the write commands recorded for the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(func(s *session) error {
				if s.db == nil {
					return ErrNoHistory
				}
				summary, err := s.svc.OpenRepo(cmd.Context(), opts.repo)
				if err != nil {
					return err
				}
				records, err := s.db.ListCommands(summary.Path, commandLimit)
				if err != nil {
					return err
				}
				return s.out.print(records, func(w io.Writer) error {
					return renderCommands(w, records, time.Now())
				})
			})
		},
	}
	commands.Flags().IntVarP(&commandLimit, "limit", "n", 20, "maximum entries")

	cmd.AddCommand(recent, commands)
	return cmd
}

func watchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print a line whenever the repository changes",
		Long: `Watch the working tree and git directory and print one line per change
kind (status, head, refs) after each quiet period. Stops on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(func(s *session) error {
				ctx := cmd.Context()
				summary, err := s.svc.OpenRepo(ctx, opts.repo)
				if err != nil {
					return err
				}

				watcher := filewatcher.NewService(nil,
					filewatcher.WithDebounce(s.cfg.Watch.Debounce),
					filewatcher.WithLogger(s.log),
				)
				defer watcher.Close()

				events := make(chan filewatcher.ChangeEvent, 16)
				watcher.OnChange(func(event filewatcher.ChangeEvent) {
					select {
					case events <- event:
					default:
					}
				})
				if err := watcher.Start(summary.Path); err != nil {
					return err
				}
				s.log.Info("watching", "repo", summary.Path)

				for {
					select {
					case <-ctx.Done():
						return nil
					case event := <-events:
						err := s.out.print(event, func(w io.Writer) error {
							_, err := fmt.Fprintf(w, "%s %s\n", dimColor.Sprint(time.Now().Format(time.TimeOnly)), headColor.Sprint(event.Kind))
							return err
						})
						if err != nil {
							return err
						}
					}
				}
			})
		},
	}
}
