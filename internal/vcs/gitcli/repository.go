// Package gitcli implements the vcs primitives by driving the git
// executable.
package gitcli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

// BackendName is the registry name of this backend.
const BackendName = "gitcli"

// emptyTreeID is the object id of the empty tree.
const emptyTreeID = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

func init() {
	vcs.Register(BackendName, func(path string, opts vcs.Options) (vcs.Repository, error) {
		return Open(path, opts)
	})
}

// Repository is a handle on one repository backed by the git CLI.
type Repository struct {
	root         string
	gitDir       string
	bare         bool
	run          Runner
	readTimeout  time.Duration
	writeTimeout time.Duration
}

var _ vcs.Repository = (*Repository)(nil)

// Open locates the repository containing path.
func Open(path string, opts vcs.Options) (*Repository, error) {
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = defaultBinary
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("%w: %v", vcs.ErrGitUnavailable, err)
	}
	return open(path, opts, newExecRunner(binary))
}

func open(path string, opts vcs.Options, run Runner) (*Repository, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty repository path", vcs.ErrNotRepository)
	}

	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vcs.ErrNotRepository, err)
	}
	absPath = filepath.Clean(absPath)

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vcs.ErrNotRepository, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", vcs.ErrNotRepository, absPath)
	}

	repo := &Repository{
		run:          run,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
	}
	if repo.readTimeout <= 0 {
		repo.readTimeout = defaultReadTimeout
	}
	if repo.writeTimeout <= 0 {
		repo.writeTimeout = defaultWriteTimeout
	}

	ctx := context.Background()
	out, errOut, exitCode, runErr := run(ctx, repo.readTimeout, "", "-C", absPath, "rev-parse", "--is-bare-repository", "--absolute-git-dir")
	if runErr != nil {
		return nil, fmt.Errorf("%w: %s", vcs.ErrNotRepository, vcs.FormatCommandFailure(errOut, exitCode, runErr))
	}
	lines := splitLines(out)
	if len(lines) < 2 {
		return nil, fmt.Errorf("%w: unexpected rev-parse output %q", vcs.ErrNotRepository, strings.TrimSpace(out))
	}
	repo.bare = strings.TrimSpace(lines[0]) == "true"
	repo.gitDir = filepath.Clean(strings.TrimSpace(lines[1]))

	if repo.bare {
		repo.root = repo.gitDir
		return repo, nil
	}

	rootOut, rootErrOut, rootExitCode, rootErr := run(ctx, repo.readTimeout, "", "-C", absPath, "rev-parse", "--show-toplevel")
	if rootErr != nil {
		return nil, fmt.Errorf("%w: %s", vcs.ErrNotRepository, vcs.FormatCommandFailure(rootErrOut, rootExitCode, rootErr))
	}
	root := strings.TrimSpace(rootOut)
	if root == "" {
		return nil, fmt.Errorf("%w: could not determine work tree of %s", vcs.ErrNotRepository, absPath)
	}
	repo.root = filepath.Clean(root)
	return repo, nil
}

func (r *Repository) Root() string { return r.root }

func (r *Repository) IsBare() bool { return r.bare }

// GitDir returns the absolute path of the git directory.
func (r *Repository) GitDir() string { return r.gitDir }

func (r *Repository) Close() error { return nil }

func (r *Repository) git(ctx context.Context, timeout time.Duration, stdin string, args ...string) (string, error) {
	full := make([]string, 0, len(args)+3)
	full = append(full, "-C", r.root, "--literal-pathspecs")
	full = append(full, args...)

	out, errOut, exitCode, err := r.run(ctx, timeout, stdin, full...)
	if err != nil {
		return out, commandError(args, errOut, exitCode, err)
	}
	return out, nil
}

func (r *Repository) read(ctx context.Context, args ...string) (string, error) {
	return r.git(ctx, r.readTimeout, "", args...)
}

func (r *Repository) write(ctx context.Context, stdin string, args ...string) (string, error) {
	out, err := r.git(ctx, r.writeTimeout, stdin, args...)
	if err != nil {
		var cmdErr *vcs.CommandError
		if errors.As(err, &cmdErr) && isIndexLockError(cmdErr.Stderr) {
			cmdErr.Err = fmt.Errorf("%w: %v", vcs.ErrIndexLocked, cmdErr.Err)
		}
	}
	return out, err
}

// exitStatus reports the exit code of a failed command, or -1 when err is
// not a process exit.
func exitStatus(err error) int {
	var cmdErr *vcs.CommandError
	if errors.As(err, &cmdErr) {
		var exitErr *exec.ExitError
		if errors.As(cmdErr.Err, &exitErr) || cmdErr.ExitCode != 0 {
			return cmdErr.ExitCode
		}
	}
	return -1
}

func (r *Repository) Head(ctx context.Context) (vcs.HeadInfo, error) {
	info := vcs.HeadInfo{}

	symbolic, err := r.read(ctx, "symbolic-ref", "-q", "HEAD")
	switch {
	case err == nil:
		info.Name = strings.TrimPrefix(strings.TrimSpace(symbolic), "refs/heads/")
	case exitStatus(err) == 1:
		info.Detached = true
	default:
		return info, err
	}

	target, err := r.read(ctx, "rev-parse", "--verify", "-q", "HEAD^{commit}")
	switch {
	case err == nil:
		info.Target = strings.TrimSpace(target)
	case exitStatus(err) == 1:
		info.Unborn = true
		info.Detached = false
	default:
		return info, err
	}
	return info, nil
}

// diffBase returns HEAD's commit id, or the empty tree when HEAD is unborn.
func (r *Repository) diffBase(ctx context.Context) (string, error) {
	head, err := r.Head(ctx)
	if err != nil {
		return "", err
	}
	if head.Unborn {
		return emptyTreeID, nil
	}
	return head.Target, nil
}

// State inspects the git directory for in-progress operations, in the same
// precedence libgit2 uses.
func (r *Repository) State(ctx context.Context) (vcs.State, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return stateFromGitDir(r.gitDir), nil
}

func stateFromGitDir(gitDir string) vcs.State {
	exists := func(parts ...string) bool {
		_, err := os.Stat(filepath.Join(append([]string{gitDir}, parts...)...))
		return err == nil
	}

	switch {
	case exists("rebase-merge", "interactive"):
		return vcs.StateRebaseInteractive
	case exists("rebase-merge"):
		return vcs.StateRebaseMerge
	case exists("rebase-apply"):
		return vcs.StateRebase
	case exists("MERGE_HEAD"):
		return vcs.StateMerge
	case exists("REVERT_HEAD"):
		return vcs.StateRevert
	case exists("CHERRY_PICK_HEAD"):
		return vcs.StateCherryPick
	case exists("BISECT_LOG"):
		return vcs.StateBisect
	}
	return vcs.StateClean
}

func (r *Repository) Signature(ctx context.Context) (vcs.Signature, error) {
	name, err := r.configValue(ctx, "user.name")
	if err != nil {
		return vcs.Signature{}, err
	}
	email, err := r.configValue(ctx, "user.email")
	if err != nil {
		return vcs.Signature{}, err
	}
	if name == "" || email == "" {
		return vcs.Signature{}, vcs.ErrNoSignature
	}
	return vcs.Signature{Name: name, Email: email}, nil
}

func (r *Repository) configValue(ctx context.Context, key string) (string, error) {
	out, err := r.read(ctx, "config", "--get", key)
	if err != nil {
		if exitStatus(err) == 1 {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func splitLines(raw string) []string {
	trimmed := strings.TrimRight(raw, "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}
