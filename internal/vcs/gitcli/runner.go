package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

const (
	defaultBinary       = "git"
	defaultReadTimeout  = 8 * time.Second
	defaultWriteTimeout = 12 * time.Second
)

// Runner executes one git invocation and returns stdout, stderr and the exit
// code. A non-nil error means the process failed to run or exited non-zero.
type Runner func(ctx context.Context, timeout time.Duration, stdin string, args ...string) (string, string, int, error)

func newExecRunner(binary string) Runner {
	return func(ctx context.Context, timeout time.Duration, stdin string, args ...string) (string, string, int, error) {
		return runGitWithInput(ctx, binary, timeout, stdin, args...)
	}
}

func runGitWithInput(ctx context.Context, binary string, timeout time.Duration, stdin string, args ...string) (string, string, int, error) {
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if ctx == nil {
		ctx = context.Background()
	}

	childCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(childCtx, binary, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := childCtx.Err(); ctxErr != nil {
			return stdout.String(), stderr.String(), exitCode, fmt.Errorf("git %s: %w", firstArg(args), ctxErr)
		}
		return stdout.String(), stderr.String(), exitCode, runErr
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// firstArg returns the git subcommand, skipping global options.
func firstArg(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-C" || arg == "-c":
			i++
		case strings.HasPrefix(arg, "-"):
		default:
			return arg
		}
	}
	return ""
}

func commandError(args []string, stderr string, exitCode int, err error) error {
	if err == nil {
		return nil
	}
	return &vcs.CommandError{
		Args:     cloneArgs(args),
		Stderr:   strings.TrimSpace(stderr),
		ExitCode: exitCode,
		Err:      err,
	}
}

func isIndexLockError(stderr string) bool {
	combined := strings.ToLower(strings.TrimSpace(stderr))
	if !strings.Contains(combined, "index.lock") {
		return false
	}
	return strings.Contains(combined, "another git process") ||
		strings.Contains(combined, "file exists") ||
		strings.Contains(combined, "unable to create") ||
		strings.Contains(combined, "could not lock")
}

func cloneArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	copy(out, args)
	return out
}
