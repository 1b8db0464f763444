package gitpanel

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/crfloyd/git-frisky/internal/security"
	"github.com/crfloyd/git-frisky/internal/vcs"
)

// Command lifecycle states reported in CommandResultDTO.Status.
const (
	commandStatusQueued    = "queued"
	commandStatusStarted   = "started"
	commandStatusSucceeded = "succeeded"
	commandStatusFailed    = "failed"
)

const maxStderrLength = 1200

var diagnosticSanitizer = security.NewLogSanitizer()

// commandTrace follows one write command from queueing to completion. The
// git invocation that failed, if any, replaces the requested args.
type commandTrace struct {
	id        string
	repoPath  string
	action    string
	args      []string
	startedAt time.Time

	mu       sync.Mutex
	gitArgs  []string
	stderr   string
	exitCode int
}

func newCommandTrace(id string, repoPath string, action string, args []string, startedAt time.Time) *commandTrace {
	return &commandTrace{
		id:        id,
		repoPath:  strings.TrimSpace(repoPath),
		action:    action,
		args:      append([]string(nil), args...),
		startedAt: startedAt,
	}
}

// capture records the git invocation carried by err.
func (t *commandTrace) capture(err error) {
	var cmdErr *vcs.CommandError
	if t == nil || !errors.As(err, &cmdErr) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(cmdErr.Args) > 0 {
		t.gitArgs = append([]string(nil), cmdErr.Args...)
	}
	t.stderr = strings.TrimSpace(cmdErr.Stderr)
	t.exitCode = cmdErr.ExitCode
}

func (t *commandTrace) result(status string, err error) CommandResultDTO {
	t.mu.Lock()
	args, stderr, exitCode := t.gitArgs, t.stderr, t.exitCode
	t.mu.Unlock()
	if len(args) == 0 {
		args = t.args
	}

	r := newRedactor(t.repoPath)
	result := CommandResultDTO{
		CommandID:       t.id,
		RepoPath:        t.repoPath,
		Action:          t.action,
		Args:            r.args(args),
		DurationMs:      time.Since(t.startedAt).Milliseconds(),
		ExitCode:        exitCode,
		StderrSanitized: r.stderr(stderr),
		Status:          status,
	}
	if err != nil {
		result.Error = diagnosticSanitizer.Sanitize(r.text(NormalizeBindingError(err).Error()))
	}
	return result
}

// report emits the trace as a command_result event. Finished commands also
// go to the recorder and the store.
func (s *Service) report(trace *commandTrace, status string, err error) {
	if trace == nil {
		return
	}
	if status == commandStatusFailed {
		trace.capture(err)
	}

	result := trace.result(status, err)
	s.emit(EventCommandResult, result)

	if status != commandStatusSucceeded && status != commandStatusFailed {
		return
	}
	if s.record != nil {
		s.record(result)
	}
	s.persistCommand(result)
}

// redactor rewrites absolute paths in diagnostics: the repository root
// becomes <repo>, the home directory ~ and any other absolute argument
// <abs-path>.
type redactor struct {
	repo     string
	home     string
	replacer *strings.Replacer
}

func newRedactor(repoPath string) redactor {
	r := redactor{repo: cleanAbs(repoPath)}
	if home, err := os.UserHomeDir(); err == nil {
		r.home = cleanAbs(home)
	}

	var pairs []string
	for _, p := range []struct{ from, to string }{{r.repo, "<repo>"}, {r.home, "~"}} {
		if p.from == "" {
			continue
		}
		pairs = append(pairs, p.from, p.to)
		if slashed := filepath.ToSlash(p.from); slashed != p.from {
			pairs = append(pairs, slashed, p.to)
		}
	}
	r.replacer = strings.NewReplacer(pairs...)
	return r
}

func cleanAbs(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

func (r redactor) text(s string) string {
	return r.replacer.Replace(s)
}

func (r redactor) args(args []string) []string {
	if len(args) == 0 {
		return nil
	}

	out := make([]string, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		switch {
		case arg == "":
			continue
		case filepath.IsAbs(arg):
			out = append(out, r.absolute(arg))
		default:
			arg = strings.NewReplacer("\r", " ", "\n", " ").Replace(r.text(arg))
			out = append(out, diagnosticSanitizer.Sanitize(arg))
		}
	}
	return out
}

func (r redactor) absolute(p string) string {
	if rel, ok := relativeWithin(r.repo, p); ok {
		if rel == "." {
			return "<repo>"
		}
		return "<repo>/" + rel
	}
	if rel, ok := relativeWithin(r.home, p); ok {
		return "~/" + rel
	}
	return "<abs-path>"
}

// stderr joins the non-empty lines of git's stderr with " | ", strips control
// characters and truncates the result.
func (r redactor) stderr(stderr string) string {
	var parts []string
	for line := range strings.Lines(r.text(strings.TrimSpace(stderr))) {
		line = strings.Map(func(c rune) rune {
			if c < 0x20 && c != '\t' {
				return -1
			}
			return c
		}, line)
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	if len(parts) == 0 {
		return ""
	}

	joined := diagnosticSanitizer.Sanitize(strings.Join(parts, " | "))
	if len(joined) > maxStderrLength {
		joined = strings.TrimSpace(joined[:maxStderrLength]) + "... (truncated)"
	}
	return joined
}

func relativeWithin(base string, candidate string) (string, bool) {
	if base == "" {
		return "", false
	}
	rel, err := filepath.Rel(base, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
