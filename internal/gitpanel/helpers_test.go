package gitpanel

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/crfloyd/git-frisky/internal/vcs"
	"github.com/crfloyd/git-frisky/internal/vcs/gitcli"
)

func mustInitEmptyRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}

	repoRoot := t.TempDir()
	runGitOrFail(t, repoRoot, "init", "-q")
	runGitOrFail(t, repoRoot, "config", "user.email", "tests@frisky.local")
	runGitOrFail(t, repoRoot, "config", "user.name", "Frisky Tests")
	runGitOrFail(t, repoRoot, "config", "core.autocrlf", "false")
	return repoRoot
}

func mustInitTestRepo(t *testing.T) string {
	t.Helper()

	repoRoot := mustInitEmptyRepo(t)
	writeFile(t, repoRoot, "README.md", "hello\n")
	runGitOrFail(t, repoRoot, "add", "--", "README.md")
	runGitOrFail(t, repoRoot, "commit", "-q", "-m", "initial commit")
	return repoRoot
}

func mustOpenRepo(t *testing.T, repoRoot string) vcs.Repository {
	t.Helper()

	repo, err := gitcli.Open(repoRoot, vcs.Options{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func testOpener(path string) (vcs.Repository, error) {
	return gitcli.Open(path, vcs.Options{})
}

func writeFile(t *testing.T, repoRoot string, name string, content string) {
	t.Helper()
	target := filepath.Join(repoRoot, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("failed to create parent of %s: %v", name, err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func runGitOrFail(t *testing.T, repoRoot string, args ...string) string {
	t.Helper()
	return runGitEnvOrFail(t, repoRoot, nil, args...)
}

func runGitEnvOrFail(t *testing.T, repoRoot string, env []string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", repoRoot}, args...)...)
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("git %s failed: %v stderr=%s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String()
}

// commitAt commits everything staged with a fixed author and committer time.
func commitAt(t *testing.T, repoRoot string, message string, unix int64) {
	t.Helper()
	date := fmt.Sprintf("@%d +0000", unix)
	runGitEnvOrFail(t, repoRoot, []string{"GIT_AUTHOR_DATE=" + date, "GIT_COMMITTER_DATE=" + date}, "commit", "-q", "--allow-empty", "-m", message)
}

func indexSnapshot(t *testing.T, repoRoot string) string {
	t.Helper()
	return runGitOrFail(t, repoRoot, "ls-files", "--stage")
}

func stagedBlob(t *testing.T, repoRoot string, name string) string {
	t.Helper()
	return runGitOrFail(t, repoRoot, "show", ":"+name)
}

type recordedEvent struct {
	name string
	data interface{}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) emit(name string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: name, data: data})
}

func (r *eventRecorder) named(name string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEvent, 0, len(r.events))
	for _, event := range r.events {
		if event.name == name {
			out = append(out, event)
		}
	}
	return out
}

func (r *eventRecorder) commandResults(action string) []CommandResultDTO {
	out := make([]CommandResultDTO, 0, 4)
	for _, event := range r.named(EventCommandResult) {
		result, ok := event.data.(CommandResultDTO)
		if ok && result.Action == action {
			out = append(out, result)
		}
	}
	return out
}

func newTestService(t *testing.T, emit EventEmitter, opts ...Option) *Service {
	t.Helper()
	svc := NewService(emit, testOpener, opts...)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func containsPath(files []FileChange, path string, status FileStatus) bool {
	for _, file := range files {
		if file.Path == path && file.Status == status {
			return true
		}
	}
	return false
}
