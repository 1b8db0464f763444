package gitcli

import (
	"context"
	"errors"
	"iter"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

func TestParseDiffEventsDelimitsHunkBodiesByCount(t *testing.T) {
	raw := strings.Join([]string{
		"diff --git a/notes.md b/notes.md",
		"index 1111111..2222222 100644",
		"--- a/notes.md",
		"+++ b/notes.md",
		"@@ -1,3 +1,3 @@ intro",
		" first",
		"-@@ -9,9 +9,9 @@",
		"+diff --git a/x b/x",
		" last",
		"\\ No newline at end of file",
		"",
	}, "\n")

	var events []vcs.DiffEvent
	for event, err := range parseDiffEvents(raw) {
		if err != nil {
			t.Fatalf("parseDiffEvents returned error: %v", err)
		}
		events = append(events, event)
	}

	hunks := 0
	lines := make([]string, 0)
	for _, event := range events {
		switch {
		case event.Kind == vcs.EventHunk:
			hunks++
			if event.Hunk.OldStart != 1 || event.Hunk.OldLines != 3 || event.Hunk.NewStart != 1 || event.Hunk.NewLines != 3 {
				t.Fatalf("unexpected hunk header: %+v", event.Hunk)
			}
			if event.Hunk.Header != "@@ -1,3 +1,3 @@ intro" {
				t.Fatalf("unexpected header text: %q", event.Hunk.Header)
			}
		case event.Kind == vcs.EventLine && event.Origin != vcs.OriginFileHeader:
			lines = append(lines, string(event.Origin)+event.Content)
		}
	}

	if hunks != 1 {
		t.Fatalf("unexpected hunk count: got=%d want=1", hunks)
	}
	want := []string{" first", "-@@ -9,9 +9,9 @@", "+diff --git a/x b/x", " last", "\\ No newline at end of file"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected lines: got=%q want=%q", lines, want)
	}
}

func TestParseDiffEventsRejectsTruncatedHunk(t *testing.T) {
	raw := "@@ -1,2 +1,2 @@\n-a\n+b\n"

	var gotErr error
	for _, err := range parseDiffEvents(raw) {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Fatalf("expected truncated hunk error")
	}
}

func TestParseHunkHeaderDefaultsOmittedCounts(t *testing.T) {
	header, ok := parseHunkHeader("@@ -3 +4 @@")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if header.OldLines != 1 || header.NewLines != 1 {
		t.Fatalf("omitted counts should default to 1: %+v", header)
	}
	if _, ok := parseHunkHeader("@@ broken @@"); ok {
		t.Fatalf("expected malformed header to be rejected")
	}
}

func TestParsePorcelainStatusZ(t *testing.T) {
	raw := strings.Join([]string{
		"M  staged.txt",
		"MM both.txt",
		" D gone.txt",
		"R  new name.txt",
		"old name.txt",
		"?? notes/todo.md",
		"UU conflict.txt",
		"",
	}, "\x00")

	entries := parsePorcelainStatusZ(raw)
	if len(entries) != 6 {
		t.Fatalf("unexpected entry count: got=%d want=6 (%+v)", len(entries), entries)
	}

	byPath := make(map[string]vcs.StatusEntry, len(entries))
	for _, entry := range entries {
		byPath[entry.Path] = entry
	}

	if flags := byPath["both.txt"].Flags; !flags.Has(vcs.StatusIndexModified) || !flags.Has(vcs.StatusWtModified) {
		t.Fatalf("both.txt should be modified in index and worktree: %b", flags)
	}
	renamed := byPath["new name.txt"]
	if !renamed.Flags.Has(vcs.StatusIndexRenamed) || renamed.OldPath != "old name.txt" {
		t.Fatalf("unexpected rename entry: %+v", renamed)
	}
	if flags := byPath["notes/todo.md"].Flags; flags != vcs.StatusWtNew {
		t.Fatalf("untracked file should only carry WtNew: %b", flags)
	}
	if flags := byPath["conflict.txt"].Flags; flags != vcs.StatusConflicted {
		t.Fatalf("conflict should only carry Conflicted: %b", flags)
	}
	if flags := byPath["gone.txt"].Flags; flags != vcs.StatusWtDeleted {
		t.Fatalf("unexpected flags for gone.txt: %b", flags)
	}
}

func TestParseTrackCounts(t *testing.T) {
	cases := []struct {
		raw    string
		ahead  int
		behind int
	}{
		{raw: "", ahead: 0, behind: 0},
		{raw: "ahead 2", ahead: 2, behind: 0},
		{raw: "behind 5", ahead: 0, behind: 5},
		{raw: "ahead 1, behind 3", ahead: 1, behind: 3},
		{raw: "gone", ahead: 0, behind: 0},
	}
	for _, tc := range cases {
		ahead, behind := parseTrackCounts(tc.raw)
		if ahead != tc.ahead || behind != tc.behind {
			t.Fatalf("parseTrackCounts(%q): got=%d/%d want=%d/%d", tc.raw, ahead, behind, tc.ahead, tc.behind)
		}
	}
}

func TestParseCommitRecords(t *testing.T) {
	raw := strings.Join([]string{
		"aaa\x1fAda\x1fada@example.com\x1f1700000100\x1fbbb ccc\x1fmerge things\n\nbody\n",
		"\nbbb\x1fBob\x1fbob@example.com\x1f1700000000\x1f\x1froot\n",
	}, "\x00")

	commits, err := parseCommitRecords(raw)
	if err != nil {
		t.Fatalf("parseCommitRecords returned error: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("unexpected commit count: got=%d want=2", len(commits))
	}
	if len(commits[0].Parents) != 2 || commits[0].Parents[1] != "ccc" {
		t.Fatalf("unexpected parents: %v", commits[0].Parents)
	}
	if commits[1].ID != "bbb" || len(commits[1].Parents) != 0 {
		t.Fatalf("unexpected root commit: %+v", commits[1])
	}
	if commits[0].Message != "merge things\n\nbody\n" {
		t.Fatalf("unexpected message: %q", commits[0].Message)
	}
}

func TestFirstArgSkipsGlobalOptions(t *testing.T) {
	got := firstArg([]string{"-C", "/tmp/repo", "--literal-pathspecs", "-c", "user.name=x", "commit-tree", "abc"})
	if got != "commit-tree" {
		t.Fatalf("unexpected subcommand: got=%s want=commit-tree", got)
	}
}

func TestOpenResolvesRootFromSubdirectory(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	subdir := filepath.Join(repoRoot, "pkg", "inner")
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	repo, err := Open(subdir, vcs.Options{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	want, _ := filepath.EvalSymlinks(repoRoot)
	got, _ := filepath.EvalSymlinks(repo.Root())
	if got != want {
		t.Fatalf("unexpected root: got=%s want=%s", got, want)
	}
	if repo.IsBare() {
		t.Fatalf("work tree repository reported as bare")
	}
}

func TestOpenRejectsNonRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}
	t.Setenv("GIT_CEILING_DIRECTORIES", os.TempDir())

	_, err := Open(t.TempDir(), vcs.Options{})
	if !errors.Is(err, vcs.ErrNotRepository) {
		t.Fatalf("expected ErrNotRepository, got: %v", err)
	}
}

func TestDiffStagedOnUnbornRepositoryUsesEmptyTree(t *testing.T) {
	repoRoot := mustInitEmptyRepo(t)
	writeFile(t, repoRoot, "a.txt", "one\ntwo\n")
	runGitOrFail(t, repoRoot, "add", "--", "a.txt")

	repo := mustOpen(t, repoRoot)
	events := collectEvents(t, repo.Diff(context.Background(), vcs.DiffRequest{
		From:         vcs.SurfaceHead,
		To:           vcs.SurfaceIndex,
		Path:         "a.txt",
		ContextLines: 3,
	}))

	additions := 0
	for _, event := range events {
		if event.Kind == vcs.EventHunk && (event.Hunk.OldLines != 0 || event.Hunk.NewLines != 2) {
			t.Fatalf("unexpected hunk: %+v", event.Hunk)
		}
		if event.Kind == vcs.EventLine && event.Origin == vcs.OriginAddition {
			additions++
		}
	}
	if additions != 2 {
		t.Fatalf("unexpected addition count: got=%d want=2", additions)
	}
}

func TestDiffIncludeUntrackedUsesNoIndexDiff(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	writeFile(t, repoRoot, "fresh.txt", "x\ny\nz")

	repo := mustOpen(t, repoRoot)
	events := collectEvents(t, repo.Diff(context.Background(), vcs.DiffRequest{
		From:             vcs.SurfaceIndex,
		To:               vcs.SurfaceWorkdir,
		Path:             "fresh.txt",
		ContextLines:     3,
		IncludeUntracked: true,
	}))

	sawMarker := false
	additions := 0
	for _, event := range events {
		if event.Kind != vcs.EventLine {
			continue
		}
		switch event.Origin {
		case vcs.OriginAddition:
			additions++
		case vcs.OriginNoNewline:
			sawMarker = true
		}
	}
	if additions != 3 || !sawMarker {
		t.Fatalf("unexpected untracked diff: additions=%d marker=%v", additions, sawMarker)
	}
}

func TestApplyToIndexLeavesIndexUntouchedOnConflict(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	repo := mustOpen(t, repoRoot)
	before := indexSnapshot(t, repoRoot)

	patch := strings.Join([]string{
		"diff --git a/README.md b/README.md",
		"--- a/README.md",
		"+++ b/README.md",
		"@@ -1,1 +1,1 @@",
		"-not the current content",
		"+replacement",
		"",
	}, "\n")

	err := repo.ApplyToIndex(context.Background(), []byte(patch))
	if !errors.Is(err, vcs.ErrApplyConflict) {
		t.Fatalf("expected ErrApplyConflict, got: %v", err)
	}
	if after := indexSnapshot(t, repoRoot); after != before {
		t.Fatalf("index changed after failed apply:\nbefore=%s\nafter=%s", before, after)
	}
}

func TestApplyToIndexReportsHeldIndexLock(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	repo := mustOpen(t, repoRoot)

	lockPath := filepath.Join(repo.GitDir(), "index.lock")
	if err := os.WriteFile(lockPath, nil, 0o644); err != nil {
		t.Fatalf("failed to create lock: %v", err)
	}

	patch := strings.Join([]string{
		"diff --git a/README.md b/README.md",
		"--- a/README.md",
		"+++ b/README.md",
		"@@ -1,1 +1,1 @@",
		"-hello",
		"+hello there",
		"",
	}, "\n")

	err := repo.ApplyToIndex(context.Background(), []byte(patch))
	if !errors.Is(err, vcs.ErrIndexLocked) {
		t.Fatalf("expected ErrIndexLocked, got: %v", err)
	}
}

func TestResetPathsOnUnbornRepositoryDropsEntry(t *testing.T) {
	repoRoot := mustInitEmptyRepo(t)
	writeFile(t, repoRoot, "new.txt", "content\n")
	runGitOrFail(t, repoRoot, "add", "--", "new.txt")

	repo := mustOpen(t, repoRoot)
	if err := repo.ResetPaths(context.Background(), []string{"new.txt"}); err != nil {
		t.Fatalf("ResetPaths returned error: %v", err)
	}
	if _, tracked, err := repo.IndexEntry(context.Background(), "new.txt"); err != nil || tracked {
		t.Fatalf("expected new.txt to leave the index: tracked=%v err=%v", tracked, err)
	}
	if _, err := os.Stat(filepath.Join(repoRoot, "new.txt")); err != nil {
		t.Fatalf("working file should be untouched: %v", err)
	}
}

func TestCreateCommitOnUnbornRepository(t *testing.T) {
	repoRoot := mustInitEmptyRepo(t)
	writeFile(t, repoRoot, "a.txt", "a\n")
	runGitOrFail(t, repoRoot, "add", "--", "a.txt")

	repo := mustOpen(t, repoRoot)
	ctx := context.Background()

	staged, err := repo.HasStagedChanges(ctx)
	if err != nil || !staged {
		t.Fatalf("expected staged changes: staged=%v err=%v", staged, err)
	}

	commit, err := repo.CreateCommit(ctx, "first\n\nbody", vcs.Signature{Name: "Frisky Tests", Email: "tests@frisky.local"})
	if err != nil {
		t.Fatalf("CreateCommit returned error: %v", err)
	}
	if len(commit.Parents) != 0 {
		t.Fatalf("root commit should have no parents: %v", commit.Parents)
	}
	if commit.AuthorName != "Frisky Tests" {
		t.Fatalf("unexpected author: %s", commit.AuthorName)
	}

	head, err := repo.Head(ctx)
	if err != nil {
		t.Fatalf("Head returned error: %v", err)
	}
	if head.Unborn || head.Target != commit.ID {
		t.Fatalf("HEAD not advanced: %+v commit=%s", head, commit.ID)
	}

	staged, err = repo.HasStagedChanges(ctx)
	if err != nil || staged {
		t.Fatalf("expected clean index after commit: staged=%v err=%v", staged, err)
	}
}

func TestStateFromGitDir(t *testing.T) {
	gitDir := t.TempDir()
	if state := stateFromGitDir(gitDir); state != vcs.StateClean {
		t.Fatalf("unexpected state: got=%s want=%s", state, vcs.StateClean)
	}

	if err := os.WriteFile(filepath.Join(gitDir, "MERGE_HEAD"), []byte("abc\n"), 0o644); err != nil {
		t.Fatalf("failed to write MERGE_HEAD: %v", err)
	}
	if state := stateFromGitDir(gitDir); state != vcs.StateMerge {
		t.Fatalf("unexpected state: got=%s want=%s", state, vcs.StateMerge)
	}

	if err := os.MkdirAll(filepath.Join(gitDir, "rebase-merge"), 0o755); err != nil {
		t.Fatalf("failed to create rebase-merge: %v", err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "rebase-merge", "interactive"), nil, 0o644); err != nil {
		t.Fatalf("failed to write interactive marker: %v", err)
	}
	if state := stateFromGitDir(gitDir); state != vcs.StateRebaseInteractive {
		t.Fatalf("unexpected state: got=%s want=%s", state, vcs.StateRebaseInteractive)
	}
}

func TestSignatureMissingIdentity(t *testing.T) {
	isolateGitConfig(t)
	repoRoot := mustInitEmptyRepo(t)
	runGitOrFail(t, repoRoot, "config", "--unset", "user.name")

	repo := mustOpen(t, repoRoot)
	if _, err := repo.Signature(context.Background()); !errors.Is(err, vcs.ErrNoSignature) {
		t.Fatalf("expected ErrNoSignature, got: %v", err)
	}
}

func TestBranchTipsSkipsSymbolicRefs(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	runGitOrFail(t, repoRoot, "update-ref", "refs/remotes/origin/main", "HEAD")
	runGitOrFail(t, repoRoot, "symbolic-ref", "refs/remotes/origin/HEAD", "refs/remotes/origin/main")
	runGitOrFail(t, repoRoot, "branch", "feature")

	repo := mustOpen(t, repoRoot)
	tips, err := repo.BranchTips(context.Background())
	if err != nil {
		t.Fatalf("BranchTips returned error: %v", err)
	}
	if len(tips) != 1 {
		t.Fatalf("duplicate and symbolic tips should collapse to one: %v", tips)
	}
}

func collectEvents(t *testing.T, events iter.Seq2[vcs.DiffEvent, error]) []vcs.DiffEvent {
	t.Helper()
	out := make([]vcs.DiffEvent, 0)
	for event, err := range events {
		if err != nil {
			t.Fatalf("diff stream returned error: %v", err)
		}
		out = append(out, event)
	}
	return out
}

func indexSnapshot(t *testing.T, repoRoot string) string {
	t.Helper()
	out, _, _, err := runGitWithInput(context.Background(), "git", 5*time.Second, "", "-C", repoRoot, "ls-files", "--stage")
	if err != nil {
		t.Fatalf("ls-files failed: %v", err)
	}
	return out
}

func mustOpen(t *testing.T, repoRoot string) *Repository {
	t.Helper()
	repo, err := Open(repoRoot, vcs.Options{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	return repo
}

func isolateGitConfig(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
}

func mustInitEmptyRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}

	repoRoot := t.TempDir()
	runGitOrFail(t, repoRoot, "init", "-q")
	runGitOrFail(t, repoRoot, "config", "user.email", "tests@frisky.local")
	runGitOrFail(t, repoRoot, "config", "user.name", "Frisky Tests")
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

func runGitOrFail(t *testing.T, repoRoot string, args ...string) {
	t.Helper()

	allArgs := append([]string{"-C", repoRoot}, args...)
	_, stderr, _, err := runGitWithInput(context.Background(), "git", 5*time.Second, "", allArgs...)
	if err != nil {
		t.Fatalf("git %s failed: %v stderr=%s", strings.Join(args, " "), err, strings.TrimSpace(stderr))
	}
}
