package gitpanel

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

func eventStream(events []vcs.DiffEvent, tail error) iter.Seq2[vcs.DiffEvent, error] {
	return func(yield func(vcs.DiffEvent, error) bool) {
		for _, event := range events {
			if !yield(event, nil) {
				return
			}
		}
		if tail != nil {
			yield(vcs.DiffEvent{}, tail)
		}
	}
}

func hunkEvent(oldStart, oldLines, newStart, newLines int) vcs.DiffEvent {
	return vcs.DiffEvent{
		Kind: vcs.EventHunk,
		Hunk: vcs.HunkHeader{
			Header:   "@@ header @@\n",
			OldStart: oldStart,
			OldLines: oldLines,
			NewStart: newStart,
			NewLines: newLines,
		},
	}
}

func lineEvent(origin byte, content string) vcs.DiffEvent {
	return vcs.DiffEvent{Kind: vcs.EventLine, Origin: origin, Content: content}
}

func TestCollectHunksAssignsLineNumbers(t *testing.T) {
	t.Parallel()

	hunks, err := collectHunks(eventStream([]vcs.DiffEvent{
		{Kind: vcs.EventLine, Origin: vcs.OriginFileHeader, Content: "diff --git a/f b/f\n"},
		hunkEvent(3, 3, 3, 3),
		lineEvent(vcs.OriginContext, "a\n"),
		lineEvent(vcs.OriginDeletion, "b\n"),
		lineEvent(vcs.OriginAddition, "B\n"),
		lineEvent(vcs.OriginContext, "c\n"),
		hunkEvent(20, 1, 20, 2),
		lineEvent(vcs.OriginContext, "x\n"),
		lineEvent(vcs.OriginAddition, "y\n"),
	}, nil))
	require.NoError(t, err)
	require.Len(t, hunks, 2)

	first := hunks[0]
	assert.Equal(t, "@@ header @@", first.Header)
	require.Len(t, first.Lines, 4)
	assert.Equal(t, DiffLine{Content: "a", Type: LineContext, OldLineno: intPtr(3), NewLineno: intPtr(3)}, first.Lines[0])
	assert.Equal(t, DiffLine{Content: "b", Type: LineDeletion, OldLineno: intPtr(4)}, first.Lines[1])
	assert.Equal(t, DiffLine{Content: "B", Type: LineAddition, NewLineno: intPtr(4)}, first.Lines[2])
	assert.Equal(t, DiffLine{Content: "c", Type: LineContext, OldLineno: intPtr(5), NewLineno: intPtr(5)}, first.Lines[3])

	second := hunks[1]
	assert.Equal(t, 20, second.OldStart)
	assert.Equal(t, 2, second.NewLines)
	assert.Equal(t, 21, *second.Lines[1].NewLineno)
}

func TestCollectHunksMarksMissingNewline(t *testing.T) {
	t.Parallel()

	hunks, err := collectHunks(eventStream([]vcs.DiffEvent{
		hunkEvent(1, 1, 1, 1),
		lineEvent(vcs.OriginDeletion, "old"),
		lineEvent(vcs.OriginNoNewline, "\\ No newline at end of file\n"),
		lineEvent(vcs.OriginAddition, "new\n"),
	}, nil))
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	require.Len(t, hunks[0].Lines, 2)
	assert.True(t, hunks[0].Lines[0].NoNewlineAtEOF)
	assert.False(t, hunks[0].Lines[1].NoNewlineAtEOF)
}

func TestCollectHunksKeepsCarriageReturns(t *testing.T) {
	t.Parallel()

	hunks, err := collectHunks(eventStream([]vcs.DiffEvent{
		hunkEvent(1, 0, 1, 1),
		lineEvent(vcs.OriginAddition, "windows\r\n"),
	}, nil))
	require.NoError(t, err)
	assert.Equal(t, "windows\r", hunks[0].Lines[0].Content)
}

func TestCollectHunksPropagatesStreamError(t *testing.T) {
	t.Parallel()

	boom := errors.New("stream broke")
	_, err := collectHunks(eventStream([]vcs.DiffEvent{hunkEvent(1, 1, 1, 1)}, boom))
	assert.ErrorIs(t, err, boom)
}

func TestCollectHunksMarksNewFileHeader(t *testing.T) {
	t.Parallel()

	hunks, err := collectHunks(eventStream([]vcs.DiffEvent{
		{Kind: vcs.EventLine, Origin: vcs.OriginFileHeader, Content: "diff --git a/f b/f\n"},
		{Kind: vcs.EventLine, Origin: vcs.OriginFileHeader, Content: "new file mode 100644\n"},
		hunkEvent(0, 0, 1, 1),
		lineEvent(vcs.OriginAddition, "x\n"),
	}, nil))
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	assert.True(t, hunks[0].NewFile)
	require.Len(t, hunks[0].Lines, 1)

	plain, err := collectHunks(eventStream([]vcs.DiffEvent{hunkEvent(0, 0, 1, 1), lineEvent(vcs.OriginAddition, "x\n")}, nil))
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.False(t, plain[0].NewFile)
}

func TestAdditionHunk(t *testing.T) {
	t.Parallel()

	hunk := additionHunk("one\ntwo")
	assert.Equal(t, "@@ -0,0 +1,2 @@", hunk.Header)
	assert.Equal(t, 0, hunk.OldStart)
	assert.Equal(t, 1, hunk.NewStart)
	assert.Equal(t, 2, hunk.NewLines)
	require.Len(t, hunk.Lines, 2)
	assert.True(t, hunk.Lines[1].NoNewlineAtEOF)
	assert.Equal(t, 2, *hunk.Lines[1].NewLineno)

	empty := additionHunk("")
	assert.Equal(t, "@@ -0,0 +1,0 @@", empty.Header)
	assert.Empty(t, empty.Lines)
}

func TestExtractDiffUnstagedAndStaged(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	writeFile(t, repoRoot, "README.md", "hello\nworld\n")
	repo := mustOpenRepo(t, repoRoot)
	ctx := context.Background()

	unstaged, err := ExtractDiff(ctx, repo, "README.md", false)
	require.NoError(t, err)
	require.Len(t, unstaged, 1)
	assert.Equal(t, 1, unstaged[0].OldLines)
	assert.Equal(t, 2, unstaged[0].NewLines)

	staged, err := ExtractDiff(ctx, repo, "README.md", true)
	require.NoError(t, err)
	assert.Empty(t, staged)

	runGitOrFail(t, repoRoot, "add", "README.md")
	staged, err = ExtractDiff(ctx, repo, "README.md", true)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, "world", staged[0].Lines[len(staged[0].Lines)-1].Content)
}

func TestExtractDiffUntrackedFile(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	writeFile(t, repoRoot, "notes/todo.txt", "a\nb\nc")
	repo := mustOpenRepo(t, repoRoot)

	hunks, err := ExtractDiff(context.Background(), repo, "notes/todo.txt", false)
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	assert.Equal(t, 3, hunks[0].NewLines)
	assert.True(t, hunks[0].Lines[2].NoNewlineAtEOF)
	assert.True(t, hunks[0].NewFile)
}

func TestExtractDiffFlagsOnlyStagedCreation(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	writeFile(t, repoRoot, "fresh.txt", "one\n")
	runGitOrFail(t, repoRoot, "add", "fresh.txt")
	writeFile(t, repoRoot, "fresh.txt", "one\ntwo\n")
	repo := mustOpenRepo(t, repoRoot)
	ctx := context.Background()

	staged, err := ExtractDiff(ctx, repo, "fresh.txt", true)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.True(t, staged[0].NewFile)

	unstaged, err := ExtractDiff(ctx, repo, "fresh.txt", false)
	require.NoError(t, err)
	require.Len(t, unstaged, 1)
	assert.False(t, unstaged[0].NewFile)

	modified, err := ExtractDiff(ctx, repo, "README.md", true)
	require.NoError(t, err)
	assert.Empty(t, modified)
}

func TestExtractDiffUntrackedBinaryFileHasNoHunks(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "blob.bin"), []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}, 0o644))
	repo := mustOpenRepo(t, repoRoot)

	hunks, err := ExtractDiff(context.Background(), repo, "blob.bin", false)
	require.NoError(t, err)
	assert.Empty(t, hunks)
}

func TestExtractDiffEmptyUntrackedFileHasNoHunks(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	writeFile(t, repoRoot, "blank.txt", "")
	repo := mustOpenRepo(t, repoRoot)

	hunks, err := ExtractDiff(context.Background(), repo, "blank.txt", false)
	require.NoError(t, err)
	assert.Empty(t, hunks)
}

func TestExtractDiffMissingUntrackedFileFails(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	repo := mustOpenRepo(t, repoRoot)

	_, err := ExtractDiff(context.Background(), repo, "ghost.txt", false)
	require.Error(t, err)
	assert.Equal(t, CodeReadFailed, AsBindingError(err).Code)
}
