package gitpanel

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

func TestReadLogNewestFirstWithLimit(t *testing.T) {
	repoRoot := mustInitEmptyRepo(t)
	base := int64(1_700_000_000)
	for i := 1; i <= 5; i++ {
		writeFile(t, repoRoot, "log.txt", fmt.Sprintf("%d\n", i))
		runGitOrFail(t, repoRoot, "add", "log.txt")
		commitAt(t, repoRoot, fmt.Sprintf("commit %d\n\nbody %d", i, i), base+int64(i)*60)
	}

	repo := mustOpenRepo(t, repoRoot)
	commits, err := ReadLog(context.Background(), repo, 2)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, "commit 5", commits[0].Summary)
	assert.Equal(t, "commit 4", commits[1].Summary)
	assert.Equal(t, base+300, commits[0].Timestamp)
	assert.Equal(t, "Frisky Tests", commits[0].Author)
	assert.Equal(t, "tests@frisky.local", commits[0].Email)
	assert.Equal(t, []string{commits[1].ID}, commits[0].Parents)
	require.NotNil(t, commits[0].Message)
	assert.Contains(t, *commits[0].Message, "body 5")
	assert.Nil(t, commits[0].Lane)
	assert.Empty(t, commits[0].Refs)
}

func TestReadLogIncludesEveryBranch(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	base := int64(1_700_000_000)
	runGitOrFail(t, repoRoot, "checkout", "-q", "-b", "feature")
	commitAt(t, repoRoot, "on feature", base+100)
	runGitOrFail(t, repoRoot, "checkout", "-q", "-")

	repo := mustOpenRepo(t, repoRoot)
	commits, err := ReadLog(context.Background(), repo, 0)
	require.NoError(t, err)

	summaries := make([]string, 0, len(commits))
	for _, c := range commits {
		summaries = append(summaries, c.Summary)
	}
	assert.Contains(t, summaries, "on feature")
	assert.Contains(t, summaries, "initial commit")
}

func TestReadLogOnUnbornRepositoryIsEmpty(t *testing.T) {
	repoRoot := mustInitEmptyRepo(t)
	repo := mustOpenRepo(t, repoRoot)

	commits, err := ReadLog(context.Background(), repo, 10)
	require.NoError(t, err)
	assert.NotNil(t, commits)
	assert.Empty(t, commits)
}

func TestCommitFromInfoDefaults(t *testing.T) {
	t.Parallel()

	commit := commitFromInfo(vcs.CommitInfo{ID: "abc", Message: "\n\nsubject line  \nmore"})
	assert.Equal(t, unknownAuthorName, commit.Author)
	assert.Equal(t, "subject line", commit.Summary)
	assert.NotNil(t, commit.Parents)
	assert.Empty(t, commit.Parents)
}
