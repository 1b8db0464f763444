package gitpanel

import (
	"context"
	"fmt"
	"strings"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

var stateLabels = map[vcs.State]string{
	vcs.StateMerge:             "merge",
	vcs.StateRebase:            "rebase",
	vcs.StateRebaseInteractive: "interactive rebase",
	vcs.StateRebaseMerge:       "rebase",
	vcs.StateRevert:            "revert",
	vcs.StateCherryPick:        "cherry-pick",
	vcs.StateBisect:            "bisect",
}

// CreateCommit records the index as a new commit on HEAD. It refuses to run
// mid-operation, without an author identity, or with nothing staged.
func CreateCommit(ctx context.Context, repo vcs.Repository, message string) (Commit, error) {
	if strings.TrimSpace(message) == "" {
		return Commit{}, NewBindingError(CodeInvalidArgument, "Commit message is required.", "")
	}

	state, err := repo.State(ctx)
	if err != nil {
		return Commit{}, classifyError(err, CodeCommandFailed, "Failed to read repository state.")
	}
	if state != vcs.StateClean {
		label := stateLabels[state]
		if label == "" {
			label = string(state)
		}
		return Commit{}, NewBindingError(
			CodeStateBlocked,
			fmt.Sprintf("Cannot commit during %s. Please complete or abort the current operation.", label),
			string(state),
		)
	}

	sig, err := repo.Signature(ctx)
	if err != nil {
		return Commit{}, classifyError(err, CodeSigningMissing, "No author identity configured.")
	}

	staged, err := repo.HasStagedChanges(ctx)
	if err != nil {
		return Commit{}, classifyError(err, CodeCommandFailed, "Failed to inspect staged changes.")
	}
	if !staged {
		return Commit{}, NewBindingError(CodeNothingToCommit, "Nothing to commit.", "Stage changes before committing.")
	}

	info, err := repo.CreateCommit(ctx, message, sig)
	if err != nil {
		return Commit{}, classifyError(err, CodeCommandFailed, "Failed to create commit.")
	}

	commit := commitFromInfo(info)
	if info.AuthorName == "" {
		commit.Author = sig.Name
	}
	if info.AuthorEmail == "" {
		commit.Email = sig.Email
	}
	return commit, nil
}
