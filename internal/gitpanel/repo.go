package gitpanel

import (
	"context"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

// SummarizeRepo describes HEAD, local branches and the in-progress operation
// of a freshly opened repository.
func SummarizeRepo(ctx context.Context, repo vcs.Repository) (RepoSummary, error) {
	summary := RepoSummary{
		Path:     repo.Root(),
		Branches: make([]Branch, 0),
		IsBare:   repo.IsBare(),
		State:    RepoStateClean,
	}

	head, err := repo.Head(ctx)
	if err != nil {
		return summary, classifyError(err, CodeOpenFailed, "Failed to resolve HEAD.")
	}
	summary.IsDetached = head.Detached
	switch {
	case head.Detached && head.Target != "":
		target := head.Target
		summary.Head = &target
	case head.Name != "":
		name := head.Name
		summary.Head = &name
	}

	branches, err := repo.Branches(ctx)
	if err != nil {
		return summary, classifyError(err, CodeOpenFailed, "Failed to list branches.")
	}
	for _, branch := range branches {
		item := Branch{
			Name:     branch.Name,
			FullName: branch.FullName,
			IsHead:   branch.IsHead,
			IsRemote: branch.IsRemote,
			Ahead:    branch.Ahead,
			Behind:   branch.Behind,
		}
		if branch.Upstream != "" {
			upstream := branch.Upstream
			item.Upstream = &upstream
		}
		summary.Branches = append(summary.Branches, item)
	}

	state, err := repo.State(ctx)
	if err != nil {
		return summary, classifyError(err, CodeOpenFailed, "Failed to read repository state.")
	}
	summary.State = RepoState(state)

	return summary, nil
}
