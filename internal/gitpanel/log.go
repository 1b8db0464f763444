package gitpanel

import (
	"context"
	"strings"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

const (
	DefaultLogLimit   = 500
	unknownAuthorName = "Unknown"
)

// ReadLog walks history from every local and remote branch tip, newest
// first. With no branches it falls back to HEAD; an unborn repository
// yields an empty list.
func ReadLog(ctx context.Context, repo vcs.Repository, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}

	roots, err := repo.BranchTips(ctx)
	if err != nil {
		return nil, classifyError(err, CodeCommandFailed, "Failed to list branches.")
	}
	if len(roots) == 0 {
		head, headErr := repo.Head(ctx)
		if headErr != nil {
			return nil, classifyError(headErr, CodeCommandFailed, "Failed to resolve HEAD.")
		}
		if !head.Unborn && head.Target != "" {
			roots = []string{head.Target}
		}
	}
	if len(roots) == 0 {
		return []Commit{}, nil
	}

	infos, err := repo.Walk(ctx, roots, limit)
	if err != nil {
		return nil, classifyError(err, CodeCommandFailed, "Failed to walk commit history.")
	}

	commits := make([]Commit, 0, len(infos))
	for _, info := range infos {
		commit := commitFromInfo(info)
		message := info.Message
		commit.Message = &message
		commits = append(commits, commit)
	}
	return commits, nil
}

func commitFromInfo(info vcs.CommitInfo) Commit {
	author := info.AuthorName
	if strings.TrimSpace(author) == "" {
		author = unknownAuthorName
	}
	parents := info.Parents
	if parents == nil {
		parents = []string{}
	}
	return Commit{
		ID:        info.ID,
		Author:    author,
		Email:     info.AuthorEmail,
		Timestamp: info.Time,
		Summary:   commitSummary(info.Message),
		Parents:   parents,
	}
}

func commitSummary(message string) string {
	line, _, _ := strings.Cut(strings.TrimLeft(message, "\n"), "\n")
	return strings.TrimSpace(line)
}
