package gitpanel

import (
	"context"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

type statusRule struct {
	flag   vcs.StatusFlag
	status FileStatus
}

// Rules are checked in order; the first match wins. Type changes come last
// so they only classify paths nothing else claims.
var (
	stagedRules = []statusRule{
		{flag: vcs.StatusIndexNew, status: FileAdded},
		{flag: vcs.StatusIndexModified, status: FileModified},
		{flag: vcs.StatusIndexDeleted, status: FileDeleted},
		{flag: vcs.StatusIndexRenamed, status: FileRenamed},
		{flag: vcs.StatusIndexTypeChange, status: FileModified},
	}
	unstagedRules = []statusRule{
		{flag: vcs.StatusWtNew, status: FileUntracked},
		{flag: vcs.StatusWtModified, status: FileModified},
		{flag: vcs.StatusWtDeleted, status: FileDeleted},
		{flag: vcs.StatusWtRenamed, status: FileRenamed},
		{flag: vcs.StatusWtTypeChange, status: FileModified},
	}
)

// CollectStatus reads per-path status flags and splits them into the staged
// and unstaged buckets.
func CollectStatus(ctx context.Context, repo vcs.Repository) (StatusPayload, error) {
	entries, err := repo.Statuses(ctx)
	if err != nil {
		return StatusPayload{}, classifyError(err, CodeCommandFailed, "Failed to read repository status.")
	}
	return aggregateStatus(entries), nil
}

func aggregateStatus(entries []vcs.StatusEntry) StatusPayload {
	payload := StatusPayload{
		Staged:   make([]FileChange, 0),
		Unstaged: make([]FileChange, 0),
	}

	for _, entry := range entries {
		if status, ok := matchStatus(entry.Flags, stagedRules); ok {
			payload.Staged = append(payload.Staged, newFileChange(entry, status))
		}
		if status, ok := matchStatus(entry.Flags, unstagedRules); ok {
			payload.Unstaged = append(payload.Unstaged, newFileChange(entry, status))
		}
		if entry.Flags.Has(vcs.StatusConflicted) {
			payload.Unstaged = append(payload.Unstaged, newFileChange(entry, FileConflicted))
		}
	}

	return payload
}

func matchStatus(flags vcs.StatusFlag, rules []statusRule) (FileStatus, bool) {
	for _, rule := range rules {
		if flags.Has(rule.flag) {
			return rule.status, true
		}
	}
	return "", false
}

func newFileChange(entry vcs.StatusEntry, status FileStatus) FileChange {
	change := FileChange{
		Path:   entry.Path,
		Status: status,
	}
	if status == FileRenamed && entry.OldPath != "" {
		oldPath := entry.OldPath
		change.OldPath = &oldPath
	}
	return change
}
