package gitcli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

const (
	fieldSep  = "\x1f"
	commitFmt = "%H%x1f%an%x1f%ae%x1f%ct%x1f%P%x1f%B"
)

func (r *Repository) BranchTips(ctx context.Context) ([]string, error) {
	out, err := r.read(ctx, "for-each-ref", "--format=%(objectname)%00%(symref)", "refs/heads", "refs/remotes")
	if err != nil {
		return nil, err
	}

	tips := make([]string, 0)
	seen := make(map[string]struct{})
	for _, line := range splitLines(out) {
		target, symref, _ := strings.Cut(line, "\x00")
		target = strings.TrimSpace(target)
		if target == "" || strings.TrimSpace(symref) != "" {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		tips = append(tips, target)
	}
	return tips, nil
}

func (r *Repository) Branches(ctx context.Context) ([]vcs.BranchInfo, error) {
	out, err := r.read(ctx, "for-each-ref",
		"--format=%(refname)%00%(refname:short)%00%(objectname)%00%(HEAD)%00%(upstream)%00%(upstream:track,nobracket)",
		"refs/heads",
	)
	if err != nil {
		return nil, err
	}

	branches := make([]vcs.BranchInfo, 0)
	for _, line := range splitLines(out) {
		fields := strings.Split(line, "\x00")
		if len(fields) < 6 {
			continue
		}
		ahead, behind := parseTrackCounts(fields[5])
		branches = append(branches, vcs.BranchInfo{
			FullName: fields[0],
			Name:     fields[1],
			Target:   fields[2],
			IsHead:   strings.TrimSpace(fields[3]) == "*",
			Upstream: strings.TrimSpace(fields[4]),
			Ahead:    ahead,
			Behind:   behind,
		})
	}
	return branches, nil
}

// parseTrackCounts reads "ahead N, behind M" as printed by
// %(upstream:track,nobracket).
func parseTrackCounts(raw string) (int, int) {
	ahead := 0
	behind := 0
	for _, part := range strings.Split(raw, ",") {
		token := strings.TrimSpace(part)
		if strings.HasPrefix(token, "ahead ") {
			if value, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(token, "ahead "))); err == nil {
				ahead = value
			}
		}
		if strings.HasPrefix(token, "behind ") {
			if value, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(token, "behind "))); err == nil {
				behind = value
			}
		}
	}
	return ahead, behind
}

func (r *Repository) Walk(ctx context.Context, roots []string, limit int) ([]vcs.CommitInfo, error) {
	if len(roots) == 0 || limit <= 0 {
		return []vcs.CommitInfo{}, nil
	}

	args := []string{"log", "--no-color", "--date-order", "-z", "--format=" + commitFmt, "-n", strconv.Itoa(limit)}
	args = append(args, roots...)
	args = append(args, "--")

	out, err := r.read(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseCommitRecords(out)
}

func parseCommitRecords(raw string) ([]vcs.CommitInfo, error) {
	commits := make([]vcs.CommitInfo, 0)
	for _, record := range strings.Split(raw, "\x00") {
		record = strings.TrimPrefix(record, "\n")
		if strings.TrimSpace(record) == "" {
			continue
		}

		fields := strings.SplitN(record, fieldSep, 6)
		if len(fields) != 6 {
			return nil, fmt.Errorf("log: malformed commit record %q", truncate(record, 80))
		}
		timestamp, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("log: bad commit time %q: %w", fields[3], err)
		}

		commits = append(commits, vcs.CommitInfo{
			ID:          strings.TrimSpace(fields[0]),
			AuthorName:  fields[1],
			AuthorEmail: fields[2],
			Time:        timestamp,
			Parents:     strings.Fields(fields[4]),
			Message:     fields[5],
		})
	}
	return commits, nil
}

// CreateCommit writes the index as a tree, commits it on top of HEAD and
// advances HEAD. The ref update is guarded by the previous HEAD value.
func (r *Repository) CreateCommit(ctx context.Context, message string, sig vcs.Signature) (vcs.CommitInfo, error) {
	head, err := r.Head(ctx)
	if err != nil {
		return vcs.CommitInfo{}, err
	}

	treeOut, err := r.write(ctx, "", "write-tree")
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	tree := strings.TrimSpace(treeOut)

	args := []string{
		"-c", "user.name=" + sig.Name,
		"-c", "user.email=" + sig.Email,
		"commit-tree", tree,
	}
	if !head.Unborn {
		args = append(args, "-p", head.Target)
	}
	args = append(args, "-F", "-")

	commitOut, err := r.write(ctx, message, args...)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	commitID := strings.TrimSpace(commitOut)

	oldValue := head.Target
	reflog := "commit: " + firstLine(message)
	if head.Unborn {
		oldValue = ""
		reflog = "commit (initial): " + firstLine(message)
	}
	if _, err := r.write(ctx, "", "update-ref", "-m", reflog, "HEAD", commitID, oldValue); err != nil {
		return vcs.CommitInfo{}, err
	}

	commits, err := r.Walk(ctx, []string{commitID}, 1)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	if len(commits) == 0 {
		return vcs.CommitInfo{}, fmt.Errorf("commit %s not found after creation", commitID)
	}
	return commits[0], nil
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return strings.TrimSpace(line)
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}
