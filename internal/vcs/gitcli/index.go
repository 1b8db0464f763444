package gitcli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

func (r *Repository) IndexEntry(ctx context.Context, path string) (vcs.IndexEntry, bool, error) {
	out, err := r.read(ctx, "ls-files", "--stage", "-z", "--", path)
	if err != nil {
		return vcs.IndexEntry{}, false, err
	}

	for _, record := range strings.Split(out, "\x00") {
		if record == "" {
			continue
		}
		meta, entryPath, ok := strings.Cut(record, "\t")
		if !ok || entryPath != path {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) < 2 {
			continue
		}
		return vcs.IndexEntry{Path: entryPath, Mode: fields[0], ID: fields[1]}, true, nil
	}
	return vcs.IndexEntry{}, false, nil
}

func (r *Repository) HeadHasPath(ctx context.Context, path string) (bool, error) {
	head, err := r.Head(ctx)
	if err != nil {
		return false, err
	}
	if head.Unborn {
		return false, nil
	}

	out, err := r.read(ctx, "ls-tree", "-z", "--full-tree", head.Target, "--", path)
	if err != nil {
		return false, err
	}
	for _, record := range strings.Split(out, "\x00") {
		if _, entryPath, ok := strings.Cut(record, "\t"); ok && entryPath == path {
			return true, nil
		}
	}
	return false, nil
}

// ApplyToIndex runs git apply against the index. git apply checks every hunk
// before writing, so a failed apply leaves the index untouched.
func (r *Repository) ApplyToIndex(ctx context.Context, patch []byte) error {
	if len(patch) == 0 {
		return fmt.Errorf("%w: empty patch", vcs.ErrApplyConflict)
	}

	_, err := r.write(ctx, string(patch), "apply", "--cached", "--whitespace=nowarn", "-")
	if err == nil {
		return nil
	}
	if errors.Is(err, vcs.ErrIndexLocked) {
		return err
	}

	var cmdErr *vcs.CommandError
	if errors.As(err, &cmdErr) && exitStatus(err) > 0 {
		cmdErr.Err = fmt.Errorf("%w: %v", vcs.ErrApplyConflict, cmdErr.Err)
	}
	return err
}

func (r *Repository) AddPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--all", "--"}, paths...)
	_, err := r.write(ctx, "", args...)
	return err
}

func (r *Repository) ResetPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	head, err := r.Head(ctx)
	if err != nil {
		return err
	}

	var args []string
	if head.Unborn {
		args = append([]string{"rm", "--cached", "-r", "-q", "--ignore-unmatch", "--"}, paths...)
	} else {
		args = append([]string{"reset", "-q", head.Target, "--"}, paths...)
	}
	_, err = r.write(ctx, "", args...)
	return err
}

func (r *Repository) HasStagedChanges(ctx context.Context) (bool, error) {
	base, err := r.diffBase(ctx)
	if err != nil {
		return false, err
	}

	_, err = r.read(ctx, "diff", "--cached", "--quiet", "--no-ext-diff", base, "--")
	if err == nil {
		return false, nil
	}
	if exitStatus(err) == 1 {
		return true, nil
	}
	return false, err
}
