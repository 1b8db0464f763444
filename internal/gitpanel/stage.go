package gitpanel

import (
	"context"
	"os"
	"path/filepath"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

// ApplyHunk stages (reverse=false) or unstages (reverse=true) a single hunk.
// Only the index changes. If the hunk no longer matches the index the call
// fails with CodeApplyFailed and nothing is written.
func ApplyHunk(ctx context.Context, repo vcs.Repository, filePath string, hunk DiffHunk, reverse bool) error {
	opts := PatchOptions{Reverse: reverse, NewFile: hunk.NewFile}

	if reverse {
		if hunk.NewFile {
			// A stale flag must not delete a path HEAD still has.
			inHead, err := repo.HeadHasPath(ctx, filePath)
			if err != nil {
				return classifyError(err, CodeApplyFailed, "Failed to inspect HEAD.")
			}
			opts.NewFile = !inHead
		}
		if opts.NewFile {
			opts.FileMode = indexFileMode(ctx, repo, filePath)
		}
	} else {
		if !hunk.NewFile {
			_, tracked, err := repo.IndexEntry(ctx, filePath)
			if err != nil {
				return classifyError(err, CodeApplyFailed, "Failed to inspect the index.")
			}
			opts.NewFile = !tracked
		}
		if opts.NewFile {
			opts.FileMode = worktreeFileMode(repo.Root(), filePath)
		}
	}

	patch, err := BuildPatch(filePath, hunk, opts)
	if err != nil {
		return err
	}
	if err := checkPatchTarget(repo.Root(), filePath, patch); err != nil {
		return err
	}

	if err := repo.ApplyToIndex(ctx, []byte(patch)); err != nil {
		return classifyError(err, CodeApplyFailed, "Failed to apply hunk to the index.")
	}
	return nil
}

// StagePaths adds whole files to the index.
func StagePaths(ctx context.Context, repo vcs.Repository, paths []string) error {
	if err := repo.AddPaths(ctx, paths); err != nil {
		return classifyError(err, CodeCommandFailed, "Failed to stage files.")
	}
	return nil
}

// UnstagePaths restores index entries from HEAD. Paths HEAD does not know
// about, or every path in an unborn repository, are removed from the index.
func UnstagePaths(ctx context.Context, repo vcs.Repository, paths []string) error {
	if err := repo.ResetPaths(ctx, paths); err != nil {
		return classifyError(err, CodeCommandFailed, "Failed to unstage files.")
	}
	return nil
}

func worktreeFileMode(repoRoot string, relPath string) string {
	info, err := os.Lstat(filepath.Join(repoRoot, filepath.FromSlash(relPath)))
	if err != nil {
		return defaultFileMode
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return "120000"
	case info.Mode().Perm()&0o111 != 0:
		return "100755"
	}
	return defaultFileMode
}

func indexFileMode(ctx context.Context, repo vcs.Repository, relPath string) string {
	entry, tracked, err := repo.IndexEntry(ctx, relPath)
	if err != nil || !tracked || entry.Mode == "" {
		return defaultFileMode
	}
	return entry.Mode
}
