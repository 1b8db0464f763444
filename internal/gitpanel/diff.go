package gitpanel

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

const (
	// DiffContextLines is the number of unchanged lines around each change.
	DiffContextLines = 3

	binarySniffBytes = 8000
)

// ExtractDiff returns the hunks for one path. Staged diffs compare HEAD (or
// the empty tree) with the index; unstaged diffs compare the index with the
// working directory. Untracked files are read from disk and returned as a
// single all-addition hunk.
func ExtractDiff(ctx context.Context, repo vcs.Repository, relPath string, staged bool) ([]DiffHunk, error) {
	if !staged {
		_, tracked, err := repo.IndexEntry(ctx, relPath)
		if err != nil {
			return nil, classifyError(err, CodeDiffFailed, "Failed to inspect the index.")
		}
		if !tracked {
			return untrackedFileHunks(repo.Root(), relPath)
		}
	}

	req := vcs.DiffRequest{
		From:         vcs.SurfaceIndex,
		To:           vcs.SurfaceWorkdir,
		Path:         relPath,
		ContextLines: DiffContextLines,
	}
	if staged {
		req.From = vcs.SurfaceHead
		req.To = vcs.SurfaceIndex
	} else {
		req.IncludeUntracked = true
	}

	hunks, err := collectHunks(repo.Diff(ctx, req))
	if err != nil {
		return nil, classifyError(err, CodeDiffFailed, "Failed to compute diff.")
	}
	if !staged {
		// The path has an index entry, so no unstaged hunk creates it.
		for i := range hunks {
			hunks[i].NewFile = false
		}
	}
	return hunks, nil
}

// collectHunks folds a diff event stream into hunks. Each hunk event opens a
// new hunk; line events attach to the most recent one. A "new file mode"
// header marks every hunk as creating the file.
func collectHunks(events iter.Seq2[vcs.DiffEvent, error]) ([]DiffHunk, error) {
	hunks := make([]DiffHunk, 0, 4)
	oldLine := 0
	newLine := 0
	created := false

	for event, err := range events {
		if err != nil {
			return nil, err
		}

		switch event.Kind {
		case vcs.EventHunk:
			hunks = append(hunks, DiffHunk{
				Header:   strings.TrimSpace(event.Hunk.Header),
				OldStart: event.Hunk.OldStart,
				OldLines: event.Hunk.OldLines,
				NewStart: event.Hunk.NewStart,
				NewLines: event.Hunk.NewLines,
				Lines:    make([]DiffLine, 0, event.Hunk.OldLines+event.Hunk.NewLines),
				NewFile:  created,
			})
			oldLine = event.Hunk.OldStart
			newLine = event.Hunk.NewStart

		case vcs.EventLine:
			if event.Origin == vcs.OriginFileHeader {
				if strings.HasPrefix(event.Content, "new file mode ") {
					created = true
				}
				continue
			}
			if len(hunks) == 0 {
				continue
			}
			current := &hunks[len(hunks)-1]
			content := strings.TrimSuffix(event.Content, "\n")

			// Neither backend sends the EOFNL origins. The libgit2 lineOrigin
			// folds them into OriginNoNewline and gitcli emits the marker line.
			switch event.Origin {
			case vcs.OriginAddition, vcs.OriginAddEOFNL:
				current.Lines = append(current.Lines, DiffLine{
					Content:   content,
					Type:      LineAddition,
					NewLineno: intPtr(newLine),
				})
				newLine++
			case vcs.OriginDeletion, vcs.OriginDelEOFNL:
				current.Lines = append(current.Lines, DiffLine{
					Content:   content,
					Type:      LineDeletion,
					OldLineno: intPtr(oldLine),
				})
				oldLine++
			case vcs.OriginContext, vcs.OriginContextEOFNL:
				current.Lines = append(current.Lines, DiffLine{
					Content:   content,
					Type:      LineContext,
					OldLineno: intPtr(oldLine),
					NewLineno: intPtr(newLine),
				})
				oldLine++
				newLine++
			case vcs.OriginNoNewline:
				if n := len(current.Lines); n > 0 {
					current.Lines[n-1].NoNewlineAtEOF = true
				}
			}
		}
	}

	return hunks, nil
}

// untrackedFileHunks reads a file that is not in the index and presents its
// whole content as additions.
func untrackedFileHunks(repoRoot string, relPath string) ([]DiffHunk, error) {
	fullPath := filepath.Join(repoRoot, filepath.FromSlash(relPath))

	info, err := os.Lstat(fullPath)
	if err != nil {
		return nil, NewBindingError(CodeReadFailed, "Failed to read file.", err.Error())
	}

	var data []byte
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, linkErr := os.Readlink(fullPath)
		if linkErr != nil {
			return nil, NewBindingError(CodeReadFailed, "Failed to read symlink.", linkErr.Error())
		}
		data = []byte(target)
	case info.IsDir():
		return nil, NewBindingError(CodeReadFailed, "Failed to read file.", fmt.Sprintf("%s is a directory", relPath))
	default:
		data, err = os.ReadFile(fullPath)
		if err != nil {
			return nil, NewBindingError(CodeReadFailed, "Failed to read file.", err.Error())
		}
	}

	if len(data) == 0 || isBinaryContent(data) {
		return []DiffHunk{}, nil
	}
	hunk := additionHunk(string(data))
	hunk.NewFile = true
	return []DiffHunk{hunk}, nil
}

func additionHunk(content string) DiffHunk {
	var lines []string
	missingNewline := false
	if content != "" {
		missingNewline = !strings.HasSuffix(content, "\n")
		lines = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	}

	hunk := DiffHunk{
		Header:   fmt.Sprintf("@@ -0,0 +1,%d @@", len(lines)),
		OldStart: 0,
		OldLines: 0,
		NewStart: 1,
		NewLines: len(lines),
		Lines:    make([]DiffLine, 0, len(lines)),
	}
	for i, line := range lines {
		hunk.Lines = append(hunk.Lines, DiffLine{
			Content:   line,
			Type:      LineAddition,
			NewLineno: intPtr(i + 1),
		})
	}
	if missingNewline && len(hunk.Lines) > 0 {
		hunk.Lines[len(hunk.Lines)-1].NoNewlineAtEOF = true
	}
	return hunk
}

func isBinaryContent(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffBytes {
		sniff = sniff[:binarySniffBytes]
	}
	return bytes.IndexByte(sniff, 0) >= 0
}

func intPtr(value int) *int {
	return &value
}
