package gitcli

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

var diffHunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

var baseDiffArgs = []string{
	"diff",
	"--no-color",
	"--no-ext-diff",
	"--no-textconv",
	"--no-renames",
	"--src-prefix=a/",
	"--dst-prefix=b/",
}

func (r *Repository) Diff(ctx context.Context, req vcs.DiffRequest) iter.Seq2[vcs.DiffEvent, error] {
	return func(yield func(vcs.DiffEvent, error) bool) {
		args, err := r.diffArgs(ctx, req)
		if err != nil {
			yield(vcs.DiffEvent{}, err)
			return
		}

		out, err := r.read(ctx, args...)
		if err != nil && !(isNoIndexDiff(args) && exitStatus(err) == 1) {
			yield(vcs.DiffEvent{}, err)
			return
		}

		for event, parseErr := range parseDiffEvents(out) {
			if !yield(event, parseErr) || parseErr != nil {
				return
			}
		}
	}
}

func (r *Repository) diffArgs(ctx context.Context, req vcs.DiffRequest) ([]string, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return nil, fmt.Errorf("diff: path is required")
	}

	contextLines := req.ContextLines
	if contextLines < 0 {
		contextLines = 0
	}

	args := append(cloneArgs(baseDiffArgs), fmt.Sprintf("--unified=%d", contextLines))

	switch {
	case req.From == vcs.SurfaceHead && req.To == vcs.SurfaceIndex:
		base, err := r.diffBase(ctx)
		if err != nil {
			return nil, err
		}
		args = append(args, "--cached", base)
	case req.From == vcs.SurfaceIndex && req.To == vcs.SurfaceWorkdir:
		// gitpanel.ExtractDiff reads untracked files itself, so only direct
		// callers of Diff reach the --no-index path.
		if req.IncludeUntracked {
			untracked, err := r.isUntrackedFile(ctx, path)
			if err != nil {
				return nil, err
			}
			if untracked {
				args = append(args, "--no-index", "--", os.DevNull, path)
				return args, nil
			}
		}
	case req.From == vcs.SurfaceHead && req.To == vcs.SurfaceWorkdir:
		base, err := r.diffBase(ctx)
		if err != nil {
			return nil, err
		}
		args = append(args, base)
	default:
		return nil, fmt.Errorf("diff: unsupported surfaces %s -> %s", req.From, req.To)
	}

	return append(args, "--", path), nil
}

func (r *Repository) isUntrackedFile(ctx context.Context, path string) (bool, error) {
	_, tracked, err := r.IndexEntry(ctx, path)
	if err != nil || tracked {
		return false, err
	}
	info, statErr := os.Lstat(filepath.Join(r.root, filepath.FromSlash(path)))
	if statErr != nil {
		return false, nil
	}
	return !info.IsDir(), nil
}

func isNoIndexDiff(args []string) bool {
	for _, arg := range args {
		if arg == "--no-index" {
			return true
		}
	}
	return false
}

// parseDiffEvents lexes unified diff text into hunk and line events. Hunk
// bodies are delimited by the header counts, so body lines that happen to
// start with "diff" or "@@" are still read as lines.
func parseDiffEvents(raw string) iter.Seq2[vcs.DiffEvent, error] {
	return func(yield func(vcs.DiffEvent, error) bool) {
		lines := strings.Split(raw, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}

		remainingOld := 0
		remainingNew := 0
		for _, line := range lines {
			if remainingOld > 0 || remainingNew > 0 {
				origin := vcs.OriginContext
				content := ""
				if line != "" {
					origin = line[0]
					content = line[1:]
				}

				switch origin {
				case vcs.OriginContext:
					remainingOld--
					remainingNew--
				case vcs.OriginDeletion:
					remainingOld--
				case vcs.OriginAddition:
					remainingNew--
				case vcs.OriginNoNewline:
				default:
					yield(vcs.DiffEvent{}, fmt.Errorf("diff: unexpected line %q inside hunk", line))
					return
				}
				if remainingOld < 0 || remainingNew < 0 {
					yield(vcs.DiffEvent{}, fmt.Errorf("diff: hunk body longer than its header"))
					return
				}

				if !yield(vcs.DiffEvent{Kind: vcs.EventLine, Origin: origin, Content: content}, nil) {
					return
				}
				continue
			}

			switch {
			case strings.HasPrefix(line, `\`):
				if !yield(vcs.DiffEvent{Kind: vcs.EventLine, Origin: vcs.OriginNoNewline, Content: line[1:]}, nil) {
					return
				}
			case strings.HasPrefix(line, "@@ "):
				header, ok := parseHunkHeader(line)
				if !ok {
					yield(vcs.DiffEvent{}, fmt.Errorf("diff: malformed hunk header %q", line))
					return
				}
				remainingOld = header.OldLines
				remainingNew = header.NewLines
				if !yield(vcs.DiffEvent{Kind: vcs.EventHunk, Hunk: header}, nil) {
					return
				}
			case strings.HasPrefix(line, "Binary files "):
				if !yield(vcs.DiffEvent{Kind: vcs.EventLine, Origin: vcs.OriginBinary, Content: line}, nil) {
					return
				}
			default:
				if !yield(vcs.DiffEvent{Kind: vcs.EventLine, Origin: vcs.OriginFileHeader, Content: line}, nil) {
					return
				}
			}
		}

		if remainingOld > 0 || remainingNew > 0 {
			yield(vcs.DiffEvent{}, fmt.Errorf("diff: truncated hunk (%d old, %d new lines missing)", remainingOld, remainingNew))
		}
	}
}

func parseHunkHeader(line string) (vcs.HunkHeader, bool) {
	matches := diffHunkHeaderRegex.FindStringSubmatch(line)
	if len(matches) != 6 {
		return vcs.HunkHeader{}, false
	}
	return vcs.HunkHeader{
		Header:   line,
		OldStart: parseDiffInt(matches[1], 0),
		OldLines: parseDiffOptionalCount(matches[2]),
		NewStart: parseDiffInt(matches[3], 0),
		NewLines: parseDiffOptionalCount(matches[4]),
	}, true
}

func parseDiffOptionalCount(raw string) int {
	if strings.TrimSpace(raw) == "" {
		return 1
	}
	return parseDiffInt(raw, 1)
}

func parseDiffInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}
