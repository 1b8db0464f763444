package gitpanel

import (
	"fmt"
	"strings"
)

const defaultFileMode = "100644"

// PatchOptions adjusts how a hunk is rendered as a patch.
type PatchOptions struct {
	// Reverse swaps the old and new sides so the patch undoes the hunk.
	Reverse bool
	// NewFile marks the hunk as creating the file. Reversed, the patch
	// deletes it.
	NewFile bool
	// FileMode is the git mode written for NewFile patches.
	FileMode string
}

// BuildPatch renders a single hunk as a unified diff that git apply accepts.
// The header is rebuilt from the hunk integers; the hunk's header text is not
// consulted.
func BuildPatch(filePath string, hunk DiffHunk, opts PatchOptions) (string, error) {
	if err := validateHunk(filePath, hunk, opts); err != nil {
		return "", err
	}

	oldName := quotePatchPath("a/" + filePath)
	newName := quotePatchPath("b/" + filePath)
	mode := strings.TrimSpace(opts.FileMode)
	if mode == "" {
		mode = defaultFileMode
	}

	var b strings.Builder
	b.Grow(128 + len(hunk.Lines)*40)
	fmt.Fprintf(&b, "diff --git %s %s\n", oldName, newName)

	switch {
	case opts.NewFile && !opts.Reverse:
		fmt.Fprintf(&b, "new file mode %s\n", mode)
		if len(hunk.Lines) == 0 {
			return b.String(), nil
		}
		fmt.Fprintf(&b, "--- /dev/null\n+++ %s\n", newName)
	case opts.NewFile && opts.Reverse:
		fmt.Fprintf(&b, "deleted file mode %s\n", mode)
		if len(hunk.Lines) == 0 {
			return b.String(), nil
		}
		fmt.Fprintf(&b, "--- %s\n+++ /dev/null\n", oldName)
	default:
		fmt.Fprintf(&b, "--- %s\n+++ %s\n", oldName, newName)
	}

	if opts.Reverse {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", hunk.NewStart, hunk.NewLines, hunk.OldStart, hunk.OldLines)
	} else {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", hunk.OldStart, hunk.OldLines, hunk.NewStart, hunk.NewLines)
	}

	for _, line := range hunk.Lines {
		b.WriteByte(linePrefix(line.Type, opts.Reverse))
		b.WriteString(line.Content)
		if !strings.HasSuffix(line.Content, "\n") {
			b.WriteByte('\n')
		}
		if line.NoNewlineAtEOF {
			b.WriteString("\\ No newline at end of file\n")
		}
	}

	return b.String(), nil
}

func linePrefix(lineType LineType, reverse bool) byte {
	switch lineType {
	case LineAddition:
		if reverse {
			return '-'
		}
		return '+'
	case LineDeletion:
		if reverse {
			return '+'
		}
		return '-'
	}
	return ' '
}

// validateHunk rejects hunks whose lines contradict their header integers.
func validateHunk(filePath string, hunk DiffHunk, opts PatchOptions) error {
	if strings.TrimSpace(filePath) == "" {
		return NewBindingError(CodePatchInvalid, "Invalid hunk.", "A file path is required.")
	}
	if strings.ContainsAny(filePath, "\x00\n") {
		return NewBindingError(CodePatchInvalid, "Invalid hunk.", "The file path contains control characters.")
	}
	if hunk.OldStart < 0 || hunk.OldLines < 0 || hunk.NewStart < 0 || hunk.NewLines < 0 {
		return NewBindingError(CodePatchInvalid, "Invalid hunk.", "Hunk ranges must not be negative.")
	}
	if opts.NewFile && (hunk.OldStart != 0 || hunk.OldLines != 0) {
		return NewBindingError(
			CodePatchInvalid,
			"Invalid hunk.",
			fmt.Sprintf("A file creation hunk must have an empty old side, got -%d,%d.", hunk.OldStart, hunk.OldLines),
		)
	}

	oldCount := 0
	newCount := 0
	for i, line := range hunk.Lines {
		if strings.Contains(strings.TrimSuffix(line.Content, "\n"), "\n") {
			return NewBindingError(CodePatchInvalid, "Invalid hunk.", fmt.Sprintf("Line %d contains an embedded newline.", i+1))
		}
		switch line.Type {
		case LineContext:
			oldCount++
			newCount++
		case LineDeletion:
			oldCount++
		case LineAddition:
			newCount++
		default:
			return NewBindingError(CodePatchInvalid, "Invalid hunk.", fmt.Sprintf("Line %d has unknown type %q.", i+1, line.Type))
		}
	}

	if oldCount != hunk.OldLines || newCount != hunk.NewLines {
		return NewBindingError(
			CodePatchInvalid,
			"Invalid hunk.",
			fmt.Sprintf("Header says -%d,%d +%d,%d but lines give %d old and %d new.",
				hunk.OldStart, hunk.OldLines, hunk.NewStart, hunk.NewLines, oldCount, newCount),
		)
	}
	return nil
}

// quotePatchPath quotes a path the way git does when it contains bytes that
// would otherwise be ambiguous in a patch header.
func quotePatchPath(name string) string {
	needsQuote := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c >= 0x7f || c == '"' || c == '\\' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return name
	}

	var b strings.Builder
	b.Grow(len(name) + 8)
	b.WriteByte('"')
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&b, `\%03o`, c)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
