package gitpanel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errNoPatchHeader    = errors.New("patch has no file header")
	errBadPatchHeader   = errors.New("malformed patch header")
	errForeignPatchPath = errors.New("patch targets a different file")
)

// checkPatchTarget verifies that a synthesized patch only names filePath and
// that the path stays inside the repository. It runs before the patch
// reaches the index.
func checkPatchTarget(repoRoot string, filePath string, patch string) error {
	want, err := ensurePathWithinRepo(repoRoot, filePath)
	if err != nil {
		return err
	}
	paths, err := patchHeaderPaths(patch)
	if err != nil {
		return NewBindingError(CodePatchInvalid, "Invalid patch for partial staging.", err.Error())
	}

	for _, p := range paths {
		clean, pathErr := ensurePathWithinRepo(repoRoot, p)
		if pathErr != nil {
			details := pathErr.Error()
			if bindingErr := AsBindingError(pathErr); bindingErr != nil {
				details = firstNonBlank(bindingErr.Details, bindingErr.Message)
			}
			return NewBindingError(
				CodePatchInvalid,
				"Patch touches a path outside the repository.",
				fmt.Sprintf("path=%q | %s", p, details),
			)
		}
		if clean != want {
			return NewBindingError(
				CodePatchInvalid,
				"Patch touches an unexpected file.",
				fmt.Sprintf("%v: path=%q want=%q", errForeignPatchPath, clean, want),
			)
		}
	}
	return nil
}

// patchHeaderPaths returns the distinct paths named by the file header of a
// single-file patch. Reading stops at the first hunk.
func patchHeaderPaths(patch string) ([]string, error) {
	var paths []string
	add := func(p string) {
		if p == "" {
			return
		}
		for _, existing := range paths {
			if existing == p {
				return
			}
		}
		paths = append(paths, p)
	}

	for line := range strings.Lines(patch) {
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, "@@") {
			break
		}

		switch {
		case strings.HasPrefix(line, "diff --git "):
			left, right, ok := splitDiffGitPaths(line[len("diff --git "):])
			if !ok {
				return nil, errBadPatchHeader
			}
			add(left)
			add(right)
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			p, rest, ok := readPatchPath(line[4:], true)
			if !ok || strings.TrimSpace(rest) != "" {
				return nil, errBadPatchHeader
			}
			add(p)
		}
	}

	if len(paths) == 0 {
		return nil, errNoPatchHeader
	}
	return paths, nil
}

// splitDiffGitPaths splits the two sides of a "diff --git" line. Unquoted
// sides may contain spaces, so they are split where both halves name the
// same path.
func splitDiffGitPaths(s string) (string, string, bool) {
	if strings.HasPrefix(s, "\"") {
		left, rest, ok := readPatchPath(s, false)
		if !ok {
			return "", "", false
		}
		right, rest, ok := readPatchPath(rest, true)
		return left, right, ok && rest == ""
	}

	if len(s)%2 == 0 {
		return "", "", false
	}
	mid := len(s) / 2
	if s[mid] != ' ' {
		return "", "", false
	}
	left, _, okLeft := readPatchPath(s[:mid], true)
	right, _, okRight := readPatchPath(s[mid+1:], true)
	if !okLeft || !okRight || left != right {
		return "", "", false
	}
	return left, right, true
}

// readPatchPath reads one path token, quoted or bare, and strips the a/ or
// b/ side prefix. A bare token runs to the end of s when toEnd is set,
// otherwise to the next space. /dev/null yields an empty path.
func readPatchPath(s string, toEnd bool) (path string, rest string, ok bool) {
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return "", "", false
	}

	var token string
	switch {
	case s[0] == '"':
		quoted, err := strconv.QuotedPrefix(s)
		if err != nil {
			return "", "", false
		}
		if token, err = strconv.Unquote(quoted); err != nil {
			return "", "", false
		}
		rest = strings.TrimRight(s[len(quoted):], "\t")
	case toEnd:
		token = strings.TrimRight(s, "\t")
	default:
		token, rest, _ = strings.Cut(s, " ")
	}

	if token == "/dev/null" {
		return "", rest, true
	}
	if strings.HasPrefix(token, "a/") || strings.HasPrefix(token, "b/") {
		token = token[2:]
	}
	if token == "" {
		return "", "", false
	}
	return token, rest, true
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
