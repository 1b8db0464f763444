package gitpanel

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ensurePathWithinRepo normalizes a client-supplied repository-relative path
// and rejects anything that escapes repoRoot.
func ensurePathWithinRepo(repoRoot string, filePath string) (string, error) {
	trimmed := strings.TrimSpace(filePath)
	if trimmed == "" {
		return "", NewBindingError(
			CodeInvalidPath,
			"File path is required.",
			"Provide a path relative to the repository root.",
		)
	}

	if strings.ContainsRune(trimmed, '\x00') {
		return "", NewBindingError(
			CodeInvalidPath,
			"Invalid file path.",
			"NUL characters are not allowed in paths.",
		)
	}

	normalizedInput := strings.ReplaceAll(filepath.ToSlash(trimmed), "\\", "/")
	normalized := path.Clean(normalizedInput)
	if normalized == "." || normalized == ".." || strings.HasPrefix(normalized, "../") || strings.HasPrefix(normalized, "/") || filepath.IsAbs(trimmed) {
		return "", NewBindingError(
			CodeInvalidPath,
			"Invalid file path.",
			"Only paths relative to the repository root are accepted.",
		)
	}
	if normalized == ".git" || strings.HasPrefix(normalized, ".git/") {
		return "", NewBindingError(
			CodeRepoOutOfScope,
			"Path is outside the working tree.",
			normalized,
		)
	}

	rootAbs, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", wrapBindingError(CodeOpenFailed, "Failed to resolve the repository root.", err)
	}
	targetAbs := filepath.Join(rootAbs, filepath.FromSlash(normalized))

	relPath, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", wrapBindingError(CodeInvalidPath, "Invalid file path.", err)
	}
	if relPath == "." || relPath == ".." || strings.HasPrefix(relPath, ".."+string(os.PathSeparator)) {
		return "", NewBindingError(
			CodeRepoOutOfScope,
			"Path is outside the repository.",
			normalized,
		)
	}

	return normalized, nil
}

func cleanRepoPaths(repoRoot string, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, NewBindingError(CodeInvalidArgument, "No paths given.", "Provide at least one file path.")
	}
	cleaned := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		clean, err := ensurePathWithinRepo(repoRoot, p)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		cleaned = append(cleaned, clean)
	}
	return cleaned, nil
}
