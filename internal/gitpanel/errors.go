package gitpanel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

const (
	CodeServiceUnavailable = "E_SERVICE_UNAVAILABLE"
	CodeGitUnavailable     = "E_GIT_UNAVAILABLE"
	CodeOpenFailed         = "E_OPEN_FAILED"
	CodeReadFailed         = "E_READ_FAILED"
	CodeDiffFailed         = "E_DIFF_FAILED"
	CodeApplyFailed        = "E_APPLY_FAILED"
	CodeIndexLocked        = "E_INDEX_LOCKED"
	CodeStateBlocked       = "E_STATE_BLOCKED"
	CodeNothingToCommit    = "E_NOTHING_TO_COMMIT"
	CodeSigningMissing     = "E_SIGNING_MISSING"
	CodeRepoOutOfScope     = "E_REPO_OUT_OF_SCOPE"
	CodeInvalidPath        = "E_INVALID_PATH"
	CodeInvalidArgument    = "E_INVALID_ARGUMENT"
	CodePatchInvalid       = "E_PATCH_INVALID"
	CodeCommandFailed      = "E_COMMAND_FAILED"
	CodeTimeout            = "E_TIMEOUT"
	CodeCanceled           = "E_CANCELED"
	CodeUnknown            = "E_UNKNOWN"
)

// BindingError is the normalized error contract returned to clients.
type BindingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`

	cause error
}

func (e *BindingError) Error() string {
	if e == nil {
		return ""
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":"%s","message":"%s","details":"%s"}`, e.Code, sanitizeJSONText(e.Message), sanitizeJSONText(e.Details))
	}
	return string(payload)
}

func (e *BindingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Text renders the error for humans.
func (e *BindingError) Text() string {
	if e == nil {
		return ""
	}
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

func NewBindingError(code, message, details string) *BindingError {
	return &BindingError{
		Code:    strings.TrimSpace(code),
		Message: strings.TrimSpace(message),
		Details: strings.TrimSpace(details),
	}
}

func AsBindingError(err error) *BindingError {
	if err == nil {
		return nil
	}

	var bindingErr *BindingError
	if errors.As(err, &bindingErr) && bindingErr != nil {
		return bindingErr
	}

	raw := strings.TrimSpace(err.Error())
	if raw == "" {
		return nil
	}

	var parsed BindingError
	if parseErr := json.Unmarshal([]byte(raw), &parsed); parseErr == nil && strings.TrimSpace(parsed.Code) != "" {
		return &parsed
	}

	return nil
}

func NormalizeBindingError(err error) *BindingError {
	if err == nil {
		return nil
	}

	if bindingErr := AsBindingError(err); bindingErr != nil {
		if strings.TrimSpace(bindingErr.Message) == "" {
			bindingErr.Message = "Git operation failed"
		}
		if strings.TrimSpace(bindingErr.Code) == "" {
			bindingErr.Code = CodeUnknown
		}
		return bindingErr
	}

	return NewBindingError(CodeUnknown, "Git operation failed", err.Error())
}

func wrapBindingError(code, message string, cause error) *BindingError {
	bindingErr := NewBindingError(code, message, cause.Error())
	bindingErr.cause = cause
	return bindingErr
}

// classifyError maps a backend error onto a binding error. fallbackCode is
// used when the error carries no more specific meaning.
func classifyError(err error, fallbackCode string, message string) error {
	if err == nil {
		return nil
	}
	if bindingErr := AsBindingError(err); bindingErr != nil {
		return bindingErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return wrapBindingError(CodeTimeout, "Git command timed out.", err)
	case errors.Is(err, context.Canceled):
		return wrapBindingError(CodeCanceled, "Git command canceled.", err)
	case errors.Is(err, vcs.ErrGitUnavailable):
		return wrapBindingError(CodeGitUnavailable, "Git executable not found.", err)
	case errors.Is(err, vcs.ErrNotRepository):
		return wrapBindingError(CodeOpenFailed, "Not a git repository.", err)
	case errors.Is(err, vcs.ErrIndexLocked):
		return wrapBindingError(CodeIndexLocked, "The index is locked by another git process.", err)
	case errors.Is(err, vcs.ErrApplyConflict):
		return wrapBindingError(CodeApplyFailed, "Patch does not apply to the index.", err)
	case errors.Is(err, vcs.ErrNoSignature):
		return wrapBindingError(CodeSigningMissing, "No author identity configured. Set user.name and user.email.", err)
	}
	return wrapBindingError(fallbackCode, message, err)
}

func sanitizeJSONText(input string) string {
	output := strings.ReplaceAll(input, `"`, `'`)
	output = strings.ReplaceAll(output, "\n", " ")
	return strings.TrimSpace(output)
}
