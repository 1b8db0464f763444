package gitpanel

import (
	"strings"

	"github.com/crfloyd/git-frisky/internal/database"
)

// Store persists the repositories a client opened and the write commands it
// ran. Store failures are logged and never fail the git operation.
type Store interface {
	TouchRepository(repoPath string) error
	RecordCommand(record *database.CommandRecord) error
}

func WithStore(store Store) Option {
	return func(s *Service) { s.store = store }
}

func (s *Service) touchRepository(root string) {
	if s.store == nil || strings.TrimSpace(root) == "" {
		return
	}
	if err := s.store.TouchRepository(root); err != nil {
		s.log.Warn("failed to record recent repository", "repo", root, "error", err)
	}
}

func (s *Service) persistCommand(result CommandResultDTO) {
	if s.store == nil {
		return
	}
	record := commandRecordFromResult(result)
	if err := s.store.RecordCommand(record); err != nil {
		s.log.Warn("failed to record command", "command_id", result.CommandID, "action", result.Action, "error", err)
	}
}

func commandRecordFromResult(result CommandResultDTO) *database.CommandRecord {
	return &database.CommandRecord{
		CommandID:  result.CommandID,
		RepoPath:   result.RepoPath,
		Action:     result.Action,
		Args:       strings.Join(result.Args, " "),
		Status:     result.Status,
		ExitCode:   result.ExitCode,
		DurationMs: result.DurationMs,
		Stderr:     result.StderrSanitized,
		Error:      result.Error,
	}
}
