package gitpanel

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/crfloyd/git-frisky/internal/logging"
	"github.com/crfloyd/git-frisky/internal/vcs"
)

type EventEmitter func(eventName string, data interface{})

// CommandRecorder receives the final diagnostic of every write command.
type CommandRecorder func(CommandResultDTO)

const (
	EventStatusChanged      = "gitpanel:status_changed"
	EventHistoryInvalidated = "gitpanel:history_invalidated"
	EventCommandResult      = "gitpanel:command_result"

	defaultWriteTimeout = 12 * time.Second
)

// Service exposes the git panel operations to clients. Every call opens its
// own repository handle; writes to the same repository are serialized.
type Service struct {
	emit         EventEmitter
	open         vcs.Opener
	log          logging.Logger
	record       CommandRecorder
	store        Store
	writeTimeout time.Duration
	logLimit     int

	laneMu         sync.Mutex
	lanes          map[string]*writeLane
	lanesWG        sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	closed         atomic.Bool
}

type Option func(*Service)

func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithLogLimit sets the number of commits Log returns when the caller does
// not ask for a specific count.
func WithLogLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.logLimit = n
		}
	}
}

func WithCommandRecorder(r CommandRecorder) Option {
	return func(s *Service) { s.record = r }
}

func NewService(emit EventEmitter, open vcs.Opener, opts ...Option) *Service {
	if emit == nil {
		emit = func(string, interface{}) {}
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	s := &Service{
		emit:           emit,
		open:           open,
		log:            logging.Nop(),
		writeTimeout:   defaultWriteTimeout,
		logLimit:       DefaultLogLimit,
		lanes:          make(map[string]*writeLane),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "gitpanel")
	return s
}

func (s *Service) openRepo(repoPath string) (vcs.Repository, error) {
	if s.closed.Load() {
		return nil, serviceClosedError()
	}
	trimmed := strings.TrimSpace(repoPath)
	if trimmed == "" {
		return nil, NewBindingError(CodeOpenFailed, "Repository path is required.", "")
	}
	if s.open == nil {
		return nil, NewBindingError(CodeServiceUnavailable, "No git backend configured.", "")
	}
	repo, err := s.open(trimmed)
	if err != nil {
		return nil, classifyError(err, CodeOpenFailed, "Failed to open repository.")
	}
	return repo, nil
}

// OpenRepo validates repoPath and summarizes the repository.
func (s *Service) OpenRepo(ctx context.Context, repoPath string) (RepoSummary, error) {
	repo, err := s.openRepo(repoPath)
	if err != nil {
		return RepoSummary{}, err
	}
	defer repo.Close()

	summary, err := SummarizeRepo(ctx, repo)
	if err != nil {
		return RepoSummary{}, err
	}
	s.touchRepository(summary.Path)
	return summary, nil
}

func (s *Service) GetStatus(ctx context.Context, repoPath string) (StatusPayload, error) {
	repo, err := s.openRepo(repoPath)
	if err != nil {
		return StatusPayload{}, err
	}
	defer repo.Close()

	return CollectStatus(ctx, repo)
}

// GetDiff returns the hunks of relPath between HEAD and the index (staged)
// or between the index and the working tree.
func (s *Service) GetDiff(ctx context.Context, repoPath string, relPath string, staged bool) ([]DiffHunk, error) {
	repo, err := s.openRepo(repoPath)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	cleanPath, err := ensurePathWithinRepo(repo.Root(), relPath)
	if err != nil {
		return nil, err
	}
	return ExtractDiff(ctx, repo, cleanPath, staged)
}

// Log returns up to limit commits reachable from any branch tip. A limit of
// zero or less uses the configured default.
func (s *Service) Log(ctx context.Context, repoPath string, limit int) ([]Commit, error) {
	repo, err := s.openRepo(repoPath)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	if limit <= 0 {
		limit = s.logLimit
	}
	return ReadLog(ctx, repo, limit)
}

func (s *Service) StageHunk(ctx context.Context, repoPath string, relPath string, hunk DiffHunk) error {
	return s.applyHunk(ctx, repoPath, relPath, hunk, false)
}

func (s *Service) UnstageHunk(ctx context.Context, repoPath string, relPath string, hunk DiffHunk) error {
	return s.applyHunk(ctx, repoPath, relPath, hunk, true)
}

func (s *Service) applyHunk(ctx context.Context, repoPath string, relPath string, hunk DiffHunk, reverse bool) error {
	action := "stage_hunk"
	if reverse {
		action = "unstage_hunk"
	}
	return s.runWrite(ctx, repoPath, action, []string{relPath}, true, func(ctx context.Context, repo vcs.Repository, paths []string) error {
		return ApplyHunk(ctx, repo, paths[0], hunk, reverse)
	})
}

// Stage adds whole files to the index.
func (s *Service) Stage(ctx context.Context, repoPath string, paths []string) error {
	return s.runWrite(ctx, repoPath, "stage", paths, true, StagePaths)
}

// Unstage restores the index entries of paths from HEAD.
func (s *Service) Unstage(ctx context.Context, repoPath string, paths []string) error {
	return s.runWrite(ctx, repoPath, "unstage", paths, true, UnstagePaths)
}

// Commit records the index as a new commit on the current branch.
func (s *Service) Commit(ctx context.Context, repoPath string, message string) (Commit, error) {
	var created Commit
	err := s.runWrite(ctx, repoPath, "commit", nil, false, func(ctx context.Context, repo vcs.Repository, _ []string) error {
		commit, err := CreateCommit(ctx, repo, message)
		if err != nil {
			return err
		}
		created = commit
		return nil
	})
	if err != nil {
		return Commit{}, err
	}
	return created, nil
}

type writeBody func(ctx context.Context, repo vcs.Repository, paths []string) error

// runWrite opens the repository, validates paths when the action takes any
// and runs body on the repository's write queue.
func (s *Service) runWrite(ctx context.Context, repoPath string, action string, paths []string, withPaths bool, body writeBody) error {
	if ctx == nil {
		ctx = context.Background()
	}
	commandID, startedAt := s.beginCommand()

	repo, err := s.openRepo(repoPath)
	if err != nil {
		s.emitCommandFailure(commandID, repoPath, action, paths, startedAt, err)
		return err
	}
	defer repo.Close()

	root := repo.Root()
	var cleaned []string
	if withPaths {
		cleaned, err = cleanRepoPaths(root, paths)
		if err != nil {
			s.emitCommandFailure(commandID, root, action, paths, startedAt, err)
			return err
		}
	}

	log := s.log.With("commandId", commandID, "action", action, "repo", root)
	log.Debug("write queued", "paths", len(cleaned))

	trace := newCommandTrace(commandID, root, action, cleaned, startedAt)
	err = s.executeWrite(ctx, trace, s.writeTimeout, func(ctx context.Context) error {
		return body(ctx, repo, cleaned)
	})
	if err != nil {
		log.Warn("write failed", "err", NormalizeBindingError(err).Text(), "duration", time.Since(startedAt))
		return err
	}

	log.Debug("write succeeded", "duration", time.Since(startedAt))
	s.emitPostWriteReconciliation(root, action, action == "commit")
	return nil
}

func (s *Service) beginCommand() (string, time.Time) {
	return "gpc_" + uuid.NewString(), time.Now()
}

func (s *Service) emitCommandFailure(commandID string, repoPath string, action string, args []string, startedAt time.Time, err error) {
	s.report(newCommandTrace(commandID, repoPath, action, args, startedAt), commandStatusFailed, err)
}

func (s *Service) emitPostWriteReconciliation(repoPath string, action string, includeHistory bool) {
	s.emit(EventStatusChanged, buildPanelEventPayload(repoPath, "post_write_reconcile", action))
	if includeHistory {
		s.emit(EventHistoryInvalidated, buildPanelEventPayload(repoPath, "post_write_reconcile", action))
	}
}

// NotifyRepoChanged forwards an external change notification (for example
// from the file watcher) as panel events.
func (s *Service) NotifyRepoChanged(repoPath string, kind string) {
	payload := buildPanelEventPayload(repoPath, "watcher", kind)
	s.emit(EventStatusChanged, payload)
	if kind == "head" || kind == "refs" {
		s.emit(EventHistoryInvalidated, payload)
	}
}

func buildPanelEventPayload(repoPath string, reason string, sourceEvent string) map[string]string {
	payload := map[string]string{
		"repoPath": strings.TrimSpace(repoPath),
	}
	if trimmedReason := strings.TrimSpace(reason); trimmedReason != "" {
		payload["reason"] = trimmedReason
	}
	if trimmedSourceEvent := strings.TrimSpace(sourceEvent); trimmedSourceEvent != "" {
		payload["sourceEvent"] = trimmedSourceEvent
	}
	return payload
}
