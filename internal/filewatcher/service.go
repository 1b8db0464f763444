package filewatcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/crfloyd/git-frisky/internal/logging"
)

const defaultDebounce = 300 * time.Millisecond

var _ Watcher = (*Service)(nil)

// Service watches one repository at a time with fsnotify.
type Service struct {
	mu       sync.Mutex
	handlers []func(ChangeEvent)
	active   *session
	closed   bool
	debounce time.Duration
	log      logging.Logger

	// Callback for Wails events, injected by the app.
	emitEvent func(eventName string, data interface{})
}

// Option configures a Service.
type Option func(*Service)

// WithDebounce overrides the coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithLogger sets the logger used for lifecycle and fsnotify errors.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService creates an idle watcher. emitEvent may be nil.
func NewService(emitEvent func(eventName string, data interface{}), opts ...Option) *Service {
	s := &Service{
		handlers:  make([]func(ChangeEvent), 0),
		debounce:  defaultDebounce,
		log:       logging.Nop(),
		emitEvent: emitEvent,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "filewatcher")
	return s
}

// session is one running watch. A new Start builds a new session.
type session struct {
	repoPath string
	gitDir   string
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool
}

// Start stops any running watch and begins watching repoPath.
func (s *Service) Start(repoPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	root, err := filepath.Abs(strings.TrimSpace(repoPath))
	if err != nil || strings.TrimSpace(repoPath) == "" {
		return fmt.Errorf("%w: %q", ErrRepoNotFound, repoPath)
	}
	if info, statErr := os.Stat(root); statErr != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, root)
	}

	gitDir, err := resolveGitDir(root)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotRepository, root)
	}

	s.stopLocked()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	sess := &session{
		repoPath: root,
		gitDir:   gitDir,
		watcher:  watcher,
		done:     make(chan struct{}),
		pending:  make(map[string]struct{}),
	}

	s.addTree(sess, root)
	if !isWithin(gitDir, root) {
		// worktrees and submodules keep their git dir elsewhere
		s.addTree(sess, gitDir)
	}

	s.active = sess
	sess.wg.Add(1)
	go s.eventLoop(sess)

	s.log.Info("watch started", "repo", root, "git_dir", gitDir)
	return nil
}

// Stop ends the current watch. It is a no-op when idle.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Service) stopLocked() error {
	sess := s.active
	if sess == nil {
		return nil
	}
	s.active = nil

	sess.mu.Lock()
	sess.stopped = true
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.mu.Unlock()

	close(sess.done)
	err := sess.watcher.Close()
	sess.wg.Wait()

	s.log.Info("watch stopped", "repo", sess.repoPath)
	return err
}

// OnChange registers a handler for change events.
func (s *Service) OnChange(handler func(event ChangeEvent)) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Watching reports the repository currently watched, if any.
func (s *Service) Watching() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	return s.active.repoPath, true
}

// Close stops the watch and refuses later starts.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.stopLocked()
}

// === Event Loop ===

func (s *Service) eventLoop(sess *session) {
	defer sess.wg.Done()
	for {
		select {
		case <-sess.done:
			return

		case event, ok := <-sess.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(sess, event)

		case err, ok := <-sess.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("fsnotify error", "repo", sess.repoPath, "error", err)
		}
	}
}

func (s *Service) handleEvent(sess *session, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !sess.skipDir(event.Name) {
			s.addTree(sess, event.Name)
		}
	}

	kind := sess.classify(event)
	if kind == "" {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.stopped {
		return
	}
	sess.pending[kind] = struct{}{}
	if sess.timer == nil {
		sess.timer = time.AfterFunc(s.debounce, func() { s.flush(sess) })
		return
	}
	sess.timer.Reset(s.debounce)
}

var kindOrder = []string{KindHead, KindRefs, KindStatus}

func (s *Service) flush(sess *session) {
	sess.mu.Lock()
	if sess.stopped {
		sess.mu.Unlock()
		return
	}
	kinds := make([]string, 0, len(sess.pending))
	for _, kind := range kindOrder {
		if _, ok := sess.pending[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	sess.pending = make(map[string]struct{})
	sess.mu.Unlock()

	s.mu.Lock()
	if s.active != sess {
		s.mu.Unlock()
		return
	}
	handlers := make([]func(ChangeEvent), len(s.handlers))
	copy(handlers, s.handlers)
	emit := s.emitEvent
	s.mu.Unlock()

	for _, kind := range kinds {
		event := ChangeEvent{Kind: kind, RepoPath: sess.repoPath}
		s.log.Debug("repo changed", "repo", sess.repoPath, "kind", kind)
		for _, handler := range handlers {
			handler(event)
		}
		if emit != nil {
			emit(EventRepoChanged, event)
		}
	}
}

// addTree adds root and every directory below it that is not skipped.
func (s *Service) addTree(sess *session, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && sess.skipDir(path) {
			return filepath.SkipDir
		}
		if addErr := sess.watcher.Add(path); addErr != nil {
			s.log.Warn("could not watch directory", "path", path, "error", addErr)
		}
		return nil
	})
}

// === Classification ===

// classify maps one fsnotify event to a change kind, or "" when ignored.
func (sess *session) classify(event fsnotify.Event) string {
	if !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) &&
		!event.Has(fsnotify.Remove) {
		return ""
	}
	return classifyPath(sess.repoPath, sess.gitDir, event.Name)
}

func classifyPath(repoPath, gitDir, eventPath string) string {
	path := normalizeGitEventPath(eventPath)

	if rel, ok := relativeTo(gitDir, path); ok {
		switch {
		case rel == "HEAD":
			return KindHead
		case rel == "packed-refs", rel == "refs", strings.HasPrefix(rel, "refs/"):
			return KindRefs
		case rel == "index":
			return KindStatus
		case isNoisyGitPath(rel):
			return ""
		}
		return KindStatus
	}

	if _, ok := relativeTo(repoPath, path); ok {
		return KindStatus
	}
	return ""
}

func (sess *session) skipDir(path string) bool {
	rel, ok := relativeTo(sess.gitDir, filepath.Clean(path))
	if !ok {
		return false
	}
	return isNoisyGitPath(rel)
}

func isNoisyGitPath(rel string) bool {
	for _, dir := range []string{"objects", "logs"} {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	return false
}

// relativeTo returns path relative to base in slash form.
func relativeTo(base, path string) (string, bool) {
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func isWithin(path, root string) bool {
	_, ok := relativeTo(root, path)
	return ok
}

// === Helper Functions ===

func resolveGitDir(projectPath string) (string, error) {
	gitPath := filepath.Join(projectPath, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return "", err
	}

	if info.IsDir() {
		return filepath.Clean(gitPath), nil
	}

	// Worktree/submodule: .git is a file holding "gitdir: <path>".
	data, err := os.ReadFile(gitPath)
	if err != nil {
		return "", fmt.Errorf("failed to read .git file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if !strings.HasPrefix(strings.ToLower(content), "gitdir:") {
		return "", fmt.Errorf("invalid .git file format")
	}

	gitDir := strings.TrimSpace(content[len("gitdir:"):])
	if gitDir == "" {
		return "", fmt.Errorf("empty gitdir in .git file")
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(projectPath, gitDir)
	}

	return filepath.Clean(gitDir), nil
}

func normalizeGitEventPath(path string) string {
	return strings.TrimSuffix(filepath.Clean(path), ".lock")
}
