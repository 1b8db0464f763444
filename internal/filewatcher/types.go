package filewatcher

import "errors"

// EventRepoChanged is the event name used for every notification.
const EventRepoChanged = "repo-changed"

// Change kinds.
const (
	KindStatus = "status"
	KindHead   = "head"
	KindRefs   = "refs"
)

var (
	ErrClosed        = errors.New("filewatcher: service closed")
	ErrRepoNotFound  = errors.New("filewatcher: repository path does not exist")
	ErrNotRepository = errors.New("filewatcher: not a git repository")
)

// ChangeEvent is emitted once per kind per debounce window.
type ChangeEvent struct {
	Kind     string `json:"kind"`
	RepoPath string `json:"repoPath"`
}

// Watcher is the lifecycle exposed to the app and the CLI.
type Watcher interface {
	// Start replaces any running watch with one on repoPath.
	Start(repoPath string) error

	// Stop ends the current watch. Calling it while idle is a no-op.
	Stop() error

	// OnChange registers a handler for change events.
	OnChange(handler func(ChangeEvent))

	// Close stops watching and rejects later starts.
	Close() error
}
