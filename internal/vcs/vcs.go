// Package vcs defines the version-control primitives consumed by the staging
// core. Backends (git CLI, libgit2) implement Repository and register an
// Opener under a name.
package vcs

import (
	"context"
	"errors"
	"iter"
)

// Surface identifies one side of a diff.
type Surface int

const (
	SurfaceHead Surface = iota
	SurfaceIndex
	SurfaceWorkdir
)

func (s Surface) String() string {
	switch s {
	case SurfaceHead:
		return "head"
	case SurfaceIndex:
		return "index"
	case SurfaceWorkdir:
		return "workdir"
	}
	return "unknown"
}

// DiffRequest selects the two surfaces and the single path to compare.
type DiffRequest struct {
	From             Surface
	To               Surface
	Path             string
	ContextLines     int
	IncludeUntracked bool
}

// EventKind distinguishes hunk-start events from line events.
type EventKind int

const (
	EventHunk EventKind = iota + 1
	EventLine
)

// Line origins as reported by the diff primitives.
const (
	OriginContext      byte = ' '
	OriginAddition     byte = '+'
	OriginDeletion     byte = '-'
	OriginContextEOFNL byte = '='
	OriginAddEOFNL     byte = '>'
	OriginDelEOFNL     byte = '<'
	OriginNoNewline    byte = '\\'
	OriginFileHeader   byte = 'F'
	OriginHunkHeader   byte = 'H'
	OriginBinary       byte = 'B'
)

// HunkHeader carries the four hunk integers and the raw header text.
type HunkHeader struct {
	Header   string
	OldStart int
	OldLines int
	NewStart int
	NewLines int
}

// DiffEvent is one element of the diff event stream. Hunk is set for
// EventHunk; Origin and Content are set for EventLine.
type DiffEvent struct {
	Kind    EventKind
	Hunk    HunkHeader
	Origin  byte
	Content string
}

// StatusFlag is a bitset of per-path index and worktree states.
type StatusFlag uint32

const (
	StatusIndexNew StatusFlag = 1 << iota
	StatusIndexModified
	StatusIndexDeleted
	StatusIndexRenamed
	StatusIndexTypeChange
	StatusWtNew
	StatusWtModified
	StatusWtDeleted
	StatusWtRenamed
	StatusWtTypeChange
	StatusConflicted
)

func (f StatusFlag) Has(flag StatusFlag) bool {
	return f&flag != 0
}

// StatusEntry is one path reported by the status primitive.
type StatusEntry struct {
	Path    string
	OldPath string
	Flags   StatusFlag
}

// IndexEntry is the subset of an index entry the core needs.
type IndexEntry struct {
	Path string
	Mode string
	ID   string
}

// HeadInfo describes what HEAD points at.
type HeadInfo struct {
	// Name is the branch shorthand, empty when detached.
	Name     string
	Target   string
	Unborn   bool
	Detached bool
}

// BranchInfo describes a local branch and its upstream tracking state.
type BranchInfo struct {
	Name     string
	FullName string
	Target   string
	IsHead   bool
	IsRemote bool
	Upstream string
	Ahead    int
	Behind   int
}

// CommitInfo is a commit as read from the object database.
type CommitInfo struct {
	ID          string
	AuthorName  string
	AuthorEmail string
	Time        int64
	Message     string
	Parents     []string
}

// Signature is the identity used to author a commit.
type Signature struct {
	Name  string
	Email string
}

// State is the repository's in-progress operation, if any.
type State string

const (
	StateClean             State = "clean"
	StateMerge             State = "merge"
	StateRebase            State = "rebase"
	StateRebaseInteractive State = "rebaseinteractive"
	StateRebaseMerge       State = "rebasemerge"
	StateRevert            State = "revert"
	StateCherryPick        State = "cherrypick"
	StateBisect            State = "bisect"
)

// Repository is an open handle on one repository. Handles are not shared
// between goroutines.
type Repository interface {
	Root() string
	IsBare() bool

	// Diff returns a lazy stream of hunk and line events for one path.
	Diff(ctx context.Context, req DiffRequest) iter.Seq2[DiffEvent, error]
	IndexEntry(ctx context.Context, path string) (IndexEntry, bool, error)
	HeadHasPath(ctx context.Context, path string) (bool, error)

	// ApplyToIndex applies a unified diff to the index only. It either
	// applies every hunk or leaves the index untouched.
	ApplyToIndex(ctx context.Context, patch []byte) error
	AddPaths(ctx context.Context, paths []string) error
	// ResetPaths restores index entries from HEAD, dropping entries HEAD
	// does not have.
	ResetPaths(ctx context.Context, paths []string) error

	Statuses(ctx context.Context) ([]StatusEntry, error)

	Head(ctx context.Context) (HeadInfo, error)
	Branches(ctx context.Context) ([]BranchInfo, error)
	// BranchTips returns the commit ids of every local and remote branch.
	BranchTips(ctx context.Context) ([]string, error)
	// Walk visits commits reachable from roots, newest first in
	// topological order, returning at most limit commits.
	Walk(ctx context.Context, roots []string, limit int) ([]CommitInfo, error)

	State(ctx context.Context) (State, error)
	Signature(ctx context.Context) (Signature, error)
	HasStagedChanges(ctx context.Context) (bool, error)
	CreateCommit(ctx context.Context, message string, sig Signature) (CommitInfo, error)

	Close() error
}

var (
	ErrGitUnavailable = errors.New("git executable not found")
	ErrNotRepository  = errors.New("not a git repository")
	ErrApplyConflict  = errors.New("patch does not apply")
	ErrIndexLocked    = errors.New("index is locked")
	ErrNoSignature    = errors.New("no author identity configured")
)

// CommandError describes a failed backend command. Backends that shell out
// attach the process stderr and exit code.
type CommandError struct {
	Args     []string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	return FormatCommandFailure(e.Stderr, e.ExitCode, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
