package gitpanel

// LineType classifies a line inside a hunk.
type LineType string

const (
	LineContext  LineType = "context"
	LineAddition LineType = "addition"
	LineDeletion LineType = "deletion"
)

// DiffLine is one line of a hunk. OldLineno is set for context and deletion
// lines, NewLineno for context and addition lines.
type DiffLine struct {
	Content        string   `json:"content"`
	Type           LineType `json:"type"`
	OldLineno      *int     `json:"oldLineno,omitempty"`
	NewLineno      *int     `json:"newLineno,omitempty"`
	NoNewlineAtEOF bool     `json:"noNewlineAtEof,omitempty"`
}

// DiffHunk is a contiguous region of change. The integers are authoritative;
// Header is kept for display.
type DiffHunk struct {
	Header   string     `json:"header"`
	OldStart int        `json:"oldStart"`
	OldLines int        `json:"oldLines"`
	NewStart int        `json:"newStart"`
	NewLines int        `json:"newLines"`
	Lines    []DiffLine `json:"lines"`
	// NewFile marks a hunk that creates the file. Untracked files and
	// staged additions carry it; an empty range alone does not.
	NewFile bool `json:"newFile,omitempty"`
}

// FileStatus is the single-letter change classification shown to clients.
type FileStatus string

const (
	FileAdded      FileStatus = "A"
	FileModified   FileStatus = "M"
	FileDeleted    FileStatus = "D"
	FileRenamed    FileStatus = "R"
	FileUntracked  FileStatus = "U"
	FileConflicted FileStatus = "C"
)

// FileChange is one path in the status payload. Additions and Deletions are
// not derived from status flags and stay nil.
type FileChange struct {
	Path      string     `json:"path"`
	Status    FileStatus `json:"status"`
	OldPath   *string    `json:"oldPath,omitempty"`
	Additions *int       `json:"additions,omitempty"`
	Deletions *int       `json:"deletions,omitempty"`
}

// StatusPayload splits changes into the staged and unstaged buckets.
type StatusPayload struct {
	Staged   []FileChange `json:"staged"`
	Unstaged []FileChange `json:"unstaged"`
}

// Commit is a commit as shown in the history view. Refs and Lane belong to
// the graph layout and are left unset here.
type Commit struct {
	ID        string   `json:"id"`
	Author    string   `json:"author"`
	Email     string   `json:"email"`
	Timestamp int64    `json:"timestamp"`
	Summary   string   `json:"summary"`
	Message   *string  `json:"message,omitempty"`
	Parents   []string `json:"parents"`
	Refs      []string `json:"refs,omitempty"`
	Lane      *int     `json:"lane,omitempty"`
}

// Branch is a local branch with its upstream tracking state.
type Branch struct {
	Name     string  `json:"name"`
	FullName string  `json:"fullName"`
	IsHead   bool    `json:"isHead"`
	IsRemote bool    `json:"isRemote"`
	Upstream *string `json:"upstream,omitempty"`
	Ahead    int     `json:"ahead"`
	Behind   int     `json:"behind"`
}

// RepoState mirrors the in-progress operation of a repository.
type RepoState string

const (
	RepoStateClean             RepoState = "clean"
	RepoStateMerge             RepoState = "merge"
	RepoStateRebase            RepoState = "rebase"
	RepoStateRebaseInteractive RepoState = "rebaseinteractive"
	RepoStateRebaseMerge       RepoState = "rebasemerge"
	RepoStateRevert            RepoState = "revert"
	RepoStateCherryPick        RepoState = "cherrypick"
	RepoStateBisect            RepoState = "bisect"
)

// RepoSummary is returned when a repository is opened.
type RepoSummary struct {
	Path       string    `json:"path"`
	Branches   []Branch  `json:"branches"`
	Head       *string   `json:"head,omitempty"`
	IsBare     bool      `json:"isBare"`
	IsDetached bool      `json:"isDetached"`
	State      RepoState `json:"state"`
}

// CommandResultDTO is emitted for each write command as it moves through the
// queue.
type CommandResultDTO struct {
	CommandID       string   `json:"commandId"`
	RepoPath        string   `json:"repoPath"`
	Action          string   `json:"action"`
	Args            []string `json:"args,omitempty"`
	DurationMs      int64    `json:"durationMs"`
	ExitCode        int      `json:"exitCode"`
	StderrSanitized string   `json:"stderrSanitized,omitempty"`
	Status          string   `json:"status"`
	Error           string   `json:"error,omitempty"`
}
