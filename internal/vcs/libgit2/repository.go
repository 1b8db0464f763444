//go:build libgit2

package libgit2

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"time"

	git "github.com/libgit2/git2go/v34"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

// BackendName is the registry name of this backend.
const BackendName = "libgit2"

func init() {
	vcs.Register(BackendName, func(path string, _ vcs.Options) (vcs.Repository, error) {
		return Open(path)
	})
}

var errStopIteration = errors.New("libgit2: iteration stopped")

// Repository wraps a libgit2 repository handle.
type Repository struct {
	repo *git.Repository
	root string
}

var _ vcs.Repository = (*Repository)(nil)

// Open discovers the repository containing path.
func Open(path string) (*Repository, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty repository path", vcs.ErrNotRepository)
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vcs.ErrNotRepository, err)
	}

	repo, err := git.OpenRepositoryExtended(absPath, 0, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vcs.ErrNotRepository, err)
	}

	root := repo.Workdir()
	if repo.IsBare() || root == "" {
		root = repo.Path()
	}
	return &Repository{repo: repo, root: filepath.Clean(root)}, nil
}

func (r *Repository) Root() string { return r.root }

func (r *Repository) IsBare() bool { return r.repo.IsBare() }

func (r *Repository) Close() error {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
	return nil
}

// headTree returns HEAD's tree, or nil for an unborn HEAD.
func (r *Repository) headTree() (*git.Tree, error) {
	commit, err := r.headCommit()
	if err != nil || commit == nil {
		return nil, err
	}
	defer commit.Free()
	return commit.Tree()
}

func (r *Repository) headCommit() (*git.Commit, error) {
	ref, err := r.repo.Head()
	if err != nil {
		if isUnborn(err) {
			return nil, nil
		}
		return nil, err
	}
	defer ref.Free()

	target := ref.Target()
	if target == nil {
		return nil, nil
	}
	return r.repo.LookupCommit(target)
}

func isUnborn(err error) bool {
	return git.IsErrorCode(err, git.ErrorCodeUnbornBranch) || git.IsErrorCode(err, git.ErrorCodeNotFound)
}

func isNotFound(err error) bool {
	return git.IsErrorCode(err, git.ErrorCodeNotFound)
}

// classify attaches the vcs sentinels to libgit2 error codes.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case git.IsErrorCode(err, git.ErrorCodeLocked):
		return fmt.Errorf("%w: %v", vcs.ErrIndexLocked, err)
	case git.IsErrorCode(err, git.ErrorCodeApplyFail), git.IsErrorCode(err, git.ErrorCodeConflict):
		return fmt.Errorf("%w: %v", vcs.ErrApplyConflict, err)
	}
	return err
}

func (r *Repository) Diff(ctx context.Context, req vcs.DiffRequest) iter.Seq2[vcs.DiffEvent, error] {
	return func(yield func(vcs.DiffEvent, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(vcs.DiffEvent{}, err)
			return
		}

		diff, err := r.buildDiff(req)
		if err != nil {
			yield(vcs.DiffEvent{}, err)
			return
		}
		defer diff.Free()

		err = diff.ForEach(func(delta git.DiffDelta, _ float64) (git.DiffForEachHunkCallback, error) {
			if delta.Status == git.DeltaAdded || delta.Status == git.DeltaUntracked {
				header := fmt.Sprintf("new file mode %06o\n", delta.NewFile.Mode)
				if !yield(vcs.DiffEvent{Kind: vcs.EventLine, Origin: vcs.OriginFileHeader, Content: header}, nil) {
					return nil, errStopIteration
				}
			}
			return func(hunk git.DiffHunk) (git.DiffForEachLineCallback, error) {
				if !yield(vcs.DiffEvent{
					Kind: vcs.EventHunk,
					Hunk: vcs.HunkHeader{
						Header:   hunk.Header,
						OldStart: hunk.OldStart,
						OldLines: hunk.OldLines,
						NewStart: hunk.NewStart,
						NewLines: hunk.NewLines,
					},
				}, nil) {
					return nil, errStopIteration
				}
				return func(line git.DiffLine) error {
					if !yield(vcs.DiffEvent{Kind: vcs.EventLine, Origin: lineOrigin(line.Origin), Content: line.Content}, nil) {
						return errStopIteration
					}
					return nil
				}, nil
			}, nil
		}, git.DiffDetailLines)
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(vcs.DiffEvent{}, err)
		}
	}
}

// lineOrigin maps libgit2 origins onto vcs origins. libgit2's EOFNL lines are
// bare markers for the preceding line, not content.
func lineOrigin(origin git.DiffLineType) byte {
	switch origin {
	case git.DiffLineContextEOFNL, git.DiffLineAddEOFNL, git.DiffLineDelEOFNL:
		return vcs.OriginNoNewline
	}
	return byte(origin)
}

func (r *Repository) buildDiff(req vcs.DiffRequest) (*git.Diff, error) {
	opts, err := git.DefaultDiffOptions()
	if err != nil {
		return nil, err
	}
	opts.Flags |= git.DiffDisablePathspecMatch
	if req.Path != "" {
		opts.Pathspec = []string{req.Path}
	}
	if req.ContextLines >= 0 {
		opts.ContextLines = uint32(req.ContextLines)
	}
	if req.IncludeUntracked {
		opts.Flags |= git.DiffIncludeUntracked | git.DiffRecurseUntracked | git.DiffShowUntrackedContent
	}

	switch {
	case req.From == vcs.SurfaceHead && req.To == vcs.SurfaceIndex:
		tree, err := r.headTree()
		if err != nil {
			return nil, err
		}
		if tree != nil {
			defer tree.Free()
		}
		index, err := r.repo.Index()
		if err != nil {
			return nil, err
		}
		defer index.Free()
		return r.repo.DiffTreeToIndex(tree, index, &opts)

	case req.From == vcs.SurfaceIndex && req.To == vcs.SurfaceWorkdir:
		index, err := r.repo.Index()
		if err != nil {
			return nil, err
		}
		defer index.Free()
		return r.repo.DiffIndexToWorkdir(index, &opts)

	case req.From == vcs.SurfaceHead && req.To == vcs.SurfaceWorkdir:
		tree, err := r.headTree()
		if err != nil {
			return nil, err
		}
		if tree != nil {
			defer tree.Free()
		}
		return r.repo.DiffTreeToWorkdirWithIndex(tree, &opts)
	}
	return nil, fmt.Errorf("libgit2: unsupported diff %s..%s", req.From, req.To)
}

func (r *Repository) IndexEntry(ctx context.Context, path string) (vcs.IndexEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return vcs.IndexEntry{}, false, err
	}
	index, err := r.repo.Index()
	if err != nil {
		return vcs.IndexEntry{}, false, err
	}
	defer index.Free()

	entry, err := index.EntryByPath(path, 0)
	if err != nil {
		if isNotFound(err) {
			return vcs.IndexEntry{}, false, nil
		}
		return vcs.IndexEntry{}, false, err
	}
	return vcs.IndexEntry{
		Path: entry.Path,
		Mode: fmt.Sprintf("%06o", uint32(entry.Mode)),
		ID:   entry.Id.String(),
	}, true, nil
}

func (r *Repository) HeadHasPath(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	tree, err := r.headTree()
	if err != nil || tree == nil {
		return false, err
	}
	defer tree.Free()

	entry, err := tree.EntryByPath(path)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return entry != nil, nil
}

// ApplyToIndex parses the patch and applies it at the index location.
// libgit2 validates every hunk before writing.
func (r *Repository) ApplyToIndex(ctx context.Context, patch []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(patch) == 0 {
		return fmt.Errorf("%w: empty patch", vcs.ErrApplyConflict)
	}

	diff, err := git.DiffFromBuffer(patch, r.repo)
	if err != nil {
		return fmt.Errorf("%w: %v", vcs.ErrApplyConflict, err)
	}
	defer diff.Free()

	return classify(r.repo.ApplyDiff(diff, git.ApplyLocationIndex, nil))
}

func (r *Repository) AddPaths(ctx context.Context, paths []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}
	index, err := r.repo.Index()
	if err != nil {
		return err
	}
	defer index.Free()

	if err := index.AddAll(paths, git.IndexAddDisablePathspecMatch, nil); err != nil {
		return classify(err)
	}
	// AddAll skips deletions.
	if err := index.UpdateAll(paths, nil); err != nil {
		return classify(err)
	}
	return classify(index.Write())
}

func (r *Repository) ResetPaths(ctx context.Context, paths []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	commit, err := r.headCommit()
	if err != nil {
		return err
	}
	if commit != nil {
		defer commit.Free()
		return classify(r.repo.ResetDefaultToCommit(commit, paths))
	}

	index, err := r.repo.Index()
	if err != nil {
		return err
	}
	defer index.Free()
	for _, p := range paths {
		if err := index.RemoveByPath(p); err != nil && !isNotFound(err) {
			return classify(err)
		}
	}
	return classify(index.Write())
}

var statusFlagMap = []struct {
	from git.Status
	to   vcs.StatusFlag
}{
	{git.StatusIndexNew, vcs.StatusIndexNew},
	{git.StatusIndexModified, vcs.StatusIndexModified},
	{git.StatusIndexDeleted, vcs.StatusIndexDeleted},
	{git.StatusIndexRenamed, vcs.StatusIndexRenamed},
	{git.StatusIndexTypeChange, vcs.StatusIndexTypeChange},
	{git.StatusWtNew, vcs.StatusWtNew},
	{git.StatusWtModified, vcs.StatusWtModified},
	{git.StatusWtDeleted, vcs.StatusWtDeleted},
	{git.StatusWtRenamed, vcs.StatusWtRenamed},
	{git.StatusWtTypeChange, vcs.StatusWtTypeChange},
	{git.StatusConflicted, vcs.StatusConflicted},
}

func (r *Repository) Statuses(ctx context.Context) ([]vcs.StatusEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	list, err := r.repo.StatusList(&git.StatusOptions{
		Show: git.StatusShowIndexAndWorkdir,
		Flags: git.StatusOptIncludeUntracked |
			git.StatusOptRecurseUntrackedDirs |
			git.StatusOptRenamesHeadToIndex |
			git.StatusOptSortCaseSensitively,
	})
	if err != nil {
		return nil, err
	}
	defer list.Free()

	count, err := list.EntryCount()
	if err != nil {
		return nil, err
	}

	entries := make([]vcs.StatusEntry, 0, count)
	for i := 0; i < count; i++ {
		entry, err := list.ByIndex(i)
		if err != nil {
			return nil, err
		}

		var flags vcs.StatusFlag
		for _, m := range statusFlagMap {
			if entry.Status&m.from != 0 {
				flags |= m.to
			}
		}
		if flags == 0 {
			continue
		}

		item := vcs.StatusEntry{Flags: flags}
		switch {
		case entry.HeadToIndex.NewFile.Path != "":
			item.Path = entry.HeadToIndex.NewFile.Path
			if flags.Has(vcs.StatusIndexRenamed) {
				item.OldPath = entry.HeadToIndex.OldFile.Path
			}
		default:
			item.Path = entry.IndexToWorkdir.NewFile.Path
			if flags.Has(vcs.StatusWtRenamed) {
				item.OldPath = entry.IndexToWorkdir.OldFile.Path
			}
		}
		if item.Path == "" {
			item.Path = entry.IndexToWorkdir.OldFile.Path
		}
		entries = append(entries, item)
	}
	return entries, nil
}

func (r *Repository) Head(ctx context.Context) (vcs.HeadInfo, error) {
	if err := ctx.Err(); err != nil {
		return vcs.HeadInfo{}, err
	}
	info := vcs.HeadInfo{}

	symbolic, err := r.repo.References.Lookup("HEAD")
	if err != nil {
		return info, err
	}
	defer symbolic.Free()
	if symbolic.Type() == git.ReferenceSymbolic {
		info.Name = strings.TrimPrefix(symbolic.SymbolicTarget(), "refs/heads/")
	} else {
		info.Detached = true
	}

	ref, err := r.repo.Head()
	if err != nil {
		if isUnborn(err) {
			info.Unborn = true
			info.Detached = false
			return info, nil
		}
		return info, err
	}
	defer ref.Free()
	if target := ref.Target(); target != nil {
		info.Target = target.String()
	}
	return info, nil
}

func (r *Repository) Branches(ctx context.Context) ([]vcs.BranchInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it, err := r.repo.NewBranchIterator(git.BranchLocal)
	if err != nil {
		return nil, err
	}
	defer it.Free()

	branches := make([]vcs.BranchInfo, 0)
	err = it.ForEach(func(b *git.Branch, _ git.BranchType) error {
		name, err := b.Name()
		if err != nil {
			return err
		}
		info := vcs.BranchInfo{Name: name, FullName: b.Reference.Name()}
		if target := b.Target(); target != nil {
			info.Target = target.String()
		}
		if isHead, err := b.IsHead(); err == nil {
			info.IsHead = isHead
		}

		upstream, err := b.Upstream()
		if err == nil {
			defer upstream.Free()
			info.Upstream = upstream.Name()
			if local, remote := b.Target(), upstream.Target(); local != nil && remote != nil {
				ahead, behind, abErr := r.repo.AheadBehind(local, remote)
				if abErr == nil {
					info.Ahead = ahead
					info.Behind = behind
				}
			}
		} else if !isNotFound(err) {
			return err
		}

		branches = append(branches, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return branches, nil
}

func (r *Repository) BranchTips(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it, err := r.repo.NewBranchIterator(git.BranchAll)
	if err != nil {
		return nil, err
	}
	defer it.Free()

	tips := make([]string, 0)
	seen := make(map[string]struct{})
	err = it.ForEach(func(b *git.Branch, _ git.BranchType) error {
		if b.Type() == git.ReferenceSymbolic {
			return nil
		}
		target := b.Target()
		if target == nil {
			return nil
		}
		id := target.String()
		if _, dup := seen[id]; dup {
			return nil
		}
		seen[id] = struct{}{}
		tips = append(tips, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tips, nil
}

func (r *Repository) Walk(ctx context.Context, roots []string, limit int) ([]vcs.CommitInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(roots) == 0 || limit <= 0 {
		return []vcs.CommitInfo{}, nil
	}

	walk, err := r.repo.Walk()
	if err != nil {
		return nil, err
	}
	defer walk.Free()
	walk.Sorting(git.SortTime | git.SortTopological)

	for _, root := range roots {
		oid, err := git.NewOid(root)
		if err != nil {
			return nil, fmt.Errorf("libgit2: bad root %q: %w", root, err)
		}
		if err := walk.Push(oid); err != nil {
			return nil, err
		}
	}

	commits := make([]vcs.CommitInfo, 0, min(limit, 64))
	var iterErr error
	err = walk.Iterate(func(c *git.Commit) bool {
		defer c.Free()
		if ctxErr := ctx.Err(); ctxErr != nil {
			iterErr = ctxErr
			return false
		}
		commits = append(commits, commitInfo(c))
		return len(commits) < limit
	})
	if iterErr != nil {
		return nil, iterErr
	}
	if err != nil {
		return nil, err
	}
	return commits, nil
}

func commitInfo(c *git.Commit) vcs.CommitInfo {
	info := vcs.CommitInfo{
		ID:      c.Id().String(),
		Message: c.Message(),
		Parents: make([]string, 0, c.ParentCount()),
	}
	if author := c.Author(); author != nil {
		info.AuthorName = author.Name
		info.AuthorEmail = author.Email
		info.Time = author.When.Unix()
	}
	for i := uint(0); i < c.ParentCount(); i++ {
		if id := c.ParentId(i); id != nil {
			info.Parents = append(info.Parents, id.String())
		}
	}
	return info
}

var repositoryStates = map[git.RepositoryState]vcs.State{
	git.RepositoryStateNone:                 vcs.StateClean,
	git.RepositoryStateMerge:                vcs.StateMerge,
	git.RepositoryStateRevert:               vcs.StateRevert,
	git.RepositoryStateRevertSequence:       vcs.StateRevert,
	git.RepositoryStateCherrypick:           vcs.StateCherryPick,
	git.RepositoryStateCherrypickSequence:   vcs.StateCherryPick,
	git.RepositoryStateBisect:               vcs.StateBisect,
	git.RepositoryStateRebase:               vcs.StateRebase,
	git.RepositoryStateRebaseInteractive:    vcs.StateRebaseInteractive,
	git.RepositoryStateRebaseMerge:          vcs.StateRebaseMerge,
	git.RepositoryStateApplyMailbox:         vcs.StateRebase,
	git.RepositoryStateApplyMailboxOrRebase: vcs.StateRebase,
}

func (r *Repository) State(ctx context.Context) (vcs.State, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if state, ok := repositoryStates[r.repo.State()]; ok {
		return state, nil
	}
	return vcs.StateClean, nil
}

func (r *Repository) Signature(ctx context.Context) (vcs.Signature, error) {
	if err := ctx.Err(); err != nil {
		return vcs.Signature{}, err
	}
	sig, err := r.repo.DefaultSignature()
	if err != nil {
		if isNotFound(err) {
			return vcs.Signature{}, vcs.ErrNoSignature
		}
		return vcs.Signature{}, err
	}
	if strings.TrimSpace(sig.Name) == "" || strings.TrimSpace(sig.Email) == "" {
		return vcs.Signature{}, vcs.ErrNoSignature
	}
	return vcs.Signature{Name: sig.Name, Email: sig.Email}, nil
}

func (r *Repository) HasStagedChanges(ctx context.Context) (bool, error) {
	diff, err := r.buildDiff(vcs.DiffRequest{From: vcs.SurfaceHead, To: vcs.SurfaceIndex})
	if err != nil {
		return false, err
	}
	defer diff.Free()

	n, err := diff.NumDeltas()
	if err != nil {
		return false, err
	}
	return n > 0, ctx.Err()
}

func (r *Repository) CreateCommit(ctx context.Context, message string, sig vcs.Signature) (vcs.CommitInfo, error) {
	if err := ctx.Err(); err != nil {
		return vcs.CommitInfo{}, err
	}

	index, err := r.repo.Index()
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	defer index.Free()

	treeID, err := index.WriteTree()
	if err != nil {
		return vcs.CommitInfo{}, classify(err)
	}
	tree, err := r.repo.LookupTree(treeID)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	defer tree.Free()

	parents := make([]*git.Commit, 0, 1)
	head, err := r.headCommit()
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	if head != nil {
		defer head.Free()
		parents = append(parents, head)
	}

	signature := &git.Signature{Name: sig.Name, Email: sig.Email, When: time.Now()}
	commitID, err := r.repo.CreateCommit("HEAD", signature, signature, message, tree, parents...)
	if err != nil {
		return vcs.CommitInfo{}, classify(err)
	}

	commit, err := r.repo.LookupCommit(commitID)
	if err != nil {
		return vcs.CommitInfo{}, err
	}
	defer commit.Free()
	return commitInfo(commit), nil
}
