package gitcli

import (
	"context"
	"strings"

	"github.com/crfloyd/git-frisky/internal/vcs"
)

var conflictStatuses = map[string]struct{}{
	"UU": {},
	"AA": {},
	"DD": {},
	"AU": {},
	"UA": {},
	"DU": {},
	"UD": {},
}

func (r *Repository) Statuses(ctx context.Context) ([]vcs.StatusEntry, error) {
	out, err := r.read(ctx, "status", "--porcelain=v1", "-z", "--untracked-files=all", "--ignored=no")
	if err != nil {
		return nil, err
	}
	return parsePorcelainStatusZ(out), nil
}

func parsePorcelainStatusZ(raw string) []vcs.StatusEntry {
	entries := make([]vcs.StatusEntry, 0)

	records := strings.Split(raw, "\x00")
	for i := 0; i < len(records); i++ {
		record := records[i]
		if strings.TrimSpace(record) == "" || strings.HasPrefix(record, "## ") {
			continue
		}
		if len(record) < 4 {
			continue
		}

		xy := record[:2]
		path := record[3:]
		originalPath := ""
		if porcelainEntryHasSecondaryPath(xy) && i+1 < len(records) {
			originalPath = records[i+1]
			i++
		}

		flags := statusFlagsFromXY(xy)
		if flags == 0 {
			continue
		}
		entries = append(entries, vcs.StatusEntry{
			Path:    path,
			OldPath: originalPath,
			Flags:   flags,
		})
	}

	return entries
}

func porcelainEntryHasSecondaryPath(xy string) bool {
	if len(xy) < 2 {
		return false
	}
	return xy[0] == 'R' || xy[0] == 'C' || xy[1] == 'R' || xy[1] == 'C'
}

// statusFlagsFromXY maps a porcelain v1 XY pair onto status flags. Copies are
// reported as new files since the status flags have no copy state.
func statusFlagsFromXY(xy string) vcs.StatusFlag {
	if len(xy) < 2 {
		return 0
	}
	if _, conflicted := conflictStatuses[xy]; conflicted {
		return vcs.StatusConflicted
	}
	switch xy {
	case "??":
		return vcs.StatusWtNew
	case "!!":
		return 0
	}

	var flags vcs.StatusFlag
	switch xy[0] {
	case 'A', 'C':
		flags |= vcs.StatusIndexNew
	case 'M':
		flags |= vcs.StatusIndexModified
	case 'D':
		flags |= vcs.StatusIndexDeleted
	case 'R':
		flags |= vcs.StatusIndexRenamed
	case 'T':
		flags |= vcs.StatusIndexTypeChange
	}
	switch xy[1] {
	case 'A':
		flags |= vcs.StatusWtNew
	case 'M':
		flags |= vcs.StatusWtModified
	case 'D':
		flags |= vcs.StatusWtDeleted
	case 'R', 'C':
		flags |= vcs.StatusWtRenamed
	case 'T':
		flags |= vcs.StatusWtTypeChange
	}
	return flags
}
