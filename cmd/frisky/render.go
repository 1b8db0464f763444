package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sergi/go-diff/diffmatchpatch"
	"gopkg.in/yaml.v3"

	"github.com/crfloyd/git-frisky/internal/database"
	"github.com/crfloyd/git-frisky/internal/gitpanel"
)

// shortIDLen is the number of commit id characters shown in tables.
const shortIDLen = 7

var (
	addedColor      = color.New(color.FgGreen)
	deletedColor    = color.New(color.FgRed)
	addedEmphasis   = color.New(color.FgGreen, color.ReverseVideo)
	deletedEmphasis = color.New(color.FgRed, color.ReverseVideo)
	hunkColor       = color.New(color.FgCyan)
	headColor       = color.New(color.FgYellow, color.Bold)
	dimColor        = color.New(color.Faint)
)

// printer writes values as a table or as structured json/yaml.
type printer struct {
	out    io.Writer
	format string
}

func newPrinter(out io.Writer, format string) *printer {
	return &printer{out: out, format: format}
}

// print writes value in the structured formats and calls renderTable for
// the table format.
func (p *printer) print(value any, renderTable func(io.Writer) error) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case formatYAML:
		return writeYAML(p.out, value)
	case formatTable:
		return renderTable(p.out)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedOutput, p.format)
}

// writeYAML goes through JSON first so keys follow the json tags.
func writeYAML(w io.Writer, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

func blockStyle(node *yaml.Node) {
	node.Style = 0
	for _, child := range node.Content {
		blockStyle(child)
	}
}

func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false
	return tbl
}

// === status ===

func renderStatus(w io.Writer, status gitpanel.StatusPayload) error {
	if len(status.Staged) == 0 && len(status.Unstaged) == 0 {
		_, err := fmt.Fprintln(w, "nothing to commit, working tree clean")
		return err
	}
	if len(status.Staged) > 0 {
		headColor.Fprintln(w, "Staged changes:")
		renderChanges(w, status.Staged, addedColor)
	}
	if len(status.Unstaged) > 0 {
		if len(status.Staged) > 0 {
			fmt.Fprintln(w)
		}
		headColor.Fprintln(w, "Unstaged changes:")
		renderChanges(w, status.Unstaged, deletedColor)
	}
	return nil
}

func renderChanges(w io.Writer, changes []gitpanel.FileChange, c *color.Color) {
	tbl := newTable(w)
	for _, change := range changes {
		path := change.Path
		if change.OldPath != nil {
			path = *change.OldPath + " -> " + change.Path
		}
		tbl.AppendRow(table.Row{"  " + c.Sprint(string(change.Status)), path})
	}
	tbl.Render()
}

// === diff ===

func renderHunks(w io.Writer, path string, hunks []gitpanel.DiffHunk) error {
	if len(hunks) == 0 {
		_, err := fmt.Fprintf(w, "no changes in %s\n", path)
		return err
	}
	for i, hunk := range hunks {
		hunkColor.Fprintf(w, "#%d %s\n", i+1, hunkHeader(hunk))
		for _, line := range highlightHunk(hunk) {
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

func hunkHeader(hunk gitpanel.DiffHunk) string {
	if strings.TrimSpace(hunk.Header) != "" {
		return strings.TrimRight(hunk.Header, "\r\n")
	}
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", hunk.OldStart, hunk.OldLines, hunk.NewStart, hunk.NewLines)
}

// highlightHunk renders the lines of a hunk. Runs of deletions immediately
// followed by additions are paired line by line and the changed characters
// are emphasised.
func highlightHunk(hunk gitpanel.DiffHunk) []string {
	out := make([]string, 0, len(hunk.Lines))
	lines := hunk.Lines
	for i := 0; i < len(lines); {
		if lines[i].Type != gitpanel.LineDeletion {
			out = append(out, renderLine(lines[i], ""))
			i++
			continue
		}

		delEnd := i
		for delEnd < len(lines) && lines[delEnd].Type == gitpanel.LineDeletion {
			delEnd++
		}
		addEnd := delEnd
		for addEnd < len(lines) && lines[addEnd].Type == gitpanel.LineAddition {
			addEnd++
		}
		deletions, additions := lines[i:delEnd], lines[delEnd:addEnd]

		pairs := min(len(deletions), len(additions))
		for j, del := range deletions {
			if j < pairs {
				oldText, _ := inlineDiff(trimEOL(del.Content), trimEOL(additions[j].Content))
				out = append(out, renderLine(del, oldText))
				continue
			}
			out = append(out, renderLine(del, ""))
		}
		for j, add := range additions {
			if j < pairs {
				_, newText := inlineDiff(trimEOL(deletions[j].Content), trimEOL(add.Content))
				out = append(out, renderLine(add, newText))
				continue
			}
			out = append(out, renderLine(add, ""))
		}
		i = addEnd
	}
	return out
}

func renderLine(line gitpanel.DiffLine, body string) string {
	if body == "" {
		body = trimEOL(line.Content)
	}
	var rendered string
	switch line.Type {
	case gitpanel.LineAddition:
		rendered = addedColor.Sprint("+") + body
	case gitpanel.LineDeletion:
		rendered = deletedColor.Sprint("-") + body
	default:
		rendered = " " + body
	}
	if line.NoNewlineAtEOF {
		rendered += "\n" + dimColor.Sprint(`\ No newline at end of file`)
	}
	return rendered
}

// inlineDiff returns oldText and newText with the characters only present on
// their side emphasised.
func inlineDiff(oldText, newText string) (string, string) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var oldOut, newOut strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldOut.WriteString(deletedColor.Sprint(d.Text))
			newOut.WriteString(addedColor.Sprint(d.Text))
		case diffmatchpatch.DiffDelete:
			oldOut.WriteString(deletedEmphasis.Sprint(d.Text))
		case diffmatchpatch.DiffInsert:
			newOut.WriteString(addedEmphasis.Sprint(d.Text))
		}
	}
	return oldOut.String(), newOut.String()
}

func trimEOL(s string) string {
	return strings.TrimRight(s, "\r\n")
}

// === log ===

func renderLog(w io.Writer, commits []gitpanel.Commit, now time.Time) error {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Commit", "Author", "When", "Summary"})
	for _, commit := range commits {
		tbl.AppendRow(table.Row{
			hunkColor.Sprint(shortID(commit.ID)),
			commit.Author,
			humanize.RelTime(time.Unix(commit.Timestamp, 0), now, "ago", "from now"),
			commit.Summary,
		})
	}
	tbl.Render()
	return nil
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// === repo ===

func renderSummary(w io.Writer, summary gitpanel.RepoSummary) error {
	head := "(unborn)"
	if summary.Head != nil {
		head = *summary.Head
	}
	if summary.IsDetached {
		head += " (detached)"
	}
	fmt.Fprintf(w, "Repository: %s\n", summary.Path)
	fmt.Fprintf(w, "HEAD:       %s\n", headColor.Sprint(head))
	fmt.Fprintf(w, "State:      %s\n", summary.State)
	if summary.IsBare {
		fmt.Fprintln(w, "Bare:       yes")
	}
	if len(summary.Branches) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"", "Branch", "Upstream", "Ahead", "Behind"})
	for _, branch := range summary.Branches {
		marker := ""
		name := branch.Name
		if branch.IsHead {
			marker = "*"
			name = addedColor.Sprint(name)
		}
		upstream := ""
		if branch.Upstream != nil {
			upstream = *branch.Upstream
		}
		tbl.AppendRow(table.Row{marker, name, upstream, branch.Ahead, branch.Behind})
	}
	tbl.Render()
	return nil
}

func renderRecent(w io.Writer, repos []database.RecentRepository, now time.Time) error {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Name", "Path", "Opened", "Last opened"})
	for _, repo := range repos {
		tbl.AppendRow(table.Row{
			repo.Name,
			repo.Path,
			humanize.Comma(int64(repo.OpenCount)),
			humanize.RelTime(repo.LastOpenedAt, now, "ago", "from now"),
		})
	}
	tbl.Render()
	return nil
}

func renderCommands(w io.Writer, records []database.CommandRecord, now time.Time) error {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"When", "Action", "Status", "Duration", "Error"})
	for _, rec := range records {
		status := addedColor.Sprint(rec.Status)
		if rec.Status != "succeeded" {
			status = deletedColor.Sprint(rec.Status)
		}
		errText := rec.Error
		if be := gitpanel.AsBindingError(errors.New(rec.Error)); be != nil {
			errText = be.Text()
		}
		tbl.AppendRow(table.Row{
			humanize.RelTime(rec.CreatedAt, now, "ago", "from now"),
			rec.Action,
			status,
			(time.Duration(rec.DurationMs) * time.Millisecond).String(),
			errText,
		})
	}
	tbl.Render()
	return nil
}
