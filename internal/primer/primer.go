// Package primer renders the derived project artifacts: PRIMER.md, the
// compact cold-start context assembled from the memory files, and the
// journal blocks written at session end. Both derived files are excluded
// from indexing; everything here is regenerable from the memory files.
package primer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/memfile"
	"github.com/openclaw/openclaw-memory/internal/writer"
)

const (
	// maxSectionItems bounds how many bullets one source file contributes.
	maxSectionItems = 5

	// maxRecentEntries bounds the Recent Context section.
	maxRecentEntries = 10

	// recentDays is how far back the Recent Context section looks.
	recentDays = 3

	// maxPrimerTokens is the soft budget for the rendered primer. Recent
	// Context entries are dropped oldest-first until the render fits.
	maxPrimerTokens = 1000

	placeholder      = "(nothing recorded yet)"
	tasksPlaceholder = "(none)"
)

// InsightSink routes a reusable insight through the write pipeline.
// *writer.Writer satisfies it.
type InsightSink interface {
	Write(ctx context.Context, content, typeHint string) (*writer.Outcome, error)
}

// Reindexer re-chunks one file after the builder edits it.
type Reindexer interface {
	IndexFile(ctx context.Context, uri string) (int, error)
}

// Builder renders the primer and maintains the journal and task files.
type Builder struct {
	global      config.Scope
	project     *config.Scope // nil in global-only mode
	name        string
	description string

	sink    InsightSink // may be nil
	indexer Reindexer   // project scope, may be nil

	now func() time.Time
}

// New builds a Builder. sink and indexer may be nil; observations then
// skip insight routing and journal edits wait for the watcher to index.
func New(global config.Scope, project *config.Scope, name, description string, sink InsightSink, indexer Reindexer) *Builder {
	return &Builder{
		global:      global,
		project:     project,
		name:        name,
		description: description,
		sink:        sink,
		indexer:     indexer,
		now:         time.Now,
	}
}

// Build renders the primer text. Missing source files become placeholder
// lines, never errors.
func (b *Builder) Build(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	instructions := b.globalItems(config.InstructionsURI)
	entities := b.globalItems(config.EntitiesURI)
	preferences := b.globalItems(config.PreferencesURI)
	recent := b.recentCompleted()
	tasks := b.tasksBody()

	render := func() string {
		var sb strings.Builder
		section(&sb, "Instructions", itemLines(instructions))
		section(&sb, "User Identity", itemLines(entities))
		section(&sb, "Project", b.projectLine())
		section(&sb, "Preferences", itemLines(preferences))
		section(&sb, fmt.Sprintf("Recent Context (last %d days)", recentDays), itemLines(recent))
		section(&sb, "Active Tasks", tasks)
		return strings.TrimRight(sb.String(), "\n") + "\n"
	}

	out := render()
	for chunk.CountTokens(out) > maxPrimerTokens && len(recent) > 0 {
		recent = recent[:len(recent)-1]
		out = render()
	}
	return out, nil
}

// Refresh rebuilds PRIMER.md under the project root. In global-only mode
// there is nowhere to write it; Refresh returns "" and does nothing.
func (b *Builder) Refresh(ctx context.Context) (string, error) {
	if b.project == nil {
		return "", nil
	}
	content, err := b.Build(ctx)
	if err != nil {
		return "", err
	}

	path := b.project.PrimerPath()
	if err := os.MkdirAll(b.project.Root, 0o755); err != nil {
		return "", fmt.Errorf("create project root: %w", err)
	}
	// Unique temp per write; concurrent refreshes must not share a name.
	tmp, err := os.CreateTemp(b.project.Root, ".PRIMER.md.*.tmp")
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("replace %s: %w", path, err)
	}
	return path, nil
}

func section(sb *strings.Builder, title, body string) {
	sb.WriteString("## " + title + "\n")
	if body == "" {
		body = placeholder
	}
	sb.WriteString(body + "\n\n")
}

func itemLines(items []string) string {
	if len(items) == 0 {
		return ""
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func (b *Builder) projectLine() string {
	if b.name == "" {
		return ""
	}
	if b.description == "" {
		return "- " + b.name
	}
	return "- " + b.name + " | " + b.description
}

// globalItems returns the newest bullets of one global memory file.
func (b *Builder) globalItems(uri string) []string {
	mf, err := memfile.Load(b.global.Abs(uri))
	if err != nil {
		return nil
	}
	items := mf.Bullets()
	if len(items) > maxSectionItems {
		items = items[len(items)-maxSectionItems:]
	}
	return items
}

func (b *Builder) tasksBody() string {
	if b.project == nil {
		return tasksPlaceholder
	}
	mf, err := memfile.Load(b.project.TasksPath())
	if err != nil {
		return tasksPlaceholder
	}
	body := strings.TrimSpace(mf.Body)
	if body == "" {
		return tasksPlaceholder
	}
	return body
}

// recentCompleted collects the Completed bullets of the last few journal
// days, newest day first, each prefixed with its day and session heading.
func (b *Builder) recentCompleted() []string {
	if b.project == nil {
		return nil
	}

	var entries []string
	today := b.now().UTC()
	for i := 0; i < recentDays; i++ {
		day := today.AddDate(0, 0, -i).Format(memfile.DateLayout)
		mf, err := memfile.Load(b.project.Abs(config.JournalURI(today.AddDate(0, 0, -i))))
		if err != nil {
			continue
		}
		entries = append(entries, completedItems(mf.Body, day)...)
		if len(entries) >= maxRecentEntries {
			return entries[:maxRecentEntries]
		}
	}
	return entries
}

// completedItems scans one journal body for bullets under "### Completed"
// headings, tagging each with the day and the enclosing session heading.
func completedItems(body, day string) []string {
	var (
		items     []string
		session   string
		completed bool
	)
	for _, line := range strings.Split(body, "\n") {
		s := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(s, "## "):
			session = strings.TrimSpace(strings.TrimPrefix(s, "## "))
			completed = false
		case strings.HasPrefix(s, "### "):
			title := strings.TrimSpace(strings.TrimPrefix(s, "### "))
			completed = strings.EqualFold(title, "Completed")
		case completed && strings.HasPrefix(s, "- "):
			prefix := day
			if session != "" {
				prefix += " " + session
			}
			items = append(items, prefix+": "+strings.TrimSpace(s[2:]))
		}
	}
	return items
}

// reindexJournal refreshes the index for one journal file. Best effort:
// the watcher converges anyway, so a failure only delays searchability.
func (b *Builder) reindexJournal(ctx context.Context, uri string) {
	if b.indexer == nil {
		return
	}
	if _, err := b.indexer.IndexFile(ctx, uri); err != nil {
		slog.Warn("journal reindex failed",
			slog.String("uri", uri),
			slog.String("error", err.Error()))
	}
}
