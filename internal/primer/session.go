package primer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/memfile"
	"github.com/openclaw/openclaw-memory/internal/writer"
)

// minInsightRunes is the shortest observation insight worth keeping as a
// standalone memory.
const minInsightRunes = 15

// Summary is one session's structured recap.
type Summary struct {
	Request   string
	Learned   []string
	Completed []string
	NextSteps []string
}

// Task is one TASKS.md entry.
type Task struct {
	Title        string
	Status       string // "pending", "in_progress", "done"
	Progress     string
	NextStep     string
	RelatedFiles []string
}

// Observation is one recorded coding action.
type Observation struct {
	Action  string
	Result  string
	Files   []string
	Insight string
}

// ObserveOutcome reports what Observe durably changed.
type ObserveOutcome struct {
	JournalURI string
	// Insight is the write outcome when the observation's insight was
	// saved as a standalone memory, nil otherwise.
	Insight *writer.Outcome
}

// WriteSession appends a session block to today's journal, bumps its
// sessions counter, rewrites TASKS.md from the next steps, and refreshes
// the primer. Returns the journal URI.
func (b *Builder) WriteSession(ctx context.Context, s Summary) (string, error) {
	if b.project == nil {
		return "", errors.New(errors.ErrCodeNoProject, "no project", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", errors.Cancelled(err)
	}

	now := b.now()
	uri := config.JournalURI(now)
	mf, created, err := b.loadJournal(uri, now)
	if err != nil {
		return "", err
	}

	block := sessionBlock(s, now)
	if !created {
		// A horizontal rule separates sessions within one day.
		mf.AppendRaw("---")
	}
	mf.AppendRaw(block)
	mf.SetField("sessions", mf.IntField("sessions")+1)
	mf.Touch(now)
	if err := mf.Save(); err != nil {
		return "", errors.New(errors.ErrCodeFileIO, fmt.Sprintf("write %s", uri), err)
	}
	b.reindexJournal(ctx, uri)

	if len(s.NextSteps) > 0 {
		tasks := make([]Task, len(s.NextSteps))
		for i, step := range s.NextSteps {
			tasks[i] = Task{Title: step, Status: "pending"}
		}
		// WriteTasks refreshes the primer on its way out.
		return uri, b.WriteTasks(ctx, tasks)
	}

	_, err = b.Refresh(ctx)
	return uri, err
}

func (b *Builder) loadJournal(uri string, now time.Time) (*memfile.File, bool, error) {
	path := b.project.Abs(uri)
	if memfile.Exists(path) {
		mf, err := memfile.Load(path)
		if err != nil {
			return nil, false, errors.New(errors.ErrCodeFileIO, fmt.Sprintf("open %s", uri), err)
		}
		return mf, false, nil
	}
	mf := &memfile.File{Path: path, Meta: map[string]any{
		"type":     "event",
		"created":  now.UTC().Format(memfile.DateLayout),
		"updated":  now.UTC().Format(memfile.DateLayout),
		"sessions": 0,
	}}
	return mf, true, nil
}

func sessionBlock(s Summary, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("## Session " + now.Format("15:04") + "\n")

	if s.Request != "" {
		sb.WriteString("\n### Request\n\n" + s.Request + "\n")
	}
	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		sb.WriteString("\n### " + title + "\n\n")
		for _, item := range items {
			sb.WriteString("- " + item + "\n")
		}
	}
	writeList("Learned", s.Learned)
	writeList("Completed", s.Completed)
	writeList("Next steps", s.NextSteps)
	return sb.String()
}

// WriteTasks rewrites TASKS.md from the given list and refreshes the
// primer so the Active Tasks section stays current.
func (b *Builder) WriteTasks(ctx context.Context, tasks []Task) error {
	if b.project == nil {
		return errors.New(errors.ErrCodeNoProject, "no project", nil)
	}
	if err := ctx.Err(); err != nil {
		return errors.Cancelled(err)
	}

	now := b.now()
	mf := &memfile.File{Path: b.project.TasksPath(), Meta: map[string]any{
		"type":    "tasks",
		"updated": now.UTC().Format(memfile.DateLayout),
	}}

	var lines []string
	for _, t := range tasks {
		box := "[ ]"
		if t.Status == "done" {
			box = "[x]"
		}
		title := t.Title
		if title == "" {
			title = "Untitled"
		}
		lines = append(lines, "- "+box+" "+title)
		if t.Progress != "" {
			lines = append(lines, "  - Progress: "+t.Progress)
		}
		if t.NextStep != "" {
			lines = append(lines, "  - Next step: "+t.NextStep)
		}
		if len(t.RelatedFiles) > 0 {
			lines = append(lines, "  - Related files: "+strings.Join(t.RelatedFiles, ", "))
		}
	}
	mf.Body = strings.Join(lines, "\n")
	if err := mf.Save(); err != nil {
		return errors.New(errors.ErrCodeFileIO, "write TASKS.md", err)
	}

	_, err := b.Refresh(ctx)
	return err
}

// Observe appends a timestamped action block to today's journal. An
// insight long enough to stand alone is also routed through the write
// pipeline; a rejection there is not an error, the observation itself is
// already recorded.
func (b *Builder) Observe(ctx context.Context, obs Observation) (*ObserveOutcome, error) {
	if b.project == nil {
		return nil, errors.New(errors.ErrCodeNoProject, "no project", nil)
	}
	if strings.TrimSpace(obs.Action) == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "observation has no action", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled(err)
	}

	now := b.now()
	uri := config.JournalURI(now)
	mf, _, err := b.loadJournal(uri, now)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("### [" + now.Format("15:04") + "] " + obs.Action + "\n")
	if obs.Result != "" {
		sb.WriteString("- **Result:** " + obs.Result + "\n")
	}
	if len(obs.Files) > 0 {
		sb.WriteString("- **Files:** " + strings.Join(obs.Files, ", ") + "\n")
	}
	if obs.Insight != "" {
		sb.WriteString("- **Insight:** " + obs.Insight + "\n")
	}
	mf.AppendRaw(sb.String())
	mf.Touch(now)
	if err := mf.Save(); err != nil {
		return nil, errors.New(errors.ErrCodeFileIO, fmt.Sprintf("write %s", uri), err)
	}
	b.reindexJournal(ctx, uri)

	out := &ObserveOutcome{JournalURI: uri}
	if b.sink != nil && utf8.RuneCountInString(obs.Insight) >= minInsightRunes {
		outcome, err := b.sink.Write(ctx, obs.Insight, "")
		switch {
		case err == nil:
			out.Insight = outcome
		case errors.IsRejection(err):
			// Not every insight clears the quality gate; that is fine.
		default:
			slog.Warn("insight write failed", slog.String("error", err.Error()))
		}
	}
	return out, nil
}
