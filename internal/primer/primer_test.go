package primer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/writer"
)

type fakeSink struct {
	content string
	outcome *writer.Outcome
	err     error
	calls   int
}

func (f *fakeSink) Write(_ context.Context, content, _ string) (*writer.Outcome, error) {
	f.calls++
	f.content = content
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

type fakeIndexer struct {
	uris []string
}

func (f *fakeIndexer) IndexFile(_ context.Context, uri string) (int, error) {
	f.uris = append(f.uris, uri)
	return 1, nil
}

var testNow = time.Date(2026, 3, 7, 15, 4, 0, 0, time.UTC)

func newTestBuilder(t *testing.T, sink InsightSink, ix Reindexer) (*Builder, config.Scope, config.Scope) {
	t.Helper()
	global := config.Scope{Kind: config.ScopeGlobal, Root: t.TempDir()}
	project := config.Scope{Kind: config.ScopeProject, Root: t.TempDir()}
	b := New(global, &project, "openclaw", "local memory service", sink, ix)
	b.now = func() time.Time { return testNow }
	return b, global, project
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildWithNoSources(t *testing.T) {
	b, _, _ := newTestBuilder(t, nil, nil)
	out, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out, "## Instructions\n"+placeholder)
	assert.Contains(t, out, "## User Identity\n"+placeholder)
	assert.Contains(t, out, "## Preferences\n"+placeholder)
	assert.Contains(t, out, "## Active Tasks\n"+tasksPlaceholder)
	// Project name comes from config, not from a file.
	assert.Contains(t, out, "- openclaw | local memory service")
}

func TestBuildAssemblesSections(t *testing.T) {
	b, global, project := newTestBuilder(t, nil, nil)

	writeFile(t, global.Abs(config.PreferencesURI),
		"---\ntype: preference\n---\n\n- Tabs over spaces\n- Commit early\n")
	writeFile(t, global.Abs(config.EntitiesURI),
		"- Alex maintains the deploy scripts\n")
	writeFile(t, project.TasksPath(),
		"---\ntype: tasks\n---\n\n- [ ] Wire the importer\n")
	writeFile(t, project.Abs(config.JournalURI(testNow)),
		"---\ntype: event\n---\n\n## Session 09:12\n\n### Completed\n\n- Shipped the parser\n")

	out, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out, "- Tabs over spaces")
	assert.Contains(t, out, "- Alex maintains the deploy scripts")
	assert.Contains(t, out, "- [ ] Wire the importer")
	assert.Contains(t, out, "- 2026-03-07 Session 09:12: Shipped the parser")
}

func TestBuildKeepsNewestItems(t *testing.T) {
	b, global, _ := newTestBuilder(t, nil, nil)

	var sb strings.Builder
	for i := 1; i <= 8; i++ {
		fmt.Fprintf(&sb, "- preference number %d\n", i)
	}
	writeFile(t, global.Abs(config.PreferencesURI), sb.String())

	out, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, out, "preference number 3")
	assert.Contains(t, out, "preference number 4")
	assert.Contains(t, out, "preference number 8")
}

func TestCompletedItemsScopedToSection(t *testing.T) {
	body := `## Session 10:00

### Learned

- not this one

### Completed

- shipped it
- reviewed it

### Next steps

- not this either
`
	items := completedItems(body, "2026-03-07")
	require.Len(t, items, 2)
	assert.Equal(t, "2026-03-07 Session 10:00: shipped it", items[0])
	assert.Equal(t, "2026-03-07 Session 10:00: reviewed it", items[1])
}

func TestRefreshWritesPrimerFile(t *testing.T) {
	b, _, project := newTestBuilder(t, nil, nil)

	path, err := b.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, project.PrimerPath(), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "## Instructions")
}

func TestRefreshGlobalOnlyIsNoop(t *testing.T) {
	global := config.Scope{Kind: config.ScopeGlobal, Root: t.TempDir()}
	b := New(global, nil, "", "", nil, nil)
	path, err := b.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestWriteSessionCreatesJournal(t *testing.T) {
	ix := &fakeIndexer{}
	b, _, project := newTestBuilder(t, nil, ix)

	uri, err := b.WriteSession(context.Background(), Summary{
		Request:   "add retry logic to the uploader",
		Learned:   []string{"the client retries on 429 already"},
		Completed: []string{"wired exponential backoff"},
	})
	require.NoError(t, err)
	assert.Equal(t, "journal/2026-03-07.md", uri)
	assert.Equal(t, []string{uri}, ix.uris)

	raw, err := os.ReadFile(project.Abs(uri))
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "sessions: 1")
	assert.Contains(t, text, "## Session 15:04")
	assert.Contains(t, text, "### Request\n\nadd retry logic to the uploader")
	assert.Contains(t, text, "### Learned\n\n- the client retries on 429 already")
	assert.Contains(t, text, "### Completed\n\n- wired exponential backoff")
	assert.NotContains(t, text, "### Next steps")

	// The primer picks the session up immediately.
	primerRaw, err := os.ReadFile(project.PrimerPath())
	require.NoError(t, err)
	assert.Contains(t, string(primerRaw),
		"- 2026-03-07 Session 15:04: wired exponential backoff")
}

func TestWriteSessionAppendsAndBumpsCounter(t *testing.T) {
	b, _, project := newTestBuilder(t, nil, nil)

	_, err := b.WriteSession(context.Background(), Summary{Request: "first"})
	require.NoError(t, err)
	uri, err := b.WriteSession(context.Background(), Summary{Request: "second"})
	require.NoError(t, err)

	raw, err := os.ReadFile(project.Abs(uri))
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "sessions: 2")
	assert.Contains(t, text, "first")
	assert.Contains(t, text, "second")
	// Sessions within a day are separated by a rule.
	assert.Contains(t, text, "\n---\n")
}

func TestWriteSessionTurnsNextStepsIntoTasks(t *testing.T) {
	b, _, project := newTestBuilder(t, nil, nil)

	_, err := b.WriteSession(context.Background(), Summary{
		Request:   "wrap up",
		NextSteps: []string{"add integration tests", "document the config"},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(project.TasksPath())
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "- [ ] add integration tests")
	assert.Contains(t, text, "- [ ] document the config")
}

func TestWriteSessionWithoutProject(t *testing.T) {
	global := config.Scope{Kind: config.ScopeGlobal, Root: t.TempDir()}
	b := New(global, nil, "", "", nil, nil)
	_, err := b.WriteSession(context.Background(), Summary{Request: "x"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNoProject, errors.GetCode(err))
}

func TestWriteTasksRendersChecklist(t *testing.T) {
	b, _, project := newTestBuilder(t, nil, nil)

	err := b.WriteTasks(context.Background(), []Task{
		{Title: "Implement auth", Status: "done"},
		{
			Title:        "Add tests",
			Status:       "pending",
			Progress:     "unit tests drafted",
			NextStep:     "cover the error paths",
			RelatedFiles: []string{"auth/service.go", "auth/service_test.go"},
		},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(project.TasksPath())
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "- [x] Implement auth")
	assert.Contains(t, text, "- [ ] Add tests")
	assert.Contains(t, text, "  - Progress: unit tests drafted")
	assert.Contains(t, text, "  - Next step: cover the error paths")
	assert.Contains(t, text, "  - Related files: auth/service.go, auth/service_test.go")

	// WriteTasks refreshes the primer too.
	primerRaw, err := os.ReadFile(project.PrimerPath())
	require.NoError(t, err)
	assert.Contains(t, string(primerRaw), "- [x] Implement auth")
}

func TestObserveAppendsBlock(t *testing.T) {
	ix := &fakeIndexer{}
	b, _, project := newTestBuilder(t, nil, ix)

	out, err := b.Observe(context.Background(), Observation{
		Action: "Fixed N+1 query in user list",
		Result: "response time dropped from 2s to 50ms",
		Files:  []string{"api/users.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, "journal/2026-03-07.md", out.JournalURI)
	assert.Nil(t, out.Insight)
	assert.Equal(t, []string{out.JournalURI}, ix.uris)

	raw, err := os.ReadFile(project.Abs(out.JournalURI))
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "### [15:04] Fixed N+1 query in user list")
	assert.Contains(t, text, "- **Result:** response time dropped from 2s to 50ms")
	assert.Contains(t, text, "- **Files:** api/users.go")
}

func TestObserveRoutesLongInsight(t *testing.T) {
	sink := &fakeSink{outcome: &writer.Outcome{
		Action: writer.ActionAppended,
		Path:   config.PatternsURI,
		Scope:  config.ScopeProject,
	}}
	b, _, _ := newTestBuilder(t, sink, nil)

	insight := "always preload associations in list endpoints"
	out, err := b.Observe(context.Background(), Observation{
		Action:  "Fixed N+1 query",
		Insight: insight,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Insight)
	assert.Equal(t, writer.ActionAppended, out.Insight.Action)
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, insight, sink.content)
}

func TestObserveSkipsShortInsight(t *testing.T) {
	sink := &fakeSink{}
	b, _, _ := newTestBuilder(t, sink, nil)

	out, err := b.Observe(context.Background(), Observation{
		Action:  "Ran the linter",
		Insight: "short note",
	})
	require.NoError(t, err)
	assert.Nil(t, out.Insight)
	assert.Zero(t, sink.calls)
}

func TestObserveToleratesRejectedInsight(t *testing.T) {
	sink := &fakeSink{err: errors.QualityRejected("too short")}
	b, _, project := newTestBuilder(t, sink, nil)

	out, err := b.Observe(context.Background(), Observation{
		Action:  "Tuned the cache",
		Insight: "a perfectly long insight that the gate still rejects",
	})
	require.NoError(t, err)
	assert.Nil(t, out.Insight)
	assert.Equal(t, 1, sink.calls)

	// The observation itself still landed.
	raw, err := os.ReadFile(project.Abs(out.JournalURI))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Tuned the cache")
}

func TestObserveRequiresAction(t *testing.T) {
	b, _, _ := newTestBuilder(t, nil, nil)
	_, err := b.Observe(context.Background(), Observation{Action: "  "})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}
