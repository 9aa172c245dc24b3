package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openclaw/openclaw-memory/internal/primer"
	"github.com/openclaw/openclaw-memory/internal/search"
)

// StringList accepts either a JSON string or an array of strings, since
// agents are sloppy about which one they send for list-shaped fields.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if strings.TrimSpace(one) == "" {
			*l = nil
			return nil
		}
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = StringList(many)
	return nil
}

// PrimerInput is empty; the primer takes no arguments.
type PrimerInput struct{}

// SearchInput defines the memory_search arguments.
type SearchInput struct {
	Query     string `json:"query" jsonschema:"the natural-language query"`
	Scope     string `json:"scope,omitempty" jsonschema:"restrict to one scope: global, project, journal, agent, or user"`
	MaxTokens int    `json:"max_tokens,omitempty" jsonschema:"result token budget, default 1500"`
}

// LogInput defines the memory_log arguments.
type LogInput struct {
	Content string `json:"content" jsonschema:"the note to remember"`
	Type    string `json:"type,omitempty" jsonschema:"memory kind hint: preference, instruction, decision, pattern, entity, or event"`
}

// SessionEndInput defines the memory_session_end arguments. List fields
// accept a string or an array of strings.
type SessionEndInput struct {
	Request   string     `json:"request,omitempty" jsonschema:"what the user asked for this session"`
	Learned   StringList `json:"learned,omitempty" jsonschema:"facts learned this session"`
	Completed StringList `json:"completed,omitempty" jsonschema:"work completed this session"`
	NextSteps StringList `json:"next_steps,omitempty" jsonschema:"follow-ups for the next session"`
}

// TaskInput is one memory_update_tasks entry.
type TaskInput struct {
	Title        string     `json:"title" jsonschema:"short task title"`
	Status       string     `json:"status,omitempty" jsonschema:"done, pending, or in_progress"`
	Progress     string     `json:"progress,omitempty" jsonschema:"current progress note"`
	NextStep     string     `json:"next_step,omitempty" jsonschema:"the immediate next action"`
	RelatedFiles StringList `json:"related_files,omitempty" jsonschema:"files this task touches"`
}

// UpdateTasksInput defines the memory_update_tasks arguments.
type UpdateTasksInput struct {
	Tasks []TaskInput `json:"tasks" jsonschema:"the full task list; replaces TASKS.md"`
}

// ObserveInput defines the memory_observe arguments.
type ObserveInput struct {
	Action  string     `json:"action" jsonschema:"the coding action just taken"`
	Result  string     `json:"result,omitempty" jsonschema:"what happened"`
	Files   StringList `json:"files,omitempty" jsonschema:"files involved"`
	Insight string     `json:"insight,omitempty" jsonschema:"a reusable lesson, saved as a memory when substantial"`
}

// ReadInput defines the memory_read arguments.
type ReadInput struct {
	Path string `json:"path" jsonschema:"memory file path relative to a scope root, e.g. user/preferences.md"`
}

// textResult wraps a plain-text reply.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// errorResult renders an engine error as a reply. Rejections are normal
// pipeline outcomes; everything else is flagged as a tool error.
func errorResult(err error) *mcp.CallToolResult {
	res := textResult(renderError(err))
	if !strings.HasPrefix(res.Content[0].(*mcp.TextContent).Text, "Rejected: ") {
		res.IsError = true
	}
	return res
}

func (s *Server) handlePrimer(ctx context.Context, _ *mcp.CallToolRequest, _ PrimerInput) (*mcp.CallToolResult, any, error) {
	blob, err := s.svc.Primer(ctx)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(blob), nil, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, nil, NewInvalidParamsError("query parameter is required")
	}
	resp, err := s.svc.Search(ctx, in.Query, search.Options{
		Scope:     in.Scope,
		MaxTokens: in.MaxTokens,
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(formatSearch(resp)), nil, nil
}

func (s *Server) handleLog(ctx context.Context, _ *mcp.CallToolRequest, in LogInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, nil, NewInvalidParamsError("content parameter is required")
	}
	out, err := s.svc.Log(ctx, in.Content, in.Type)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(formatLog(out)), nil, nil
}

func (s *Server) handleSessionEnd(ctx context.Context, _ *mcp.CallToolRequest, in SessionEndInput) (*mcp.CallToolResult, any, error) {
	uri, err := s.svc.SessionEnd(ctx, primer.Summary{
		Request:   in.Request,
		Learned:   in.Learned,
		Completed: in.Completed,
		NextSteps: in.NextSteps,
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	reply := fmt.Sprintf("Session summary written to %s. PRIMER.md and TASKS.md updated.", path.Base(uri))
	return textResult(reply), nil, nil
}

func (s *Server) handleUpdateTasks(ctx context.Context, _ *mcp.CallToolRequest, in UpdateTasksInput) (*mcp.CallToolResult, any, error) {
	tasks := make([]primer.Task, len(in.Tasks))
	for i, t := range in.Tasks {
		tasks[i] = primer.Task{
			Title:        t.Title,
			Status:       t.Status,
			Progress:     t.Progress,
			NextStep:     t.NextStep,
			RelatedFiles: t.RelatedFiles,
		}
	}
	if err := s.svc.UpdateTasks(ctx, tasks); err != nil {
		return errorResult(err), nil, nil
	}
	reply := fmt.Sprintf("TASKS.md updated with %d tasks. PRIMER.md refreshed.", len(tasks))
	return textResult(reply), nil, nil
}

func (s *Server) handleObserve(ctx context.Context, _ *mcp.CallToolRequest, in ObserveInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Action) == "" {
		return nil, nil, NewInvalidParamsError("action parameter is required")
	}
	out, err := s.svc.Observe(ctx, primer.Observation{
		Action:  in.Action,
		Result:  in.Result,
		Files:   in.Files,
		Insight: in.Insight,
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	reply := fmt.Sprintf("Observation recorded in %s.", path.Base(out.JournalURI))
	if out.Insight != nil {
		reply += " Insight saved to " + out.Insight.Path + "."
	}
	return textResult(reply), nil, nil
}

func (s *Server) handleRead(ctx context.Context, _ *mcp.CallToolRequest, in ReadInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Path) == "" {
		return nil, nil, NewInvalidParamsError("path parameter is required")
	}
	content, err := s.svc.Read(ctx, in.Path)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(content), nil, nil
}
