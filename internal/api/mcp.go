package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kessl/chored/internal/chores"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Manager *chores.Manager
}

// NewMCPServer creates an MCP server exposing the chore tracker as
// assistant tools, so a chat frontend can create, list, complete, and
// nudge chores on the household's behalf.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"chored",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("chored — household chore tracker. Tasks are per-member; any member may complete or toggle another member's task."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("add_task",
			mcp.WithDescription("Create a chore for a household member."),
			mcp.WithString("owner", mcp.Description("Member the chore belongs to"), mcp.Required()),
			mcp.WithString("title", mcp.Description("What needs doing"), mcp.Required()),
			mcp.WithString("kind", mcp.Description("one-time, recurring, or daily"), mcp.Required()),
			mcp.WithString("time", mcp.Description("Display time HH:MM (default 23:59)")),
			mcp.WithString("date", mcp.Description("Due date YYYY-MM-DD (one-time tasks only)")),
			mcp.WithArray("days", mcp.Description("Weekday codes Mon..Sun (recurring tasks only)")),
		),
		mcpAddTask(deps),
	)

	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List a member's chores: all of them, today's, or only the ones still awaiting action."),
			mcp.WithString("owner", mcp.Description("Member whose chores to list"), mcp.Required()),
			mcp.WithString("filter", mcp.Description("all, dueToday, or actionable (default all)")),
		),
		mcpListTasks(deps),
	)

	s.AddTool(
		mcp.NewTool("household_tasks",
			mcp.WithDescription("List other members' chores still awaiting action — what can be nudged."),
			mcp.WithString("exclude", mcp.Description("Member asking, excluded from the result")),
		),
		mcpHouseholdTasks(deps),
	)

	s.AddTool(
		mcp.NewTool("complete_task",
			mcp.WithDescription("Mark a chore done for today. Repeating the call changes nothing."),
			mcp.WithString("owner", mcp.Description("Member the chore belongs to"), mcp.Required()),
			mcp.WithString("task_id", mcp.Description("Task id"), mcp.Required()),
			mcp.WithString("actor", mcp.Description("Member performing the action, if not the owner")),
		),
		mcpCompleteTask(deps),
	)

	s.AddTool(
		mcp.NewTool("toggle_task",
			mcp.WithDescription("Flip today's done mark for a chore; each call alternates."),
			mcp.WithString("owner", mcp.Description("Member the chore belongs to"), mcp.Required()),
			mcp.WithString("task_id", mcp.Description("Task id"), mcp.Required()),
			mcp.WithString("actor", mcp.Description("Member performing the action, if not the owner")),
		),
		mcpToggleTask(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_task",
			mcp.WithDescription("Delete a chore. The deletion is recorded in history."),
			mcp.WithString("owner", mcp.Description("Member the chore belongs to"), mcp.Required()),
			mcp.WithString("task_id", mcp.Description("Task id"), mcp.Required()),
			mcp.WithString("actor", mcp.Description("Member performing the action, if not the owner")),
		),
		mcpDeleteTask(deps),
	)

	s.AddTool(
		mcp.NewTool("list_history",
			mcp.WithDescription("Show recent chore activity (completions, misses, deletions), newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum entries (default 20)")),
		),
		mcpListHistory(deps),
	)

	return s
}

func mcpAddTask(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := req.RequireString("owner")
		if err != nil {
			return mcpError("owner is required"), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		kind, err := req.RequireString("kind")
		if err != nil {
			return mcpError("kind is required"), nil
		}

		task, err := deps.Manager.CreateTask(owner, title, kind,
			req.GetString("time", ""), req.GetString("date", ""), req.GetStringSlice("days", nil))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create task: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Created task %s (%s) for %s", task.ID, task.Title, owner)), nil
	}
}

func mcpListTasks(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := req.RequireString("owner")
		if err != nil {
			return mcpError("owner is required"), nil
		}
		filter, err := chores.ParseFilter(req.GetString("filter", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		tasks, err := deps.Manager.UserTasks(owner, filter)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list tasks: %v", err)), nil
		}
		return mcpJSON(toTaskListJSON(tasks))
	}
}

func mcpHouseholdTasks(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tasks, err := deps.Manager.HouseholdTasks(req.GetString("exclude", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list household tasks: %v", err)), nil
		}
		return mcpJSON(toTaskListJSON(tasks))
	}
}

func mcpCompleteTask(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, taskID, actor, errRes := requireTaskRef(req)
		if errRes != nil {
			return errRes, nil
		}
		if err := deps.Manager.CompleteTask(owner, taskID, actor); err != nil {
			return mcpError(fmt.Sprintf("failed to complete task: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Task %s marked completed for today", taskID)), nil
	}
}

func mcpToggleTask(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, taskID, actor, errRes := requireTaskRef(req)
		if errRes != nil {
			return errRes, nil
		}
		status, err := deps.Manager.ToggleCompletion(owner, taskID, actor)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to toggle task: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Task %s is now %s", taskID, status)), nil
	}
}

func mcpDeleteTask(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, taskID, actor, errRes := requireTaskRef(req)
		if errRes != nil {
			return errRes, nil
		}
		if err := deps.Manager.DeleteTask(owner, taskID, actor); err != nil {
			return mcpError(fmt.Sprintf("failed to delete task: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Task %s deleted", taskID)), nil
	}
}

func mcpListHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)

		entries, err := deps.Manager.History(limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list history: %v", err)), nil
		}

		type entryJSON struct {
			TaskID    string `json:"task_id"`
			Title     string `json:"title"`
			Status    string `json:"status"`
			Timestamp string `json:"timestamp"`
			Actor     string `json:"user"`
		}
		out := make([]entryJSON, len(entries))
		for i, e := range entries {
			out[i] = entryJSON{
				TaskID:    e.TaskID,
				Title:     e.Title,
				Status:    e.Status,
				Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
				Actor:     e.Actor,
			}
		}
		return mcpJSON(out)
	}
}

func requireTaskRef(req mcp.CallToolRequest) (owner, taskID, actor string, errRes *mcp.CallToolResult) {
	owner, err := req.RequireString("owner")
	if err != nil {
		return "", "", "", mcpError("owner is required")
	}
	taskID, err = req.RequireString("task_id")
	if err != nil {
		return "", "", "", mcpError("task_id is required")
	}
	return owner, taskID, req.GetString("actor", ""), nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
