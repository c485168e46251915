// Package api exposes the chore core to external presentation layers: a
// bearer-token HTTP surface for CLI/bot glue, and an MCP server for chat
// assistants. It renders no user-facing text beyond plain JSON errors.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kessl/chored/internal/chores"
	"github.com/kessl/chored/internal/storage"
)

const maxBodySize = 1 << 20 // 1MB

type AppDeps struct {
	Manager *chores.Manager
	Token   string
}

// NewAppHandler builds the full HTTP surface. Only /health is reachable
// without the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/users", handleAddUser(deps))
		r.Get("/users", handleListUsers(deps))
		r.Delete("/users/{name}", handleDeleteUser(deps))
		r.Get("/users/{name}/contact", handleGetContact(deps))

		r.Post("/users/{name}/tasks", handleCreateTask(deps))
		r.Get("/users/{name}/tasks", handleListTasks(deps))
		r.Get("/users/{name}/tasks/{id}", handleGetTask(deps))
		r.Patch("/users/{name}/tasks/{id}", handleEditTask(deps))
		r.Delete("/users/{name}/tasks/{id}", handleDeleteTask(deps))
		r.Post("/users/{name}/tasks/{id}/complete", handleCompleteTask(deps))
		r.Post("/users/{name}/tasks/{id}/toggle", handleToggleTask(deps))

		r.Get("/tasks", handleHouseholdTasks(deps))
		r.Get("/history", handleHistory(deps))
		r.Post("/sweep", handleSweep(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// taskJSON is the wire shape of a task; it mirrors the stored layout so a
// live store migrated from the old bot stays readable.
type taskJSON struct {
	ID            string   `json:"id"`
	Owner         string   `json:"owner"`
	Title         string   `json:"title"`
	Kind          string   `json:"kind"`
	ScheduledTime string   `json:"time"`
	DueDate       string   `json:"date,omitempty"`
	Days          []string `json:"days,omitempty"`
	Completions   []string `json:"completions"`
	CreatedAt     string   `json:"created_at"`
}

func toTaskJSON(t storage.Task) taskJSON {
	completions := t.Completions
	if completions == nil {
		completions = []string{}
	}
	return taskJSON{
		ID:            t.ID,
		Owner:         t.Owner,
		Title:         t.Title,
		Kind:          t.Kind,
		ScheduledTime: t.ScheduledTime,
		DueDate:       t.DueDate,
		Days:          t.Days,
		Completions:   completions,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toTaskListJSON(tasks []storage.Task) []taskJSON {
	out := make([]taskJSON, len(tasks))
	for i, t := range tasks {
		out[i] = toTaskJSON(t)
	}
	return out
}

// --- Users ---

func handleAddUser(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name           string `json:"name"`
			ContactAddress string `json:"contact_address"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Manager.AddUser(req.Name, req.ContactAddress); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
	}
}

func handleListUsers(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := deps.Manager.ListUsers()
		if err != nil {
			writeError(w, err)
			return
		}
		type userJSON struct {
			Name           string `json:"name"`
			ContactAddress string `json:"contact_address,omitempty"`
		}
		out := make([]userJSON, len(users))
		for i, u := range users {
			out[i] = userJSON{Name: u.Name, ContactAddress: u.ContactAddress}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleDeleteUser(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Manager.DeleteUser(chi.URLParam(r, "name")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGetContact(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := deps.Manager.ContactAddress(chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"contact_address": addr})
	}
}

// --- Tasks ---

func handleCreateTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title         string   `json:"title"`
			Kind          string   `json:"kind"`
			ScheduledTime string   `json:"time"`
			DueDate       string   `json:"date"`
			Days          []string `json:"days"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		task, err := deps.Manager.CreateTask(chi.URLParam(r, "name"), req.Title, req.Kind, req.ScheduledTime, req.DueDate, req.Days)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toTaskJSON(task))
	}
}

func handleListTasks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := chores.ParseFilter(r.URL.Query().Get("filter"))
		if err != nil {
			writeError(w, err)
			return
		}
		tasks, err := deps.Manager.UserTasks(chi.URLParam(r, "name"), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTaskListJSON(tasks))
	}
}

func handleGetTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, err := deps.Manager.TaskByID(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if task.Owner != chi.URLParam(r, "name") {
			writeError(w, storage.ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, toTaskJSON(task))
	}
}

func handleEditTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title         string   `json:"title"`
			ScheduledTime string   `json:"time"`
			DueDate       string   `json:"date"`
			Days          []string `json:"days"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		err := deps.Manager.EditTask(chi.URLParam(r, "name"), chi.URLParam(r, "id"), chores.TaskEdits{
			Title:         req.Title,
			ScheduledTime: req.ScheduledTime,
			DueDate:       req.DueDate,
			Days:          req.Days,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := r.URL.Query().Get("actor")
		if err := deps.Manager.DeleteTask(chi.URLParam(r, "name"), chi.URLParam(r, "id"), actor); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCompleteTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := decodeActor(w, r)
		if !ok {
			return
		}
		if err := deps.Manager.CompleteTask(chi.URLParam(r, "name"), chi.URLParam(r, "id"), actor); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": storage.StatusCompleted})
	}
}

func handleToggleTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := decodeActor(w, r)
		if !ok {
			return
		}
		status, err := deps.Manager.ToggleCompletion(chi.URLParam(r, "name"), chi.URLParam(r, "id"), actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}

func handleHouseholdTasks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := deps.Manager.HouseholdTasks(r.URL.Query().Get("exclude"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTaskListJSON(tasks))
	}
}

// --- History & sweep ---

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		entries, err := deps.Manager.History(limit, offset)
		if err != nil {
			writeError(w, err)
			return
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
		writeJSON(w, http.StatusOK, out)
	}
}

func handleSweep(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Manager.SweepIncomplete(time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"incomplete_logged": n})
	}
}

// --- helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// decodeActor reads the optional {"actor": ...} body; an absent or empty
// body means the owner acts for themselves.
func decodeActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	var req struct {
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return "", false
	}
	return req.Actor, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
