package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kessl/chored/internal/config"
)

// wire shapes returned by the daemon API.
type taskView struct {
	ID            string   `json:"id"`
	Owner         string   `json:"owner"`
	Title         string   `json:"title"`
	Kind          string   `json:"kind"`
	ScheduledTime string   `json:"time"`
	DueDate       string   `json:"date"`
	Days          []string `json:"days"`
	Completions   []string `json:"completions"`
}

type historyView struct {
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"user"`
}

func taskPath(owner, id string) string {
	return "/users/" + url.PathEscape(owner) + "/tasks/" + url.PathEscape(id)
}

func printTask(t taskView) {
	marker := " "
	today := time.Now().Format("2006-01-02")
	for _, day := range t.Completions {
		if day == today {
			marker = colorize(colorGreen, "✓")
			break
		}
	}

	var when string
	switch t.Kind {
	case "daily":
		when = "every day " + t.ScheduledTime
	case "recurring":
		when = strings.Join(t.Days, ",") + " " + t.ScheduledTime
	case "one-time":
		when = t.DueDate + " " + t.ScheduledTime
	default:
		when = t.Kind
	}

	fmt.Printf("%s %s  %s  %s\n", marker, colorize(colorCyan, t.ID[:8]), t.Title, colorize(colorBold, when))
}

// --- task ---

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage chores",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <owner> <title>",
	Short: "Add a chore",
	Long: `Add a chore for a household member.

Examples:
  chored task add alice "Water the plants" --kind daily --time 09:00
  chored task add alice "Take out trash" --kind recurring --days Mon,Thu
  chored task add bob "Renew passport" --kind one-time --date 2026-09-15`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, title := args[0], args[1]
		kind, _ := cmd.Flags().GetString("kind")
		at, _ := cmd.Flags().GetString("time")
		date, _ := cmd.Flags().GetString("date")
		daysStr, _ := cmd.Flags().GetString("days")

		var days []string
		if daysStr != "" {
			days = strings.Split(daysStr, ",")
			for i := range days {
				days[i] = strings.TrimSpace(days[i])
			}
		}

		req := map[string]any{
			"title": title,
			"kind":  kind,
		}
		if at != "" {
			req["time"] = at
		}
		if date != "" {
			req["date"] = date
		}
		if days != nil {
			req["days"] = days
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/users/"+url.PathEscape(owner)+"/tasks", req)
		if err != nil {
			return err
		}

		var task taskView
		if err := decodeJSON(resp, &task); err != nil {
			return err
		}

		printSuccess("Added %q (%s)", task.Title, task.ID[:8])
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list <owner>",
	Short: "List a member's chores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/users/" + url.PathEscape(args[0]) + "/tasks"
		if filter != "" {
			path += "?filter=" + url.QueryEscape(filter)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var tasks []taskView
		if err := decodeJSON(resp, &tasks); err != nil {
			return err
		}

		if len(tasks) == 0 {
			fmt.Println("No chores found.")
			return nil
		}
		for _, t := range tasks {
			printTask(t)
		}
		return nil
	},
}

var taskOthersCmd = &cobra.Command{
	Use:   "others <me>",
	Short: "List chores the rest of the household still has to do",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/tasks?exclude="+url.QueryEscape(args[0]))
		if err != nil {
			return err
		}

		var tasks []taskView
		if err := decodeJSON(resp, &tasks); err != nil {
			return err
		}

		if len(tasks) == 0 {
			fmt.Println("Nothing outstanding for the rest of the household.")
			return nil
		}
		for _, t := range tasks {
			fmt.Printf("%s: ", colorize(colorBold, t.Owner))
			printTask(t)
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <owner> <id>",
	Short: "Show a single chore as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), taskPath(args[0], args[1]))
		if err != nil {
			return err
		}

		var task any
		if err := decodeJSON(resp, &task); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(task)
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <owner> <id>",
	Short: "Edit a chore's title or schedule",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		at, _ := cmd.Flags().GetString("time")
		date, _ := cmd.Flags().GetString("date")
		daysStr, _ := cmd.Flags().GetString("days")

		req := map[string]any{}
		if title != "" {
			req["title"] = title
		}
		if at != "" {
			req["time"] = at
		}
		if date != "" {
			req["date"] = date
		}
		if daysStr != "" {
			days := strings.Split(daysStr, ",")
			for i := range days {
				days[i] = strings.TrimSpace(days[i])
			}
			req["days"] = days
		}
		if len(req) == 0 {
			return fmt.Errorf("nothing to change: pass --title, --time, --date, or --days")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), taskPath(args[0], args[1]), req)
		if err != nil {
			return err
		}
		if err := drainBody(resp); err != nil {
			return err
		}

		printSuccess("Updated %s", args[1][:min(8, len(args[1]))])
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <owner> <id>",
	Short: "Mark a chore completed for today",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postCompletion(cmd, args, "/complete")
	},
}

var taskToggleCmd = &cobra.Command{
	Use:   "toggle <owner> <id>",
	Short: "Toggle today's completion on a chore",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postCompletion(cmd, args, "/toggle")
	},
}

func postCompletion(cmd *cobra.Command, args []string, suffix string) error {
	actor, _ := cmd.Flags().GetString("actor")

	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var body any
	if actor != "" {
		body = map[string]string{"actor": actor}
	}
	resp, err := client.post(cmd.Context(), taskPath(args[0], args[1])+suffix, body)
	if err != nil {
		return err
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	printSuccess("Now %s", result["status"])
	return nil
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <owner> <id>",
	Short: "Delete a chore",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := taskPath(args[0], args[1])
		if actor != "" {
			path += "?actor=" + url.QueryEscape(actor)
		}
		resp, err := client.delete(cmd.Context(), path)
		if err != nil {
			return err
		}
		if err := drainBody(resp); err != nil {
			return err
		}

		printSuccess("Deleted")
		return nil
	},
}

func init() {
	taskAddCmd.Flags().String("kind", "daily", "chore kind: daily, recurring, or one-time")
	taskAddCmd.Flags().String("time", "", "scheduled time of day (HH:MM)")
	taskAddCmd.Flags().String("date", "", "due date for one-time chores (YYYY-MM-DD)")
	taskAddCmd.Flags().String("days", "", "comma-separated weekdays for recurring chores (Mon,Tue,...)")

	taskListCmd.Flags().String("filter", "", "filter: all, actionable, or dueToday")

	taskEditCmd.Flags().String("title", "", "new title")
	taskEditCmd.Flags().String("time", "", "new scheduled time (HH:MM)")
	taskEditCmd.Flags().String("date", "", "new due date (YYYY-MM-DD)")
	taskEditCmd.Flags().String("days", "", "new comma-separated weekdays")

	taskDoneCmd.Flags().String("actor", "", "household member completing on the owner's behalf")
	taskToggleCmd.Flags().String("actor", "", "household member toggling on the owner's behalf")
	taskRmCmd.Flags().String("actor", "", "household member deleting on the owner's behalf")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskOthersCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskEditCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskToggleCmd)
	taskCmd.AddCommand(taskRmCmd)
}

// --- user ---

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage household members",
}

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a household member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contact, _ := cmd.Flags().GetString("contact")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]string{"name": args[0]}
		if contact != "" {
			req["contact_address"] = contact
		}
		resp, err := client.post(cmd.Context(), "/users", req)
		if err != nil {
			return err
		}
		if err := drainBody(resp); err != nil {
			return err
		}

		printSuccess("Added %s", args[0])
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List household members",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/users")
		if err != nil {
			return err
		}

		var users []struct {
			Name           string `json:"name"`
			ContactAddress string `json:"contact_address"`
		}
		if err := decodeJSON(resp, &users); err != nil {
			return err
		}

		if len(users) == 0 {
			fmt.Println("No members registered.")
			return nil
		}
		for _, u := range users {
			if u.ContactAddress != "" {
				fmt.Printf("%s  %s\n", colorize(colorBold, u.Name), u.ContactAddress)
			} else {
				fmt.Println(colorize(colorBold, u.Name))
			}
		}
		return nil
	},
}

var userRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a household member and their chores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/users/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := drainBody(resp); err != nil {
			return err
		}

		printSuccess("Removed %s", args[0])
		return nil
	},
}

func init() {
	userAddCmd.Flags().String("contact", "", "contact address for reminders")
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userRmCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the completion ledger, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d&offset=%d", limit, offset))
		if err != nil {
			return err
		}

		var entries []historyView
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No history yet.")
			return nil
		}
		for _, e := range entries {
			status := e.Status
			switch status {
			case "completed":
				status = colorize(colorGreen, status)
			case "incomplete":
				status = colorize(colorYellow, status)
			case "deleted":
				status = colorize(colorRed, status)
			}
			fmt.Printf("%s  %-10s  %s  (%s)\n", e.Timestamp, status, e.Title, e.Actor)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 50, "maximum number of entries")
	historyCmd.Flags().Int("offset", 0, "number of entries to skip")
}

// --- sweep ---

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the end-of-day sweep now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sweep", nil)
		if err != nil {
			return err
		}

		var result map[string]int
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Logged %d incomplete chore(s)", result["incomplete_logged"])
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
