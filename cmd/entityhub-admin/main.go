// Command entityhub-admin inspects and manages records through the entityhub REST API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
)

type page struct {
	Items  []map[string]any `json:"items"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type stats struct {
	TotalCount  int64 `json:"total_count"`
	ActiveCount int64 `json:"active_count"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	baseURL := os.Getenv("ENTITYHUB_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	c := newClient(baseURL, os.Getenv("ENTITYHUB_TOKEN"))

	cmd := os.Args[1]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage(os.Stdout)
		return
	}
	if err := run(context.Background(), c, os.Stdout, cmd, os.Args[2:]); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client, out io.Writer, cmd string, args []string) error {
	switch cmd {
	case "collections":
		return cmdCollections(ctx, c, out)
	case "stats":
		return cmdStats(ctx, c, out, args)
	case "list":
		return cmdList(ctx, c, out, args)
	case "get":
		return cmdGet(ctx, c, out, args)
	case "delete":
		return cmdDelete(ctx, c, out, args)
	default:
		printUsage(out)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printUsage(out io.Writer) {
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(out, "Usage: entityhub-admin <command> [args]")
	fmt.Fprintln(out)
	yellow.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  collections                     List served collections")
	fmt.Fprintln(out, "  stats <collection> [user_id]    Show total and active counts")
	fmt.Fprintln(out, "  list <collection> [limit] [offset]  List records")
	fmt.Fprintln(out, "  get <collection> <id>           Show one record")
	fmt.Fprintln(out, "  delete <collection> <id>        Delete one record")
	fmt.Fprintln(out)
	yellow.Fprintln(out, "Environment:")
	fmt.Fprintln(out, "  ENTITYHUB_URL     Server URL (default: http://localhost:8080)")
	fmt.Fprintln(out, "  ENTITYHUB_TOKEN   API key sent as a bearer token")
}

func need(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: entityhub-admin %s", usage)
	}
	return nil
}

func cmdCollections(ctx context.Context, c *client, out io.Writer) error {
	var data struct {
		Collections []string `json:"collections"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/collections", nil, &data); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Fprintf(out, "%d collections\n", len(data.Collections))
	for _, name := range data.Collections {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

func cmdStats(ctx context.Context, c *client, out io.Writer, args []string) error {
	if err := need(args, 1, "stats <collection> [user_id]"); err != nil {
		return err
	}
	query := url.Values{}
	if len(args) > 1 {
		query.Set("user_id", args[1])
	}

	var s stats
	if _, err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(args[0])+"/stats", query, &s); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	fmt.Fprintf(out, "%s\n", args[0])
	fmt.Fprintf(out, "  total:  %d\n", s.TotalCount)
	green.Fprintf(out, "  active: %d\n", s.ActiveCount)
	return nil
}

func cmdList(ctx context.Context, c *client, out io.Writer, args []string) error {
	if err := need(args, 1, "list <collection> [limit] [offset]"); err != nil {
		return err
	}
	query := url.Values{}
	for i, key := range []string{"limit", "offset"} {
		if len(args) > i+1 {
			if _, err := strconv.Atoi(args[i+1]); err != nil {
				return fmt.Errorf("invalid %s: %s", key, args[i+1])
			}
			query.Set(key, args[i+1])
		}
	}

	var p page
	if _, err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(args[0]), query, &p); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Fprintf(out, "%d of %d records (offset %d)\n", len(p.Items), p.Total, p.Offset)
	if len(p.Items) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tUSER\tUPDATED")
	for _, rec := range p.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", str(rec["id"]), str(rec["status"]), str(rec["user_id"]), str(rec["updated_at"]))
	}
	return w.Flush()
}

func cmdGet(ctx context.Context, c *client, out io.Writer, args []string) error {
	if err := need(args, 2, "get <collection> <id>"); err != nil {
		return err
	}

	var rec map[string]any
	if _, err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(args[0])+"/"+url.PathEscape(args[1]), nil, &rec); err != nil {
		return err
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, str(rec[k]))
	}
	return w.Flush()
}

func cmdDelete(ctx context.Context, c *client, out io.Writer, args []string) error {
	if err := need(args, 2, "delete <collection> <id>"); err != nil {
		return err
	}

	env, err := c.do(ctx, http.MethodDelete, "/"+url.PathEscape(args[0])+"/"+url.PathEscape(args[1]), nil, nil)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(out, "%s: %s\n", env.Message, args[1])
	return nil
}

// str renders a JSON value for a table cell.
func str(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
