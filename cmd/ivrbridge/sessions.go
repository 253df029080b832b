package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harunnryd/ivrbridge/internal/gateway"
	"github.com/harunnryd/ivrbridge/internal/session"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect live call sessions",
	Long:  `List, show and end call sessions on a running ivrbridge server through its admin endpoints.`,
}

var sessionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List active sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, asJSON, err := adminClientFor(cmd)
		if err != nil {
			return err
		}
		active, err := client.Active(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			return writeIndentedJSON(cmd.OutOrStdout(), active)
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatSummaries(active.Sessions))
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [call-id]",
	Short: "Show one session with its transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, asJSON, err := adminClientFor(cmd)
		if err != nil {
			return err
		}
		sess, err := client.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return writeIndentedJSON(cmd.OutOrStdout(), sess)
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatSession(sess))
		return nil
	},
}

var sessionsEndCmd = &cobra.Command{
	Use:   "end [call-id]",
	Short: "End a session as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := adminClientFor(cmd)
		if err != nil {
			return err
		}
		if err := client.End(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s ended\n", args[0])
		return nil
	},
}

// adminClient talks to the admin endpoints of a running server.
type adminClient struct {
	baseURL string
	http    *http.Client
}

func newAdminClient(baseURL string) *adminClient {
	return &adminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func adminClientFor(cmd *cobra.Command) (*adminClient, bool, error) {
	asJSON, _ := cmd.Flags().GetBool("json")
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		loaded, err := loadConfigForCommand(cmd)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load config: %w", err)
		}
		addr = fmt.Sprintf("http://127.0.0.1:%d", loaded.Server.Port)
	}
	return newAdminClient(addr), asJSON, nil
}

func (c *adminClient) do(ctx context.Context, method, path string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ivrbridge server unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
			return fmt.Errorf("%s %s: %s", method, path, detail.Detail)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *adminClient) Active(ctx context.Context) (*gateway.ActiveSessions, error) {
	var out gateway.ActiveSessions
	if err := c.do(ctx, http.MethodGet, "/sessions/active", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) Get(ctx context.Context, callID string) (*session.Session, error) {
	var out session.Session
	if err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(callID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) End(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodDelete, "/session/"+url.PathEscape(callID), nil)
}

var (
	tableAccent = lipgloss.Color("99")
	headerStyle = lipgloss.NewStyle().Foreground(tableAccent).Bold(true).Align(lipgloss.Center).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(tableAccent)
)

func formatSummaries(summaries []session.Summary) string {
	if len(summaries) == 0 {
		return "No active sessions."
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return cellStyle
			default:
				return oddRowStyle
			}
		}).
		Headers("Call ID", "Caller", "Started", "Turns", "Intent")

	for _, s := range summaries {
		t.Row(
			truncateString(s.CallID, 36),
			s.CallerRef,
			s.StartTime.Local().Format("15:04:05"),
			fmt.Sprintf("%d", s.InteractionCount),
			s.CurrentIntent,
		)
	}
	return t.String() + fmt.Sprintf("\nTotal: %d session(s)", len(summaries))
}

func formatSession(sess *session.Session) string {
	details := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return headerStyle
			}
			return cellStyle
		})
	details.Row("Call ID", sess.CallID)
	details.Row("Caller", sess.CallerRef)
	details.Row("Status", string(sess.Status))
	details.Row("Started", sess.StartTime.Local().Format(time.RFC3339))
	details.Row("Intent", sess.CurrentIntent)
	if sess.CustomerID != "" {
		details.Row("Customer", sess.CustomerID)
	}
	for _, key := range sess.Context.Keys() {
		details.Row("ctx."+key, truncateString(sess.Context[key].Text(), 60))
	}

	var b strings.Builder
	b.WriteString(details.String())
	b.WriteString("\n")
	for _, it := range sess.Interactions {
		fmt.Fprintf(&b, "\n[%s] %-6s %s", it.Timestamp.Local().Format("15:04:05"), it.Speaker, it.Message)
	}
	return b.String()
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func init() {
	sessionsCmd.PersistentFlags().String("addr", "", "server base URL (default http://127.0.0.1:<server.port>)")
	sessionsCmd.PersistentFlags().Bool("json", false, "print raw JSON")
	sessionsCmd.AddCommand(sessionsLsCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsEndCmd)
	rootCmd.AddCommand(sessionsCmd)
}
