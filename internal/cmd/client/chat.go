package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/relay/internal/event"
)

// NewChatCommand returns the `chat` command group.
func NewChatCommand(baseURL BaseURLFunc) *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat room operations",
	}

	chatCmd.AddCommand(
		newChatJoinCommand(baseURL),
		newChatLeaveCommand(baseURL),
		newChatSendCommand(baseURL),
		newChatMessagesCommand(baseURL),
		newChatTailCommand(baseURL),
		newChatClearCommand(baseURL),
	)

	return chatCmd
}

type presenceResp struct {
	Success   bool   `json:"success"`
	UserCount int    `json:"userCount"`
	MessageID uint64 `json:"messageId"`
}

// newChatJoinCommand constructs the `chat join` subcommand.
func newChatJoinCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join the room",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("username")
			var out presenceResp
			body := map[string]string{"username": name}
			if err := postJSON(cmd.Context(), baseURL, "/join", body, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "joined: id=%d users=%d\n", out.MessageID, out.UserCount)
			return nil
		},
	}
	cmd.Flags().String("username", "", "Display name")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// newChatLeaveCommand constructs the `chat leave` subcommand.
func newChatLeaveCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leave",
		Short: "Leave the room",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("username")
			var out presenceResp
			body := map[string]string{"username": name}
			if err := postJSON(cmd.Context(), baseURL, "/leave", body, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "left: id=%d users=%d\n", out.MessageID, out.UserCount)
			return nil
		},
	}
	cmd.Flags().String("username", "", "Display name")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// newChatSendCommand constructs the `chat send` subcommand.
func newChatSendCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Post a message (or another action) through /send",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("username")
			msg, _ := cmd.Flags().GetString("message")
			action, _ := cmd.Flags().GetString("action")
			body := map[string]string{"username": name, "message": msg}
			if action != "" {
				body["action"] = action
			}
			var out presenceResp
			if err := postJSON(cmd.Context(), baseURL, "/send", body, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent: id=%d\n", out.MessageID)
			return nil
		},
	}
	cmd.Flags().String("username", "", "Display name")
	cmd.Flags().String("message", "", "Message text")
	cmd.Flags().String("action", "", "Action: message|join|leave (default message)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// newChatMessagesCommand constructs the `chat messages` subcommand.
func newChatMessagesCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Poll events newer than --since",
		RunE: func(cmd *cobra.Command, _ []string) error {
			since, _ := cmd.Flags().GetUint64("since")
			filter, _ := cmd.Flags().GetString("filter")
			asJSON, _ := cmd.Flags().GetBool("json")

			q := url.Values{}
			q.Set("since", strconv.FormatUint(since, 10))
			if filter != "" {
				q.Set("filter", filter)
			}
			var out struct {
				Success       bool          `json:"success"`
				Messages      []event.Event `json:"messages"`
				UserCount     int           `json:"userCount"`
				LastMessageID uint64        `json:"lastMessageId"`
				ServerTime    time.Time     `json:"serverTime"`
			}
			if err := getJSON(cmd.Context(), baseURL, "/messages", q, &out); err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			for _, ev := range out.Messages {
				fmt.Fprintln(cmd.OutOrStdout(), formatEvent(ev))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "users=%d last=%d\n", out.UserCount, out.LastMessageID)
			return nil
		},
	}
	cmd.Flags().Uint64("since", 0, "Only return events with id greater than this")
	cmd.Flags().String("filter", "", "CEL expression over id, kind, text, author, ts_ms")
	cmd.Flags().Bool("json", false, "Print the raw response as JSON")
	return cmd
}

// newChatClearCommand constructs the `chat clear` subcommand.
func newChatClearCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop all retained events and presence (requires --confirm)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return fmt.Errorf("refusing to clear without --confirm")
			}
			var out struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			if err := postJSON(cmd.Context(), baseURL, "/clear", nil, &out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Message)
			return nil
		},
	}
	cmd.Flags().Bool("confirm", false, "Confirm clearing the room")
	return cmd
}

// formatEvent renders one event as a single terminal line.
func formatEvent(ev event.Event) string {
	ts := ev.CreatedAt.Local().Format("15:04:05")
	if ev.IsSystem() {
		return fmt.Sprintf("[%d %s] * %s", ev.ID, ts, ev.Text)
	}
	return fmt.Sprintf("[%d %s] <%s> %s", ev.ID, ts, ev.AuthorName(), ev.Text)
}
