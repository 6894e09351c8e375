package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	chatsvc "github.com/rzbill/relay/internal/services/chat"
)

// errStopTail ends a tail without reporting an error.
var errStopTail = errors.New("stop tail")

// newChatTailCommand constructs the `chat tail` subcommand.
func newChatTailCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the room over Server-Sent Events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			since, _ := cmd.Flags().GetUint64("since")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			pings, _ := cmd.Flags().GetBool("pings")

			q := url.Values{}
			q.Set("since", strconv.FormatUint(since, 10))
			if filter != "" {
				q.Set("filter", filter)
			}
			out := cmd.OutOrStdout()
			seen := 0
			err := tailStream(cmd.Context(), endpoint(baseURL, "/stream", q), func(f chatsvc.Frame) error {
				switch f.Type {
				case chatsvc.FrameEvent:
					fmt.Fprintln(out, formatEvent(f.Event))
					seen++
					if limit > 0 && seen >= limit {
						return errStopTail
					}
				case chatsvc.FrameUserCount:
					fmt.Fprintf(out, "-- %d online: %s\n", f.Count, strings.Join(f.Users, ", "))
				case chatsvc.FramePing:
					if pings {
						fmt.Fprintln(out, "-- ping")
					}
				}
				return nil
			})
			if errors.Is(err, errStopTail) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Uint64("since", 0, "Start after this event id (0 replays the retained backlog)")
	cmd.Flags().String("filter", "", "CEL expression over id, kind, text, author, ts_ms")
	cmd.Flags().Int("limit", 0, "Stop after this many events (0 = follow until interrupted)")
	cmd.Flags().Bool("pings", false, "Print keep-alive pings")
	return cmd
}

// tailStream opens an SSE connection and hands every frame to fn until the
// stream ends, ctx is cancelled, or fn returns an error.
func tailStream(ctx context.Context, u string, fn func(chatsvc.Frame) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return responseError(resp)
	}
	return readFrames(resp.Body, fn)
}

// readFrames parses an SSE body. Multi-line data fields are joined with
// newlines; comment lines and unknown fields are ignored.
func readFrames(r io.Reader, fn func(chatsvc.Frame) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var data []string
	dispatch := func() error {
		if len(data) == 0 {
			return nil
		}
		payload := strings.Join(data, "\n")
		data = data[:0]
		var f chatsvc.Frame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		return fn(f)
	}
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return dispatch()
}
