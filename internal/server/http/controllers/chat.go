package controllers

import (
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/rzbill/relay/internal/event"
	chatsvc "github.com/rzbill/relay/internal/services/chat"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// wsWriteTimeout bounds a single WebSocket frame write.
const wsWriteTimeout = 10 * time.Second

// ChatController serves the room's producer and consumer endpoints.
type ChatController struct {
	chat    *chatsvc.Service
	limiter *ProducerLimiter
	logger  logpkg.Logger
}

// NewChatController creates a chat controller. A nil limiter disables rate
// limiting.
func NewChatController(chat *chatsvc.Service, limiter *ProducerLimiter, logger logpkg.Logger) *ChatController {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &ChatController{chat: chat, limiter: limiter, logger: logger}
}

// RegisterRoutes registers the chat routes with the given mux.
func (c *ChatController) RegisterRoutes(mux *http.ServeMux) {
	// Producers
	mux.HandleFunc("/join", c.limiter.Wrap(c.handleJoin))
	mux.HandleFunc("/leave", c.limiter.Wrap(c.handleLeave))
	mux.HandleFunc("/message", c.limiter.Wrap(c.handleMessage))
	mux.HandleFunc("/send", c.limiter.Wrap(c.handleSend))
	mux.HandleFunc("/clear", c.limiter.Wrap(c.handleClear))

	// Consumers
	mux.HandleFunc("/messages", c.handleMessages)
	mux.HandleFunc("/stream", c.handleStreamSSE)
	mux.HandleFunc("/ws", c.handleStreamWS)
}

// handleJoin adds a user to the room.
func (c *ChatController) handleJoin(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req usernameReq
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, c.logger, "join", err)
		return
	}
	res, err := c.chat.Join(r.Context(), req.Username)
	if err != nil {
		writeServiceError(w, r, c.logger, "join", err)
		return
	}
	writeJSON(w, presenceResp{Success: true, UserCount: res.UserCount, MessageID: res.MessageID})
}

// handleLeave removes a user from the room. Leaving twice succeeds.
func (c *ChatController) handleLeave(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req usernameReq
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, c.logger, "leave", err)
		return
	}
	res, err := c.chat.Leave(r.Context(), req.Username)
	if err != nil {
		writeServiceError(w, r, c.logger, "leave", err)
		return
	}
	writeJSON(w, presenceResp{Success: true, UserCount: res.UserCount, MessageID: res.MessageID})
}

// handleMessage posts a message.
func (c *ChatController) handleMessage(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req messageReq
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, c.logger, "message", err)
		return
	}
	ev, err := c.chat.PostMessage(r.Context(), req.Username, req.Message)
	if err != nil {
		writeServiceError(w, r, c.logger, "message", err)
		return
	}
	writeJSON(w, messageResp{Success: true, MessageID: ev.ID})
}

// handleSend dispatches join, leave or message by the action field.
func (c *ChatController) handleSend(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req sendReq
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, c.logger, "send", err)
		return
	}
	res, err := c.chat.Send(r.Context(), chatsvc.SendRequest{Username: req.Username, Message: req.Message, Action: req.Action})
	if err != nil {
		writeServiceError(w, r, c.logger, "send", err)
		return
	}
	writeJSON(w, presenceResp{Success: true, UserCount: res.UserCount, MessageID: res.MessageID})
}

// handleClear drops the history and the presence set.
func (c *ChatController) handleClear(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := c.chat.Clear(r.Context()); err != nil {
		writeServiceError(w, r, c.logger, "clear", err)
		return
	}
	writeJSON(w, clearResp{Success: true, Message: "Chat data cleared successfully"})
}

// handleMessages answers a poll: events newer than ?since plus presence.
func (c *ChatController) handleMessages(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	upd, err := c.chat.GetUpdates(r.Context(), parseSince(q.Get("since")), chatsvc.PollOptions{Filter: q.Get("filter")})
	if err != nil {
		writeServiceError(w, r, c.logger, "messages", err)
		return
	}
	msgs := upd.Events
	if msgs == nil {
		msgs = []event.Event{}
	}
	writeJSON(w, messagesResp{
		Success:       true,
		Messages:      msgs,
		UserCount:     upd.UserCount,
		LastMessageID: upd.HighestID,
		ServerTime:    upd.ServerTime,
	})
}

// handleStreamSSE streams events newer than ?since over Server-Sent Events.
func (c *ChatController) handleStreamSSE(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	sink := &sseSink{w: w, r: r, ctx: r.Context()}
	err := c.chat.StreamSubscribe(r.Context(), parseSince(q.Get("since")), chatsvc.StreamOptions{Filter: q.Get("filter")}, sink)
	if err != nil && !sink.started {
		writeServiceError(w, r, c.logger, "stream", err)
	}
}

// handleStreamWS streams the same frames as /stream over a WebSocket.
func (c *ChatController) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	opts := chatsvc.StreamOptions{Filter: q.Get("filter")}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		c.logger.WithContext(r.Context()).Debug("websocket accept failed", logpkg.Err(err))
		return
	}
	defer conn.CloseNow()

	// the client never sends; CloseRead notices its close frame
	ctx := conn.CloseRead(r.Context())
	sink := &wsSink{conn: conn, ctx: ctx, writeTimeout: wsWriteTimeout}
	if err := c.chat.StreamSubscribe(ctx, parseSince(q.Get("since")), opts, sink); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "stream closed")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
