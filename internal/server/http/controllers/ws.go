package controllers

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	chatsvc "github.com/rzbill/relay/internal/services/chat"
)

// wsSink implements chatsvc.StreamSink over a WebSocket connection. Each
// frame is one JSON text message.
type wsSink struct {
	conn         *websocket.Conn
	ctx          context.Context
	writeTimeout time.Duration
}

func (s *wsSink) Send(f chatsvc.Frame) error {
	ctx := s.ctx
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, s.conn, f)
}

func (s *wsSink) Context() context.Context { return s.ctx }

// Flush is a no-op; every message is written whole.
func (s *wsSink) Flush() error { return nil }
