package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	chatsvc "github.com/rzbill/relay/internal/services/chat"
)

// sseSink implements chatsvc.StreamSink for Server-Sent Events.
//
// Headers are written with the first frame, so a stream rejected before
// delivering anything can still answer with a JSON error.
type sseSink struct {
	w       http.ResponseWriter
	r       *http.Request
	ctx     context.Context
	started bool
}

func (s *sseSink) start() {
	if s.started {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

// Send writes the frame as an SSE data event.
func (s *sseSink) Send(f chatsvc.Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.start()
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return nil
}

// Context returns the stream context for cancellation.
func (s *sseSink) Context() context.Context {
	return s.ctx
}

// Flush pushes buffered frames to the client.
func (s *sseSink) Flush() error {
	s.start()
	return http.NewResponseController(s.w).Flush()
}
