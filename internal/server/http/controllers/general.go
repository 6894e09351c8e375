package controllers

import (
	"net/http"

	"github.com/rzbill/relay/internal/runtime"
	chatsvc "github.com/rzbill/relay/internal/services/chat"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// GeneralController handles health and stats endpoints.
type GeneralController struct {
	rt     *runtime.Runtime
	chat   *chatsvc.Service
	logger logpkg.Logger
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime, chat *chatsvc.Service, logger logpkg.Logger) *GeneralController {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &GeneralController{rt: rt, chat: chat, logger: logger}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", c.handleHealth)
	mux.HandleFunc("/stats", c.handleStats)
}

// handleHealth returns 200 {"status":"ok"} when the store answers, 503
// otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		c.logger.Warn("health check failed", logpkg.Err(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStats summarizes the room.
func (c *GeneralController) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	st, err := c.chat.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, c.logger, "stats", err)
		return
	}
	writeJSON(w, statsResp{
		Streams:        st.Streams,
		UserCount:      st.UserCount,
		LastMessageID:  st.LastMessageID,
		Retained:       st.Retained,
		CorruptSkipped: st.CorruptSkipped,
	})
}
