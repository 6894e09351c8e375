package controllers

import (
	"net/http"

	"github.com/rzbill/relay/internal/runtime"
	chatsvc "github.com/rzbill/relay/internal/services/chat"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	chat    *ChatController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, chat *chatsvc.Service, limiter *ProducerLimiter, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt, chat, logger),
		chat:    NewChatController(chat, limiter, logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.chat.RegisterRoutes(mux)
}
