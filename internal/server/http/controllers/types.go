package controllers

import (
	"time"

	"github.com/rzbill/relay/internal/event"
)

// Common request/response types for HTTP controllers

// errorResp is the failure envelope shared by every endpoint.
type errorResp struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// usernameReq is the body of /join and /leave.
type usernameReq struct {
	Username string `json:"username"`
}

// messageReq is the body of /message.
type messageReq struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// sendReq is the body of /send. Action defaults to "message".
type sendReq struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// presenceResp answers /join, /leave and /send.
type presenceResp struct {
	Success   bool   `json:"success"`
	UserCount int    `json:"userCount"`
	MessageID uint64 `json:"messageId"`
}

// messageResp answers /message.
type messageResp struct {
	Success   bool   `json:"success"`
	MessageID uint64 `json:"messageId"`
}

// messagesResp answers /messages.
type messagesResp struct {
	Success       bool          `json:"success"`
	Messages      []event.Event `json:"messages"`
	UserCount     int           `json:"userCount"`
	LastMessageID uint64        `json:"lastMessageId"`
	ServerTime    time.Time     `json:"serverTime"`
}

// clearResp answers /clear.
type clearResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// statsResp answers /stats.
type statsResp struct {
	Streams        int    `json:"streams"`
	UserCount      int    `json:"userCount"`
	LastMessageID  uint64 `json:"lastMessageId"`
	Retained       int    `json:"retained"`
	CorruptSkipped uint64 `json:"corruptSkipped"`
}
