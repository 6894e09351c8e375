// Package event defines the chat event model and the factory that builds
// canonical events from producer input.
//
// Events are immutable once committed. The factory leaves ID and CreatedAt
// unset; the event log stamps both inside the store's atomic append so id
// order always matches commit order.
package event
