package event

import (
	"strings"
	"unicode/utf8"

	"github.com/rzbill/relay/internal/errs"
)

const (
	DefaultMaxMessageLength  = 2000
	DefaultUsernameMinLength = 2
	DefaultUsernameMaxLength = 30
)

// Factory builds canonical events. Lengths are counted in characters
// (runes), not bytes.
type Factory struct {
	MaxMessageLength  int
	UsernameMinLength int
	UsernameMaxLength int
}

// NewFactory returns a Factory with the default limits.
func NewFactory() Factory {
	return Factory{
		MaxMessageLength:  DefaultMaxMessageLength,
		UsernameMinLength: DefaultUsernameMinLength,
		UsernameMaxLength: DefaultUsernameMaxLength,
	}
}

func (f Factory) withDefaults() Factory {
	if f.MaxMessageLength <= 0 {
		f.MaxMessageLength = DefaultMaxMessageLength
	}
	if f.UsernameMinLength <= 0 {
		f.UsernameMinLength = DefaultUsernameMinLength
	}
	if f.UsernameMaxLength <= 0 {
		f.UsernameMaxLength = DefaultUsernameMaxLength
	}
	return f
}

// NormalizeUsername trims name and checks its length.
func (f Factory) NormalizeUsername(name string) (string, error) {
	f = f.withDefaults()
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.ErrUsernameMissing
	}
	n := utf8.RuneCountInString(name)
	if n < f.UsernameMinLength || n > f.UsernameMaxLength {
		return "", errs.ErrUsernameInvalid
	}
	return name, nil
}

// SenderName trims the name attached to a message or leave request. Unlike
// NormalizeUsername it only rejects a blank name; length bounds apply when
// joining.
func (f Factory) SenderName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.ErrUsernameMissing
	}
	return name, nil
}

// MakeJoin builds the system event announcing name joined.
func (f Factory) MakeJoin(name string) Event {
	return Event{Kind: KindJoin, Text: name + " joined the chat"}
}

// MakeLeave builds the system event announcing name left.
func (f Factory) MakeLeave(name string) Event {
	return Event{Kind: KindLeave, Text: name + " left the chat"}
}

// MakeMessage builds a user message. The text is trimmed before validation.
func (f Factory) MakeMessage(name, text string) (Event, error) {
	f = f.withDefaults()
	text = strings.TrimSpace(text)
	if text == "" {
		return Event{}, errs.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > f.MaxMessageLength {
		return Event{}, errs.ErrMessageTooLong
	}
	author := name
	return Event{Kind: KindMessage, Text: text, Author: &author}, nil
}
