package domain

import "fmt"

type ChatEventType string

const (
	ChatMessage    ChatEventType = "send-message"
	ChatTyping     ChatEventType = "typing"
	ChatStopTyping ChatEventType = "stop-typing"
)

const MaxChatBodyLen = 4096

// ChatEvent is a live text-chat event relayed between two users. It is never
// stored by the relay.
type ChatEvent struct {
	Type ChatEventType `json:"type" validate:"required,oneof=send-message typing stop-typing"`
	From UserID        `json:"from,omitempty"`
	To   UserID        `json:"to" validate:"required,max=64"`
	Body string        `json:"body,omitempty" validate:"max=4096"`
}

func (t ChatEventType) IsChat() bool {
	return t == ChatMessage || t == ChatTyping || t == ChatStopTyping
}

func (e ChatEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return nil
}
