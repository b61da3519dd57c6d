package chatsink

import "context"

// Noop discards every send, reporting ErrDisabled. Used with the in-memory
// cache backend, so the Scanner still has a Sink to call.
type Noop struct{}

func (Noop) SendText(ctx context.Context, chatID, text, replyTo string) (string, error) {
	return "", ErrDisabled
}

func (Noop) SendPhoto(ctx context.Context, chatID string, photo []byte, caption, replyTo string) (string, error) {
	return "", ErrDisabled
}
