// Package chatsink implements the abstract chat sink from spec §6:
// sendText/sendPhoto against a chat id, plus PublishSignalText, which
// applies the two-stage fallback policy (chart first, text on failure).
package chatsink

import (
	"context"
	"errors"
)

// ErrDisabled is returned by a Sink that has no destination configured.
var ErrDisabled = errors.New("chatsink: no destination configured")

// Sink is the abstract chat sink. Messages are Markdown-formatted; long
// emissions may be chunked by the implementation. replyTo is the previous
// message id for this token, or empty if none is known.
type Sink interface {
	SendText(ctx context.Context, chatID, text, replyTo string) (messageID string, err error)
	SendPhoto(ctx context.Context, chatID string, photo []byte, caption, replyTo string) (messageID string, err error)
}

// PublishSignalText renders text and attempts sendPhoto first when a chart
// is supplied, falling back to sendText on failure, per the two-stage
// error-handling policy in spec §7.
func PublishSignalText(ctx context.Context, sink Sink, chatID, caption string, chart []byte, replyTo string) (string, error) {
	if len(chart) > 0 {
		if id, err := sink.SendPhoto(ctx, chatID, chart, caption, replyTo); err == nil {
			return id, nil
		}
	}
	return sink.SendText(ctx, chatID, caption, replyTo)
}
