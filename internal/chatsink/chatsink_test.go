package chatsink

import (
	"context"
	"errors"
	"testing"
)

type fakeSink struct {
	photoErr error
	sent     []string
}

func (f *fakeSink) SendText(ctx context.Context, chatID, text, replyTo string) (string, error) {
	f.sent = append(f.sent, "text:"+text)
	return "msg-text", nil
}

func (f *fakeSink) SendPhoto(ctx context.Context, chatID string, photo []byte, caption, replyTo string) (string, error) {
	if f.photoErr != nil {
		return "", f.photoErr
	}
	f.sent = append(f.sent, "photo:"+caption)
	return "msg-photo", nil
}

func TestPublishSignalTextPrefersPhotoWhenChartProvided(t *testing.T) {
	f := &fakeSink{}
	id, err := PublishSignalText(context.Background(), f, "chat1", "caption", []byte{1, 2, 3}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg-photo" || len(f.sent) != 1 || f.sent[0] != "photo:caption" {
		t.Fatalf("expected a photo send, got id=%s sent=%v", id, f.sent)
	}
}

func TestPublishSignalTextFallsBackToTextOnPhotoFailure(t *testing.T) {
	f := &fakeSink{photoErr: errors.New("chart render timed out")}
	id, err := PublishSignalText(context.Background(), f, "chat1", "caption", []byte{1, 2, 3}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg-text" || len(f.sent) != 1 || f.sent[0] != "text:caption" {
		t.Fatalf("expected fallback text send, got id=%s sent=%v", id, f.sent)
	}
}

func TestPublishSignalTextSkipsPhotoWhenNoChart(t *testing.T) {
	f := &fakeSink{}
	id, err := PublishSignalText(context.Background(), f, "chat1", "caption", nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg-text" || len(f.sent) != 1 {
		t.Fatalf("expected text-only send, got id=%s sent=%v", id, f.sent)
	}
}

func TestNoopSinkReturnsDisabled(t *testing.T) {
	var s Noop
	if _, err := s.SendText(context.Background(), "c", "t", ""); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
