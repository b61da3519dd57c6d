package chatsink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dexsurveil/pkg/redisx"
)

// outboundStream is the Redis stream the Telegram webhook worker (an
// external collaborator per spec §4.14) consumes to perform the actual
// Bot API send/chart-render work.
const outboundStream = "dexsurveil:chat:outbound"

type outboundMessage struct {
	Kind     string `json:"kind"` // "text" or "photo"
	ChatID   string `json:"chat_id"`
	Text     string `json:"text,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Photo    []byte `json:"photo,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
	Enqueued int64  `json:"enqueued_unix"`
}

// RedisSink publishes outbound chat operations onto a Redis stream,
// throttled to maxPerSecond, adapted from publisher.RedisPublisher's
// throttle-and-metrics pattern.
type RedisSink struct {
	client *redisx.Client
	logger *zap.Logger

	maxPerSecond int
	mu           sync.Mutex
	count        int
	windowStart  time.Time
}

// NewRedisSink builds a RedisSink with the given per-second throttle.
func NewRedisSink(client *redisx.Client, logger *zap.Logger, maxPerSecond int) *RedisSink {
	if maxPerSecond <= 0 {
		maxPerSecond = 20
	}
	return &RedisSink{client: client, logger: logger, maxPerSecond: maxPerSecond, windowStart: time.Now()}
}

func (s *RedisSink) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.windowStart) >= time.Second {
		s.count = 0
		s.windowStart = now
	}
	if s.count >= s.maxPerSecond {
		return false
	}
	s.count++
	return true
}

func (s *RedisSink) publish(ctx context.Context, msg outboundMessage) (string, error) {
	if !s.allow() {
		return "", fmt.Errorf("chatsink: throttled, max %d msg/s", s.maxPerSecond)
	}

	msg.Enqueued = time.Now().Unix()
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("chatsink: marshaling message: %w", err)
	}

	id, err := s.client.Raw().XAdd(ctx, &redis.XAddArgs{
		Stream: outboundStream,
		Values: map[string]any{"payload": string(data)},
	}).Result()
	if err != nil {
		s.logger.Error("chatsink: publish failed", zap.String("chat_id", msg.ChatID), zap.Error(err))
		return "", fmt.Errorf("chatsink: publish: %w", err)
	}
	return id, nil
}

func (s *RedisSink) SendText(ctx context.Context, chatID, text, replyTo string) (string, error) {
	return s.publish(ctx, outboundMessage{Kind: "text", ChatID: chatID, Text: text, ReplyTo: replyTo})
}

func (s *RedisSink) SendPhoto(ctx context.Context, chatID string, photo []byte, caption, replyTo string) (string, error) {
	return s.publish(ctx, outboundMessage{Kind: "photo", ChatID: chatID, Photo: photo, Caption: caption, ReplyTo: replyTo})
}
