package batcher

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"dexsurveil/internal/model"
)

// BatchedSignals is a batch of signals emitted within one flush window.
type BatchedSignals struct {
	Type       string        `json:"type"`
	Batch      []model.Signal `json:"batch"`
	Count      int           `json:"count"`
	Timestamp  int64         `json:"timestamp"`
	Compressed bool          `json:"compressed,omitempty"`
}

// SignalBatcher coalesces signals emitted in quick succession (a scan tick
// firing on several tokens at once) into a single framed message so
// WebSocket viewers see one batch instead of a burst of singletons.
type SignalBatcher struct {
	logger      *zap.Logger
	signals     []model.Signal
	mu          sync.Mutex
	timer       *time.Timer
	maxSize     int
	timeout     time.Duration
	maxBytes    int
	compression bool
	outputCh    chan []byte
}

// NewSignalBatcher creates a new signal batcher.
func NewSignalBatcher(logger *zap.Logger, maxSize int, timeout time.Duration, maxBytes int, compression bool) *SignalBatcher {
	return &SignalBatcher{
		logger:      logger.Named("batcher"),
		signals:     make([]model.Signal, 0, maxSize),
		maxSize:     maxSize,
		timeout:     timeout,
		maxBytes:    maxBytes,
		compression: compression,
		outputCh:    make(chan []byte, 100),
	}
}

// Start returns the channel batched, serialized frames are delivered on.
func (sb *SignalBatcher) Start() <-chan []byte {
	return sb.outputCh
}

// AddSignal adds a signal to the current batch, flushing immediately once
// maxSize is reached or after timeout elapses since the first addition.
func (sb *SignalBatcher) AddSignal(sig model.Signal) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.signals = append(sb.signals, sig)

	if len(sb.signals) >= sb.maxSize {
		sb.flushBatch()
		return
	}

	if sb.timer == nil {
		sb.timer = time.AfterFunc(sb.timeout, func() {
			sb.mu.Lock()
			defer sb.mu.Unlock()
			sb.flushBatch()
		})
	}
}

// flushBatch sends the current batch (must be called with lock held).
func (sb *SignalBatcher) flushBatch() {
	if len(sb.signals) == 0 {
		return
	}

	if sb.timer != nil {
		sb.timer.Stop()
		sb.timer = nil
	}

	batch := BatchedSignals{
		Type:      "batch",
		Batch:     make([]model.Signal, len(sb.signals)),
		Count:     len(sb.signals),
		Timestamp: time.Now().UnixMilli(),
	}
	copy(batch.Batch, sb.signals)
	sb.signals = sb.signals[:0]

	data, err := json.Marshal(batch)
	if err != nil {
		sb.logger.Error("failed to marshal signal batch", zap.Error(err))
		return
	}

	if sb.compression && len(data) > 1024 {
		compressed := sb.compressData(data)
		if len(compressed) < len(data) {
			batch.Compressed = true
			data = compressed
		}
	}

	if len(data) > sb.maxBytes {
		sb.logger.Warn("signal batch exceeds max size, splitting",
			zap.Int("size", len(data)),
			zap.Int("max", sb.maxBytes),
			zap.Int("count", batch.Count))
		sb.splitAndFlush(batch.Batch)
		return
	}

	select {
	case sb.outputCh <- data:
		sb.logger.Debug("signal batch sent",
			zap.Int("count", batch.Count),
			zap.Int("size", len(data)),
			zap.Bool("compressed", batch.Compressed))
	default:
		sb.logger.Warn("output channel full, dropping signal batch")
	}
}

// compressData compresses data using gzip.
func (sb *SignalBatcher) compressData(data []byte) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	if _, err := gz.Write(data); err != nil {
		sb.logger.Error("compression failed", zap.Error(err))
		return data
	}
	if err := gz.Close(); err != nil {
		sb.logger.Error("compression close failed", zap.Error(err))
		return data
	}
	return buf.Bytes()
}

// splitAndFlush splits a large batch into smaller ones.
func (sb *SignalBatcher) splitAndFlush(signals []model.Signal) {
	chunkSize := sb.maxSize / 2
	if chunkSize <= 0 {
		chunkSize = 1
	}

	for i := 0; i < len(signals); i += chunkSize {
		end := i + chunkSize
		if end > len(signals) {
			end = len(signals)
		}

		chunk := BatchedSignals{
			Type:      "batch",
			Batch:     signals[i:end],
			Count:     end - i,
			Timestamp: time.Now().UnixMilli(),
		}

		data, err := json.Marshal(chunk)
		if err != nil {
			sb.logger.Error("failed to marshal signal chunk", zap.Error(err))
			continue
		}

		select {
		case sb.outputCh <- data:
			sb.logger.Debug("signal chunk sent", zap.Int("count", chunk.Count))
		default:
			sb.logger.Warn("output channel full, dropping signal chunk")
		}
	}
}

// Close stops the batcher and flushes any remaining signals.
func (sb *SignalBatcher) Close() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.flushBatch()
	close(sb.outputCh)
}
