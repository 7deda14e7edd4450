// Package batcher accumulates items and hands them to a flush function in
// fixed-size groups.
package batcher

import (
	"context"
	"fmt"
	"time"

	"redditcrawler/pkg/logger"
)

// FlushFunc persists one group of items
type FlushFunc[T any] func(ctx context.Context, items []T) error

// Batch collects items and flushes every Size additions. Flush must be
// called once more at the end to write the remainder. Batch is not safe for
// concurrent use.
type Batch[T any] struct {
	size    int
	flush   FlushFunc[T]
	pending []T
	logger  logger.Logger

	flushes int
	flushed int
}

// New creates a batch of the given size; size < 1 flushes every item
func New[T any](size int, flush FlushFunc[T], log logger.Logger) *Batch[T] {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Batch[T]{
		size:    size,
		flush:   flush,
		pending: make([]T, 0, size),
		logger:  log,
	}
}

// Add appends item and flushes when the batch is full
func (b *Batch[T]) Add(ctx context.Context, item T) error {
	b.pending = append(b.pending, item)
	if len(b.pending) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes whatever is pending. An empty batch is not flushed. On error
// the pending items are kept so the caller may retry.
func (b *Batch[T]) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}

	start := time.Now()
	if err := b.flush(ctx, b.pending); err != nil {
		b.logger.ErrorWithFields("batch flush failed", map[string]interface{}{
			"items": len(b.pending),
			"error": err.Error(),
		})
		return fmt.Errorf("flush of %d items: %w", len(b.pending), err)
	}

	b.flushes++
	b.flushed += len(b.pending)
	b.logger.DebugWithFields("batch flushed", map[string]interface{}{
		"items":    len(b.pending),
		"flushes":  b.flushes,
		"duration": time.Since(start),
	})
	b.pending = make([]T, 0, b.size)
	return nil
}

// Pending returns the number of items not yet flushed
func (b *Batch[T]) Pending() int { return len(b.pending) }

// Flushes returns the number of successful flushes
func (b *Batch[T]) Flushes() int { return b.flushes }

// Flushed returns the number of items written by successful flushes
func (b *Batch[T]) Flushed() int { return b.flushed }

// Size returns the configured batch size
func (b *Batch[T]) Size() int { return b.size }
