package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
	"github.com/kirillkom/receipt-splitter/internal/core/ports"
)

// progressEmitter turns the run counters into periodic snapshots. Page-level
// snapshots are throttled; document and final snapshots are always sent.
type progressEmitter struct {
	ch        chan<- domain.Progress
	publisher ports.ProgressPublisher
	throttle  *rate.Sometimes
	logger    *slog.Logger
}

func newProgressEmitter(ch chan<- domain.Progress, publisher ports.ProgressPublisher, interval time.Duration, logger *slog.Logger) *progressEmitter {
	return &progressEmitter{
		ch:        ch,
		publisher: publisher,
		throttle:  &rate.Sometimes{First: 1, Interval: interval},
		logger:    logger,
	}
}

func (e *progressEmitter) enabled() bool {
	return e.ch != nil || e.publisher != nil
}

func (e *progressEmitter) tick(ctx context.Context, p domain.Progress) {
	if !e.enabled() {
		return
	}
	e.throttle.Do(func() { e.emit(ctx, p) })
}

func (e *progressEmitter) emit(ctx context.Context, p domain.Progress) {
	if e.publisher != nil {
		if err := e.publisher.PublishProgress(ctx, p); err != nil {
			e.logger.Warn("progress_publish_failed", "run_id", p.RunID, "error", err)
		}
	}
	if e.ch == nil {
		return
	}
	select {
	case e.ch <- p:
	case <-ctx.Done():
	}
}
