package decode

import (
	"context"

	"go.uber.org/zap"
)

type job struct {
	frame Frame
	done  func()
}

// Worker moves decoding off the goroutine that delivers frames. It queues
// at most one frame; the delivering side only ever has one outstanding.
type Worker struct {
	handler FrameHandler
	jobs    chan job
	logger  *zap.Logger
}

func NewWorker(handler FrameHandler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		handler: handler,
		jobs:    make(chan job, 1),
		logger:  logger,
	}
}

// HandleFrame queues f and returns immediately. A frame still waiting in the
// queue is replaced by f and its done runs at once, so the newest frame is the
// one decoded next and every handed-over frame is completed.
func (w *Worker) HandleFrame(f Frame, done func()) {
	j := job{frame: f, done: done}
	for {
		select {
		case w.jobs <- j:
			return
		default:
		}
		select {
		case stale := <-w.jobs:
			w.logger.Warn("decode queue full, replacing queued frame")
			if stale.done != nil {
				stale.done()
			}
		default:
		}
	}
}

// Run decodes queued frames until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-w.jobs:
			w.handler.HandleFrame(j.frame, j.done)
		}
	}
}
