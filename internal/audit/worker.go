package audit

import (
	"context"
	"log/slog"
	"time"
)

const appendTimeout = 5 * time.Second

// Worker drains buffered audit events into a sink until its inbox closes.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run() {
	for event := range w.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := w.sink.Append(ctx, event); err != nil {
			w.logger.Error("failed to append audit event",
				"type", event.Type,
				"image_id", event.ImageID,
				"request_id", event.RequestID,
				"error", err,
			)
		}
		cancel()
	}
}
