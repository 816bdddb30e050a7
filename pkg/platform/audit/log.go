package audit

import (
	"context"
	"log/slog"

	"verethfier/pkg/requestcontext"
)

// Emitter is implemented by the audit publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Log writes the audit line and emits the event. Either sink may be nil.
// Emit failures are logged, never returned: an audit outage must not fail
// the operation being audited.
func Log(ctx context.Context, logger *slog.Logger, emitter Emitter, event Event, attrs ...any) {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	args := append(attrs, "event", event.Action, "log_type", "audit")

	if logger != nil {
		logger.InfoContext(ctx, event.Action, args...)
	}
	if emitter == nil {
		return
	}
	if err := emitter.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
