package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ActivityRecorder forwards narrative events to the activity log from its own
// goroutine. Record never blocks; entries are dropped when the buffer is full.
type ActivityRecorder struct {
	sink    ActivityLog
	entries chan ActivityEntry
	timeout time.Duration
	log     zerolog.Logger
}

func NewActivityRecorder(sink ActivityLog, buffer int, timeout time.Duration, logger zerolog.Logger) *ActivityRecorder {
	return &ActivityRecorder{
		sink:    sink,
		entries: make(chan ActivityEntry, buffer),
		timeout: timeout,
		log:     logger,
	}
}

func (r *ActivityRecorder) Record(entry ActivityEntry) {
	select {
	case r.entries <- entry:
	default:
		r.log.Warn().Str("session", entry.SessionID).Str("kind", string(entry.Kind)).Msg("activity buffer full, entry dropped")
	}
}

func (r *ActivityRecorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-r.entries:
			r.append(ctx, entry)
		}
	}
}

func (r *ActivityRecorder) append(ctx context.Context, entry ActivityEntry) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.sink.AppendActivity(ctx, entry); err != nil {
		r.log.Warn().Err(err).Str("session", entry.SessionID).Str("kind", string(entry.Kind)).Msg("failed to append activity")
	}
}
