package syncengine

import (
	"context"
	"time"

	"github.com/starford/glide/internal/apperr"
)

// ProbeFunc checks whether the backend can be reached.
type ProbeFunc func(ctx context.Context) error

// Monitor probes connectivity right away and then every interval until ctx
// is cancelled, feeding the result into SetOnline. Only transient failures
// count as offline: a server that answers with an error is reachable.
func (e *Engine) Monitor(ctx context.Context, probe ProbeFunc, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	check := func() {
		err := probe(ctx)
		if ctx.Err() != nil {
			return
		}
		online := err == nil || !apperr.Retryable(err)
		if online == e.Online() {
			return
		}
		if !online {
			e.log.Warn("sync: server unreachable", "error", err)
		}
		e.SetOnline(online)
	}

	check()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			check()
		}
	}
}
