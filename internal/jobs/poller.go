package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/synthgen-io/synthgen/internal/engine"
)

// timeoutMessage is persisted when a poller exhausts its iteration budget
// without observing a terminal remote status.
const timeoutMessage = "timeout exceeded"

type pollSettings struct {
	interval time.Duration
	maxPolls int
}

// poller is a detached, self-terminating loop bound to one (entity, remote
// task) pair. It is the only writer of the entity's state while it runs.
type poller struct {
	entity   string
	key      string
	settings pollSettings

	fetch     func(ctx context.Context) (*engine.TaskStatus, error)
	apply     func(ctx context.Context, st *engine.TaskStatus) (done bool, err error)
	onTimeout func(ctx context.Context)
}

// run polls until a terminal status is applied or the budget runs out. Every
// iteration consumes budget, including ones where the status fetch or the
// store write fails — repeated transient failures eventually time out.
func (p *poller) run(ctx context.Context) {
	for i := 0; i < p.settings.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.settings.interval):
		}

		st, err := p.fetch(ctx)
		if err != nil {
			slog.Error("status poll failed", "entity", p.entity, "key", p.key, "error", err)
			continue
		}

		done, err := p.apply(ctx, st)
		if err != nil {
			slog.Error("recording task status failed",
				"entity", p.entity, "key", p.key, "remote_status", st.Status, "error", err)
			continue
		}
		if done {
			return
		}
	}

	slog.Warn("poll budget exhausted", "entity", p.entity, "key", p.key,
		"max_polls", p.settings.maxPolls)
	p.onTimeout(ctx)
}

// Statuses the engine is known to report for a task that is still running.
var transientStatuses = map[string]bool{
	"queued":     true,
	"pending":    true,
	"processing": true,
	"running":    true,
	"training":   true,
}

// logUnknownStatus flags remote statuses outside the known vocabulary. They
// are still treated as "running" so a newer engine cannot wedge old servers,
// but the warning makes a silently failing engine visible in logs.
func logUnknownStatus(entity, key, status string) {
	if status == engine.TaskStatusCompleted || status == engine.TaskStatusFailed {
		return
	}
	if !transientStatuses[status] {
		slog.Warn("unrecognized engine status, treating as running",
			"entity", entity, "key", key, "remote_status", status)
	}
}
