// Package events publishes entity status transitions for interested
// subscribers (dashboards, notifiers). Publishing is best-effort: failures
// are logged and never affect the lifecycle that triggered them.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/synthgen-io/synthgen/pkg/models"
)

// Publisher emits status-change notifications.
type Publisher interface {
	JobStatusChanged(job *models.Job)
	GenerationStatusChanged(gen *models.GenerationJob)
	Close()
}

// NATSPublisher publishes JSON events to NATS subjects
// "<prefix>.jobs.<status>" and "<prefix>.generations.<status>".
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials NATS with indefinite reconnects.
func Connect(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

func (p *NATSPublisher) JobStatusChanged(job *models.Job) {
	p.publish(fmt.Sprintf("%s.jobs.%s", p.prefix, job.Status), map[string]any{
		"job_id":   job.JobID,
		"user_id":  job.UserID,
		"status":   job.Status,
		"progress": job.Progress,
	})
}

func (p *NATSPublisher) GenerationStatusChanged(gen *models.GenerationJob) {
	p.publish(fmt.Sprintf("%s.generations.%s", p.prefix, gen.Status), map[string]any{
		"generation_job_id": gen.GenerationJobID,
		"job_id":            gen.JobID,
		"user_id":           gen.UserID,
		"status":            gen.Status,
		"progress":          gen.Progress,
		"current_rows":      gen.CurrentRows,
	})
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

func (p *NATSPublisher) publish(subject string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding event", "subject", subject, "error", err)
		return
	}
	if err := p.nc.Publish(subject, b); err != nil {
		slog.Error("publishing event", "subject", subject, "error", err)
	}
}

// NoopPublisher is used when no NATS URL is configured.
type NoopPublisher struct{}

func (NoopPublisher) JobStatusChanged(*models.Job)                  {}
func (NoopPublisher) GenerationStatusChanged(*models.GenerationJob) {}
func (NoopPublisher) Close()                                        {}

var _ Publisher = (*NATSPublisher)(nil)
var _ Publisher = NoopPublisher{}
