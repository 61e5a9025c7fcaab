// Package notify announces finished builds to other processes. The stock
// transport is a NATS subject; without a server URL a no-op publisher is used.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/sitepress/internal/engine"
	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/retry"
)

// DefaultSubject is used when none is configured.
const DefaultSubject = "sitepress.builds"

// Event is the payload published after every build pass.
type Event struct {
	BuildID    string    `json:"build_id"`
	Outcome    string    `json:"outcome"`
	OutputDir  string    `json:"output_dir"`
	Written    []string  `json:"written"`
	Removed    []string  `json:"removed,omitempty"`
	Skipped    int       `json:"skipped,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewEvent builds the event for a finished report.
func NewEvent(r *engine.Report, outputDir string) Event {
	ev := Event{
		BuildID:    r.BuildID,
		Outcome:    string(r.Outcome),
		OutputDir:  outputDir,
		Written:    r.Written,
		Removed:    r.Removed,
		Skipped:    r.Skipped,
		DurationMS: r.Duration().Milliseconds(),
		FinishedAt: r.End,
	}
	if ev.Written == nil {
		ev.Written = []string{}
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}

// Publisher sends build events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes events as JSON on a NATS subject.
type NATSPublisher struct {
	conn    conn
	subject string
	retry   retry.Policy
	logger  *slog.Logger
}

// New returns a NATS publisher for url, or Noop when url is empty. Failed
// publishes are retried according to policy.
func New(url, subject string, policy retry.Policy, logger *slog.Logger) (Publisher, error) {
	if url == "" {
		return Noop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("sitepress"),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(false),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryMonitor, "failed to connect to NATS").
			WithContext("url", url).
			Build()
	}
	if subject == "" {
		subject = DefaultSubject
	}
	logger.Info("NATS publisher initialized", slog.String("url", url), slog.String("subject", subject))
	return &NATSPublisher{conn: nc, subject: subject, retry: policy, logger: logger}, nil
}

// Publish sends ev and waits for the server to acknowledge the flush.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal build event").Build()
	}
	attempt := 0
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			p.logger.Debug("Retrying build event", logfields.BuildID(ev.BuildID), slog.Int("attempt", attempt))
		}
		return p.send(ctx, data)
	})
	if err != nil {
		return err
	}
	p.logger.Debug("Published build event", logfields.BuildID(ev.BuildID), slog.String("subject", p.subject))
	return nil
}

func (p *NATSPublisher) send(ctx context.Context, data []byte) error {
	if err := p.conn.Publish(p.subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryMonitor, "failed to publish build event").
			WithContext("subject", p.subject).
			Build()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryMonitor, "failed to flush build event").
			WithContext("subject", p.subject).
			Build()
	}
	return nil
}

// Close closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
