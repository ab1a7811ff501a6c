// Package publish sends compliance reports to NATS so dashboards and CI
// gates can subscribe to results instead of parsing CLI output.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roach88/conform/internal/ir"
)

// DefaultSubject prefixes every report subject.
const DefaultSubject = "conform.reports"

// Header names set on every message.
const (
	HeaderRun = "Conform-Run"
	// HeaderMsgID lets JetStream streams drop duplicate publishes of the
	// same report.
	HeaderMsgID = "Nats-Msg-Id"
)

// Message is the JSON body published for each report of a run.
type Message struct {
	RunID     string    `json:"run_id"`
	Standard  string    `json:"standard"`
	FailLevel ir.Level  `json:"fail_level"`
	CreatedAt time.Time `json:"created_at"`
	Failed    bool      `json:"failed"` // this report violates a rule at or above the fail level
	Report    ir.Report `json:"report"`
}

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Publisher publishes run reports on <subject>.<standard>.
type Publisher struct {
	nc      Conn
	subject string
}

// Connect dials the NATS server at url.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("conform"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", url, err)
	}
	return New(nc, subject), nil
}

// New wraps an existing connection. An empty subject uses DefaultSubject.
func New(nc Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

// Subject returns the subject reports of standard are published on.
func (p *Publisher) Subject(standard string) string {
	return p.subject + "." + standard
}

// PublishRun publishes one message per report and flushes, so a nil error
// means the server received every message.
func (p *Publisher) PublishRun(ctx context.Context, run *ir.Run) error {
	subject := p.Subject(run.Standard)
	for i := range run.Reports {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before publish: %w", err)
		}
		rep := run.Reports[i]
		data, err := json.Marshal(Message{
			RunID:     run.ID,
			Standard:  run.Standard,
			FailLevel: run.FailLevel,
			CreatedAt: run.CreatedAt,
			Failed:    rep.ViolatedAtOrAbove(run.FailLevel) > 0,
			Report:    rep,
		})
		if err != nil {
			return fmt.Errorf("marshal report %s: %w", rep.ID, err)
		}

		msg := nats.NewMsg(subject)
		msg.Data = data
		msg.Header.Set(HeaderRun, run.ID)
		msg.Header.Set(HeaderMsgID, run.ID+"/"+rep.ID)
		if err := p.nc.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish report %s: %w", rep.ID, err)
		}
	}

	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush NATS connection: %w", err)
	}
	slog.Debug("run published", "run", run.ID, "subject", subject, "reports", len(run.Reports))
	return nil
}

// Close closes the connection.
func (p *Publisher) Close() {
	p.nc.Close()
}
