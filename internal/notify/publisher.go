package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"breeder/internal/model"
	"breeder/internal/problem"
)

const DefaultSubjectPrefix = "breeder.runs"

// Envelope is the JSON body of every published message.
type Envelope struct {
	Subject   string `json:"subject"`
	RunID     string `json:"run_id"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher emits one message per generation and one per finished run on
// <prefix>.<run_id>.generation and <prefix>.<run_id>.finished.
type Publisher struct {
	nc     conn
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// Connect dials NATS with unlimited reconnects.
func Connect(url, name string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := natsgo.Connect(url,
		natsgo.Name(name),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl())
	return newPublisher(nc, DefaultSubjectPrefix, logger), nil
}

func newPublisher(nc conn, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{nc: nc, prefix: prefix, logger: logger, now: time.Now}
}

func (p *Publisher) Subject(runID, kind string) string {
	return p.prefix + "." + runID + "." + kind
}

func (p *Publisher) RunStarted(model.RunRecord) {}

func (p *Publisher) Generation(run model.RunRecord, ev problem.GenerationEvent) {
	p.publish(run.ID, "generation", ev)
}

func (p *Publisher) RunFinished(run model.RunRecord) {
	p.publish(run.ID, "finished", run)
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}

// publish never fails the run; delivery errors are logged.
func (p *Publisher) publish(runID, kind string, data any) {
	subject := p.Subject(runID, kind)
	payload, err := json.Marshal(Envelope{
		Subject:   kind,
		RunID:     runID,
		Data:      data,
		Timestamp: p.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		p.logger.Error("encode event", "subject", subject, "error", err)
		return
	}
	if err := p.nc.Publish(subject, payload); err != nil {
		p.logger.Warn("publish event", "subject", subject, "error", err)
	}
}
