package airspace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/unklstewy/airspace-assistant/pkg/query"
)

// publisher is the part of *nats.Conn the NATSPublisher uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes surroundings and followed-flight updates as JSON.
// Surroundings go to Subject, flights to Subject + ".flight".
type NATSPublisher struct {
	conn    publisher
	close   func()
	subject string
}

// ConnectNATS connects to the NATS server at url. The connection retries
// forever in the background once established.
func ConnectNATS(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("airspace-assistant"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	p := newNATSPublisher(nc, subject)
	p.close = func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return p, nil
}

func newNATSPublisher(conn publisher, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject, close: func() {}}
}

// PublishSurroundings implements Sink.
func (p *NATSPublisher) PublishSurroundings(_ context.Context, s Surroundings) error {
	return p.publish(p.subject, s)
}

// PublishFlight implements FlightSink.
func (p *NATSPublisher) PublishFlight(_ context.Context, f query.FlightData) error {
	return p.publish(p.subject+".flight", f)
}

func (p *NATSPublisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	p.close()
}
