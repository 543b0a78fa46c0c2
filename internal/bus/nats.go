// internal/bus/nats.go

// Package bus publishes job lifecycle events to NATS. The broker is
// optional: the worker treats a nil client as "events disabled" and the
// conversion pipeline never depends on a publish succeeding.
package bus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// Client is a publish-only wrapper around one NATS connection.
type Client struct{ nc *nats.Conn }

// Connect dials the broker and reconnects forever. The worker is long-lived
// and a broker restart must not take it down mid-job.
func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("simple-doc-converter"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

// Close drains the connection so events queued during shutdown still go out.
func (c *Client) Close() {
	if c != nil && c.nc != nil {
		_ = c.nc.Drain()
	}
}

// PublishJSON marshals v and publishes it on subject.
func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}
