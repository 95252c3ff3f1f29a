// Package events carries marketplace lifecycle notifications to interested
// consumers. Delivery is best effort everywhere: a failed publish is logged
// and never fails the operation that produced it.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// subjectPrefix namespaces marketplace events on the shared NATS server.
const subjectPrefix = "taskmarket.events."

// NATSPublisher forwards events to a NATS subject derived from the event
// type, e.g. auction.completed goes to taskmarket.events.auction.completed.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("taskmarket"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(eventType string, payload interface{}) {
	data, err := json.Marshal(Envelope{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		log.Printf("failed to encode event %s: %v", eventType, err)
		return
	}
	if err := p.conn.Publish(subjectPrefix+eventType, data); err != nil {
		log.Printf("failed to publish event %s: %v", eventType, err)
	}
}

func (p *NATSPublisher) Close() {
	p.conn.Drain()
}

// Envelope is the wire format shared by the NATS and WebSocket feeds.
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}
