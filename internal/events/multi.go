package events

import "taskmarket/internal/market"

// Multi fans one publish out to several buses.
type Multi []market.Bus

func (m Multi) Publish(eventType string, payload interface{}) {
	for _, b := range m {
		b.Publish(eventType, payload)
	}
}
