package market

// Event types published on the bus.
const (
	EventTaskCreated        = "task.created"
	EventAuctionStarted     = "auction.started"
	EventAuctionCompleted   = "auction.completed"
	EventAuctionNoOffers    = "auction.no_offers"
	EventAuctionCancelled   = "auction.cancelled"
	EventExecutionStarted   = "execution.started"
	EventExecutionCompleted = "execution.completed"
	EventExecutionFailed    = "execution.failed"
)

// Bus is best-effort notification fan-out. Implementations must not block;
// the core never retries publication.
type Bus interface {
	Publish(eventType string, payload interface{})
}

// NopBus drops all events.
type NopBus struct{}

func (NopBus) Publish(string, interface{}) {}
