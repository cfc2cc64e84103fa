// Package queue defines message payloads exchanged over the message broker
// and the RabbitMQ publisher and consumer that carry them.
package queue

// HoldQueueName is the durable queue hold events are routed to.
const HoldQueueName = "seat.holds"

// Hold event kinds.
const (
	KindReserved   = "reserved"   // a seat was toggled into a hold
	KindUnreserved = "unreserved" // a seat was toggled out of a hold
	KindAllocated  = "allocated"  // pool tickets were granted
	KindReleased   = "released"   // a sweep released holds
	KindSold       = "sold"       // held tickets were purchased
)

// HoldEvent is published after a reservation transaction commits.  It
// carries enough for downstream consumers (audit, seat-map push, analytics)
// to act without querying the primary database.
type HoldEvent struct {
	Kind        string   `json:"kind"`
	EventID     string   `json:"event_id"`
	Category    string   `json:"category_name,omitempty"`
	RequesterID string   `json:"requester_id"`
	TicketIDs   []uint64 `json:"ticket_ids,omitempty"`
	Row         int      `json:"row_number,omitempty"`
	Column      int      `json:"column_number,omitempty"`
	OccurredAt  string   `json:"occurred_at"`
}
