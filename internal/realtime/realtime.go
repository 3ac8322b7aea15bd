// Package realtime publishes per-seller delivery events so the seller's UI
// can show missed-post batch progress without polling. Publication is pure
// notification: by the time an event goes out, the sends it describes have
// already happened (or terminally failed), so publish failures are reported
// to the error tracker and swallowed, never escalated.
package realtime

import "context"

// Event outcome types.
const (
	OutcomeCompleted = "missed_posts_sent"
	OutcomeFailed    = "missed_posts_failed"
)

// Event is the JSON payload published on a seller's channel.
type Event struct {
	Type       string `json:"type"`
	PurchaseID string `json:"purchase_id"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Message    string `json:"message"`
}

// ChannelFor derives the pub/sub topic for a seller from its public external
// id. Pure function; there is no process-wide channel registry.
func ChannelFor(sellerExternalID string) string {
	return "user_" + sellerExternalID
}

// Publisher pushes a raw payload onto a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber attaches to a channel and streams payloads until the returned
// cancel function runs or ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Broker is a bidirectional pub/sub endpoint.
type Broker interface {
	Publisher
	Subscriber
}
