package signaling

import "context"

// Transport is the room-scoped publish/subscribe primitive a Channel runs
// on. Implementations must deliver messages from one sender in send order
// and must report presence for members already in the room when the
// subscription starts.
type Transport interface {
	// Subscribe joins roomID as participantID and starts feeding sink. The
	// local join must be announced to the room before Subscribe returns, so
	// that any message published afterwards is preceded by our presence.
	Subscribe(ctx context.Context, roomID, participantID string, sink Sink) (Subscription, error)

	// Codec is the payload encoding this transport carries.
	Codec() Codec
}

// Subscription is a live room membership.
type Subscription interface {
	// Send publishes data to one participant, or to the whole room when to
	// is empty.
	Send(ctx context.Context, to string, data []byte) error

	// Close leaves the room and releases the underlying connection. It is
	// safe to call more than once.
	Close() error
}

// Sink receives what a Subscription observes.
type Sink interface {
	PresenceJoined(participantID string)
	PresenceLeft(participantID string)

	// Deliver hands over one encoded message. from is the sender as
	// authenticated by the transport, or empty when the transport cannot
	// tell.
	Deliver(from string, data []byte)

	// Lost reports that the subscription dropped and will deliver nothing
	// more.
	Lost(err error)
}
