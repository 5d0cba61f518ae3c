package ports

const AnyTopic = "*"

const (
	TopicBalance = "balance"
	TopicTx      = "tx"
)

// WalletEvent is a message published on the notifier when the state of an
// account changes.
type WalletEvent struct {
	Topic   string
	Account string
	Payload interface{}
}

// Notifier interface defines the methods of the pubsub service used to fan
// wallet events out to interested consumers like the WebSocket interface.
type Notifier interface {
	// Subscribe registers a new consumer for the given topics and returns
	// its id along with the channel where events are delivered. AnyTopic
	// subscribes to every topic.
	Subscribe(topics ...string) (string, <-chan WalletEvent, error)
	// Unsubscribe removes the consumer with the given id and closes its
	// channel.
	Unsubscribe(id string) error
	// Publish delivers the event to every consumer subscribed to its topic.
	Publish(event WalletEvent)

	Close()
}
