package pubsub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tide-network/tide-daemon/internal/core/ports"
)

const eventBufferSize = 32

var (
	// ErrServiceClosed ...
	ErrServiceClosed = errors.New("pubsub service is closed")
	// ErrSubscriptionNotFound ...
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

var validTopics = map[string]struct{}{
	ports.AnyTopic:     {},
	ports.TopicBalance: {},
	ports.TopicTx:      {},
}

type subscriber struct {
	topics   map[string]struct{}
	chEvents chan ports.WalletEvent
}

func (s *subscriber) wants(topic string) bool {
	if _, ok := s.topics[ports.AnyTopic]; ok {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// service is an in-process implementation of ports.Notifier fanning wallet
// events out to subscriber channels. Events published to a subscriber whose
// channel is full are dropped, a consumer too slow for its buffer must not
// stall the reconciler.
type service struct {
	lock        *sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool
}

// NewService returns a new empty pubsub service.
func NewService() ports.Notifier {
	return &service{
		lock:        &sync.RWMutex{},
		subscribers: map[string]*subscriber{},
	}
}

func (s *service) Subscribe(
	topics ...string,
) (string, <-chan ports.WalletEvent, error) {
	if len(topics) == 0 {
		topics = []string{ports.AnyTopic}
	}
	subscribedTopics := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		if _, ok := validTopics[topic]; !ok {
			return "", nil, fmt.Errorf("unknown topic %s", topic)
		}
		subscribedTopics[topic] = struct{}{}
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return "", nil, ErrServiceClosed
	}

	id := uuid.NewString()
	sub := &subscriber{
		topics:   subscribedTopics,
		chEvents: make(chan ports.WalletEvent, eventBufferSize),
	}
	s.subscribers[id] = sub
	return id, sub.chEvents, nil
}

func (s *service) Unsubscribe(id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	sub, ok := s.subscribers[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	delete(s.subscribers, id)
	close(sub.chEvents)
	return nil
}

func (s *service) Publish(event ports.WalletEvent) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.closed {
		return
	}

	for id, sub := range s.subscribers {
		if !sub.wants(event.Topic) {
			continue
		}
		select {
		case sub.chEvents <- event:
		default:
			log.Warnf(
				"pubsub: subscriber %s is too slow, dropping %s event",
				id, event.Topic,
			)
		}
	}
}

func (s *service) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for id, sub := range s.subscribers {
		delete(s.subscribers, id)
		close(sub.chEvents)
	}
}
