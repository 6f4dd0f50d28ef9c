package bus

import (
	"sort"
	"sync"

	"quantflow/logger"
)

// Handler consumes one published message. Handlers run synchronously on the
// publisher's goroutine so per-topic ordering is the publish order.
type Handler func(msg interface{})

// Subscription is the token returned by Subscribe, used for targeted removal.
type Subscription struct {
	Topic    string
	Priority int
	handler  Handler
	seq      uint64
}

// MessageBus is the process-wide pub/sub fabric. Delivery per topic is FIFO;
// when multiple handlers share a topic the higher priority runs first, with
// insertion order breaking ties.
type MessageBus struct {
	mu        sync.RWMutex
	subs      map[string][]*Subscription
	responses map[string]Handler
	seq       uint64
	log       *logger.Entry
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		subs:      make(map[string][]*Subscription),
		responses: make(map[string]Handler),
		log:       logger.WithComponent("message_bus"),
	}
}

// Subscribe registers handler for topic. Higher priority handlers are invoked
// first on each publish.
func (b *MessageBus) Subscribe(topic string, handler Handler, priority int) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	sub := &Subscription{
		Topic:    topic,
		Priority: priority,
		handler:  handler,
		seq:      b.seq,
	}
	subs := append(b.subs[topic], sub)
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].Priority != subs[j].Priority {
			return subs[i].Priority > subs[j].Priority
		}
		return subs[i].seq < subs[j].seq
	})
	b.subs[topic] = subs
	return sub
}

// Unsubscribe removes a single subscription.
func (b *MessageBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.Topic]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.Topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.Topic]) == 0 {
		delete(b.subs, sub.Topic)
	}
}

// UnsubscribeTopic removes every handler on topic.
func (b *MessageBus) UnsubscribeTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, topic)
}

// IsSubscribed reports whether topic has at least one handler.
func (b *MessageBus) IsSubscribed(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic]) > 0
}

// SubscriptionsCount returns the number of handlers on topic.
func (b *MessageBus) SubscriptionsCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Publish delivers msg to every topic handler in priority order. Handlers run
// on the caller's goroutine.
func (b *MessageBus) Publish(topic string, msg interface{}) {
	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(msg)
	}
}

// Register installs a one-shot response handler keyed by correlation ID.
func (b *MessageBus) Register(correlationID string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.responses[correlationID]; exists {
		b.log.WithField("correlation_id", correlationID).
			Warn("Overwriting registered response handler")
	}
	b.responses[correlationID] = handler
}

// Deregister removes a pending response handler, if present.
func (b *MessageBus) Deregister(correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.responses, correlationID)
}

// SendResponse routes payload to the handler registered under correlationID
// and consumes the registration. Unmatched responses are logged and dropped.
func (b *MessageBus) SendResponse(correlationID string, payload interface{}) {
	b.mu.Lock()
	handler, ok := b.responses[correlationID]
	if ok {
		delete(b.responses, correlationID)
	}
	b.mu.Unlock()

	if !ok {
		b.log.WithField("correlation_id", correlationID).
			Warn("No response handler registered, dropping response")
		return
	}
	handler(payload)
}
