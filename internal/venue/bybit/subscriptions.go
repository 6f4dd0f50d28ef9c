package bybit

import (
	"sync"
)

// subscriptionBook mirrors the server-side subscription state. Topics move
// pending -> confirmed on ack; a nack moves them to the failure set so the
// next reconnect can retry them.
type subscriptionBook struct {
	mu        sync.Mutex
	pending   map[string]struct{}
	confirmed map[string]struct{}
	failed    map[string]struct{}
	// pendingUnsub tracks topics awaiting unsubscribe acks so a nack can
	// restore them to confirmed.
	pendingUnsub map[string]struct{}
}

func newSubscriptionBook() *subscriptionBook {
	return &subscriptionBook{
		pending:      make(map[string]struct{}),
		confirmed:    make(map[string]struct{}),
		failed:       make(map[string]struct{}),
		pendingUnsub: make(map[string]struct{}),
	}
}

// markPending records topics as awaiting a subscribe ack. Topics already
// confirmed or pending are skipped; the new ones are returned.
func (b *subscriptionBook) markPending(topics []string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var fresh []string
	for _, topic := range topics {
		if _, ok := b.confirmed[topic]; ok {
			continue
		}
		if _, ok := b.pending[topic]; ok {
			continue
		}
		b.pending[topic] = struct{}{}
		delete(b.failed, topic)
		fresh = append(fresh, topic)
	}
	return fresh
}

// confirmPending moves every pending topic to confirmed on a successful ack.
func (b *subscriptionBook) confirmPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic := range b.pending {
		b.confirmed[topic] = struct{}{}
		delete(b.pending, topic)
	}
}

// failPending moves every pending topic to the failure set on a nack.
func (b *subscriptionBook) failPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic := range b.pending {
		b.failed[topic] = struct{}{}
		delete(b.pending, topic)
	}
}

// markUnsubscribing records topics awaiting an unsubscribe ack and removes
// them from confirmed. Topics not confirmed are skipped.
func (b *subscriptionBook) markUnsubscribing(topics []string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, topic := range topics {
		if _, ok := b.confirmed[topic]; !ok {
			continue
		}
		delete(b.confirmed, topic)
		b.pendingUnsub[topic] = struct{}{}
		out = append(out, topic)
	}
	return out
}

// confirmUnsubscribe drops the pending unsubscribes.
func (b *subscriptionBook) confirmUnsubscribe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingUnsub = make(map[string]struct{})
}

// failUnsubscribe restores pending unsubscribes to confirmed.
func (b *subscriptionBook) failUnsubscribe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic := range b.pendingUnsub {
		b.confirmed[topic] = struct{}{}
	}
	b.pendingUnsub = make(map[string]struct{})
}

// resubscribeSet returns the union of confirmed and failed topics, which is
// what a reconnect must re-establish. The failure set is consumed.
func (b *subscriptionBook) resubscribeSet() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.confirmed)+len(b.failed))
	for topic := range b.confirmed {
		out = append(out, topic)
	}
	for topic := range b.failed {
		out = append(out, topic)
		delete(b.failed, topic)
	}
	// Reconnect starts from a clean slate server side.
	b.confirmed = make(map[string]struct{})
	b.pending = make(map[string]struct{})
	return out
}

// isConfirmed reports whether a topic is live.
func (b *subscriptionBook) isConfirmed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.confirmed[topic]
	return ok
}

// confirmedCount returns the number of live topics.
func (b *subscriptionBook) confirmedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.confirmed)
}

// chunkArgs splits topics into request-sized chunks.
func chunkArgs(topics []string, maxPerRequest int) [][]string {
	if maxPerRequest <= 0 {
		maxPerRequest = 10
	}
	var chunks [][]string
	for len(topics) > 0 {
		n := maxPerRequest
		if len(topics) < n {
			n = len(topics)
		}
		chunks = append(chunks, topics[:n])
		topics = topics[n:]
	}
	return chunks
}
