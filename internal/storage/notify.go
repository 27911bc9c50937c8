package storage

import "sync"

// notifier fans a "new data" signal out to subscribers.
type notifier struct {
	mu          sync.Mutex
	subscribers map[uint64]chan struct{}
	nextID      uint64
}

func newNotifier() *notifier {
	return &notifier{subscribers: make(map[uint64]chan struct{})}
}

// Subscribe returns a notification channel and an unsubscribe function.
// The channel has capacity 1 so rapid updates coalesce into one signal.
func (n *notifier) Subscribe() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan struct{}, 1)
	n.subscribers[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subscribers, id)
	}
}

// notify sends a non-blocking signal to every subscriber.
func (n *notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// pending signal already queued
		}
	}
}
