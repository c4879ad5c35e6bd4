package ws

import (
	"sync"

	"github.com/oleksandrkozlov/preferans/internal/domain"
)

// inbox is the unbounded FIFO between the read pump and Receive.
// Once failed, queued envelopes are still handed out before the failure.
type inbox struct {
	mu     sync.Mutex
	items  []domain.Envelope
	err    error
	notify chan struct{}
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (q *inbox) push(env domain.Envelope) {
	q.mu.Lock()
	q.items = append(q.items, env)
	q.mu.Unlock()
	q.wake()
}

// fail records the terminal error. Only the first one sticks.
func (q *inbox) fail(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
	q.wake()
}

func (q *inbox) pop() (domain.Envelope, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		env := q.items[0]
		q.items[0] = domain.Envelope{}
		q.items = q.items[1:]
		return env, true, nil
	}
	return domain.Envelope{}, false, q.err
}

func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *inbox) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
