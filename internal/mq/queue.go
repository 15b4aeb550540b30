// Package mq is the delayed message queue behind the actor simulation. It is
// independent of the dataflow edges and its pending messages are never
// serialized with the graph.
package mq

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// ErrClosed is returned when enqueueing on a closed queue
var ErrClosed = errors.New("queue closed")

// KindTransfer is the message kind actors send and credit
const KindTransfer = "transfer"

// Message is one delayed delivery
type Message struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	To        []string      `json:"to"`
	Payload   string        `json:"payload"`
	Kind      string        `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
	Delay     time.Duration `json:"delay"`
}

// Addressed reports whether name is among the recipients
func (m Message) Addressed(name string) bool {
	for _, to := range m.To {
		if to == name {
			return true
		}
	}
	return false
}

// Listener is notified on delivery. It runs on the delivering goroutine.
type Listener func(Message)

type entry struct {
	msg   Message
	timer *time.Timer
}

// Queue holds messages until their delay elapses
type Queue struct {
	mu        sync.Mutex
	pending   []*entry
	listeners map[int]Listener
	order     []int
	seq       int
	closed    bool

	manual bool
	now    func() time.Time
	logger hclog.Logger
}

// Option configures a Queue
type Option func(*Queue)

// WithLogger sets the queue logger
func WithLogger(logger hclog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger.Named("mq")
		}
	}
}

// WithClock sets the timestamp source
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithManualDelivery disables timers; messages are only delivered by ProcessAll
func WithManualDelivery() Option {
	return func(q *Queue) {
		q.manual = true
	}
}

// New creates a queue
func New(opts ...Option) *Queue {
	q := &Queue{
		listeners: make(map[int]Listener),
		now:       time.Now,
		logger:    hclog.NewNullLogger(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue schedules msg for delivery after its delay and returns its id
func (q *Queue) Enqueue(msg Message) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrClosed
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = q.now()
	}
	msg.To = append([]string(nil), msg.To...)

	e := &entry{msg: msg}
	q.pending = append(q.pending, e)
	if !q.manual {
		e.timer = time.AfterFunc(msg.Delay, func() { q.deliver(e) })
	}

	q.logger.Debug("message enqueued", "id", msg.ID, "kind", msg.Kind, "from", msg.From, "delay", msg.Delay)
	return msg.ID, nil
}

// take removes e from pending, reporting false if it was already delivered
func (q *Queue) take(e *entry) bool {
	for i, p := range q.pending {
		if p == e {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) listenersLocked() []Listener {
	out := make([]Listener, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.listeners[id])
	}
	return out
}

func (q *Queue) deliver(e *entry) {
	q.mu.Lock()
	if q.closed || !q.take(e) {
		q.mu.Unlock()
		return
	}
	listeners := q.listenersLocked()
	q.mu.Unlock()

	q.notify(listeners, e.msg)
}

func (q *Queue) notify(listeners []Listener, msg Message) {
	q.logger.Debug("message delivered", "id", msg.ID, "to", msg.To)
	for _, l := range listeners {
		l(msg)
	}
}

// ProcessAll delivers every pending message synchronously in FIFO order and
// returns how many were delivered
func (q *Queue) ProcessAll() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	for _, e := range batch {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	listeners := q.listenersLocked()
	q.mu.Unlock()

	for _, e := range batch {
		q.notify(listeners, e.msg)
	}
	return len(batch)
}

// Pending returns the undelivered messages in enqueue order
func (q *Queue) Pending() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, 0, len(q.pending))
	for _, e := range q.pending {
		out = append(out, e.msg)
	}
	return out
}

// Subscribe registers a delivery listener and returns a function removing it
func (q *Queue) Subscribe(l Listener) func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.seq
	q.seq++
	q.listeners[id] = l
	q.order = append(q.order, id)

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.listeners, id)
		for i, v := range q.order {
			if v == id {
				q.order = append(q.order[:i], q.order[i+1:]...)
				break
			}
		}
	}
}

// Close stops all timers and drops undelivered messages
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	for _, e := range q.pending {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	if len(q.pending) > 0 {
		q.logger.Info("queue closed with undelivered messages", "count", len(q.pending))
	}
	q.pending = nil
	q.closed = true
}
