// Package bus implements the MessageBus: a thread-safe FIFO of
// command/report records with request/response correlation, the sole
// path by which external callers mutate engine state and by which the
// engine publishes reports (spec §4.2).
package bus

import "sync"

// Kind tags a Message's payload type for dispatch.
type Kind int

// Message is a tagged record carrying a Kind and a payload, with an
// optional completion signal for synchronous callers.
type Message struct {
	Kind    Kind
	Payload interface{}

	done   chan struct{}
	result interface{}
	once   sync.Once
}

// NewMessage creates a submit-and-forget message: the worker destroys
// it after handling, no completion is signaled.
func NewMessage(kind Kind, payload interface{}) *Message {
	return &Message{Kind: kind, Payload: payload}
}

// NewRequest creates a message with a completion signal, for use with
// Bus.Execute.
func NewRequest(kind Kind, payload interface{}) *Message {
	return &Message{Kind: kind, Payload: payload, done: make(chan struct{})}
}

// Complete marks the message as handled and, if it carries a
// completion signal, wakes any Execute caller blocked on it with the
// given result.
func (m *Message) Complete(result interface{}) {
	if m.done == nil {
		return
	}
	m.once.Do(func() {
		m.result = result
		close(m.done)
	})
}

// Result returns the value passed to Complete. Only meaningful after
// Execute has returned.
func (m *Message) Result() interface{} {
	return m.result
}

// Bus is a multi-producer/single-consumer FIFO of messages, protected
// by a single mutex (spec §4.2, §5).
type Bus struct {
	mu      sync.Mutex
	queue   []*Message
	wake    chan struct{}
}

// New creates an empty Bus. The internal wake channel buffers a single
// signal, which is sufficient since handlers drain the whole queue on
// each wake-up.
func New() *Bus {
	return &Bus{wake: make(chan struct{}, 1)}
}

// Wake returns the channel the worker selects on to learn that new
// messages were enqueued (the messageEnqueued event of spec §4.2).
func (b *Bus) Wake() <-chan struct{} {
	return b.wake
}

// Submit enqueues msg and returns immediately.
func (b *Bus) Submit(msg *Message) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Execute enqueues msg and blocks until the worker completes it,
// returning its result.
func (b *Bus) Execute(msg *Message) interface{} {
	if msg.done == nil {
		panic("bus: Execute requires a message created with NewRequest")
	}
	b.Submit(msg)
	<-msg.done
	return msg.result
}

// Accept performs a non-blocking dequeue, returning the next message
// or nil if the queue is empty.
func (b *Bus) Accept() *Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	msg := b.queue[0]
	b.queue = b.queue[1:]
	return msg
}

// Pending returns the number of messages currently queued.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
