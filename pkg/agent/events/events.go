// Package events carries agent notifications to an external consumer.
//
// A Sender and Receiver share one unbounded queue, so Send never blocks and is
// safe to call while the agent state lock is held. Once the receiver is closed
// every Send fails with ErrReceiverClosed.
package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Type identifies an agent event.
type Type string

const (
	TypeThinking        Type = "thinking"
	TypeSleeping        Type = "sleeping"
	TypeMetricsUpdate   Type = "metrics_update"
	TypeStorageUpdate   Type = "storage_update"
	TypeEmptyResponse   Type = "empty_response"
	TypeInvalidResponse Type = "invalid_response"
	TypeInvalidAction   Type = "invalid_action"
	TypeActionTimeout   Type = "action_timeout"
	TypeActionExecuted  Type = "action_executed"
	TypeTaskComplete    Type = "task_complete"
)

// Event is a single notification. Payload keys depend on Type.
type Event struct {
	Type      Type
	Timestamp time.Time
	Payload   map[string]any
}

// NewEvent builds an event stamped with the current time.
func NewEvent(t Type, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{Type: t, Timestamp: time.Now().UTC(), Payload: payload}
}

// String returns the payload value for key, or "".
func (e Event) String(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// Thinking carries the text the model produced alongside its action.
func Thinking(text string) Event {
	return NewEvent(TypeThinking, map[string]any{"text": text})
}

// Sleeping is emitted before a voluntary pause.
func Sleeping(seconds int) Event {
	return NewEvent(TypeSleeping, map[string]any{"seconds": seconds})
}

// MetricsUpdate carries a snapshot of the run counters.
func MetricsUpdate(metrics any) Event {
	return NewEvent(TypeMetricsUpdate, map[string]any{"metrics": metrics})
}

// StorageUpdate describes a single storage mutation.
func StorageUpdate(storage, kind, key, prev, next string) Event {
	return NewEvent(TypeStorageUpdate, map[string]any{
		"storage": storage,
		"kind":    kind,
		"key":     key,
		"prev":    prev,
		"new":     next,
	})
}

// EmptyResponse is emitted when the model replied with nothing.
func EmptyResponse() Event {
	return NewEvent(TypeEmptyResponse, nil)
}

// InvalidResponse is emitted when a reply could not be parsed.
func InvalidResponse(response, err string) Event {
	return NewEvent(TypeInvalidResponse, map[string]any{"response": response, "error": err})
}

// InvalidAction is emitted when the model requested an unknown action.
func InvalidAction(action, err string) Event {
	return NewEvent(TypeInvalidAction, map[string]any{"action": action, "error": err})
}

// ActionTimeout is emitted when an action exceeded its deadline.
func ActionTimeout(action string, elapsed time.Duration) Event {
	return NewEvent(TypeActionTimeout, map[string]any{"action": action, "elapsed": elapsed})
}

// ActionExecuted reports the outcome of one action. err is empty on success.
func ActionExecuted(action, result, err string, elapsed time.Duration) Event {
	return NewEvent(TypeActionExecuted, map[string]any{
		"action":  action,
		"result":  result,
		"error":   err,
		"elapsed": elapsed,
	})
}

// TaskComplete is the terminal event of a run.
func TaskComplete(impossible bool, reason string) Event {
	return NewEvent(TypeTaskComplete, map[string]any{"impossible": impossible, "reason": reason})
}

// ErrReceiverClosed is returned by Send once nobody listens anymore.
var ErrReceiverClosed = errors.New("event receiver closed")

const defaultBuffer = 64

// channel is an unbounded queue. Send appends and signals ready; the
// receiver pops in FIFO order.
type channel struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	ready  chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Sender is the producing half of an event channel.
type Sender struct {
	c *channel
}

// Receiver is the consuming half of an event channel.
type Receiver struct {
	c *channel
}

// New creates a connected Sender/Receiver pair. buffer is the initial queue
// capacity; the queue grows as needed so Send never blocks. A non-positive
// buffer uses a default capacity.
func New(buffer int) (*Sender, *Receiver) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	c := &channel{
		queue: make([]Event, 0, buffer),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	return &Sender{c: c}, &Receiver{c: c}
}

// Send queues ev without blocking. It fails with ErrReceiverClosed once the
// receiver is closed.
func (s *Sender) Send(ev Event) error {
	s.c.mu.Lock()
	if s.c.closed {
		s.c.mu.Unlock()
		return ErrReceiverClosed
	}
	s.c.queue = append(s.c.queue, ev)
	s.c.mu.Unlock()

	select {
	case s.c.ready <- struct{}{}:
	default:
	}
	return nil
}

func (c *channel) pop() (Event, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Event{}, false, true
	}
	if len(c.queue) == 0 {
		return Event{}, false, false
	}
	ev := c.queue[0]
	c.queue[0] = Event{}
	c.queue = c.queue[1:]
	return ev, true, false
}

// Recv waits for the next event.
func (r *Receiver) Recv(ctx context.Context) (Event, error) {
	for {
		ev, ok, closed := r.c.pop()
		if closed {
			return Event{}, ErrReceiverClosed
		}
		if ok {
			return ev, nil
		}
		select {
		case <-r.c.ready:
		case <-r.c.done:
			return Event{}, ErrReceiverClosed
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Drain returns every queued event without blocking. Events queued before
// Close are still returned.
func (r *Receiver) Drain() []Event {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if len(r.c.queue) == 0 {
		return nil
	}
	out := r.c.queue
	r.c.queue = make([]Event, 0, defaultBuffer)
	return out
}

// Len reports how many events are queued.
func (r *Receiver) Len() int {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return len(r.c.queue)
}

// Run calls fn for every event until ctx is done or the receiver is closed.
func (r *Receiver) Run(ctx context.Context, fn func(Event)) error {
	for {
		ev, err := r.Recv(ctx)
		if err != nil {
			if errors.Is(err, ErrReceiverClosed) {
				return nil
			}
			return err
		}
		fn(ev)
	}
}

// Close detaches the receiver. Subsequent sends fail.
func (r *Receiver) Close() {
	r.c.once.Do(func() {
		r.c.mu.Lock()
		r.c.closed = true
		r.c.mu.Unlock()
		close(r.c.done)
	})
}
