package endpoint

import (
	"context"
	"net"
	"time"

	"github.com/mxl-media/fabrics/internal/ferrors"
)

// EventType discriminates the connection-management notifications an
// EventQueue carries, mirroring libfabric's fi_eq event kinds.
type EventType int

const (
	EventConnReq EventType = iota
	EventConnected
	EventShutdown
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventConnReq:
		return "conn-req"
	case EventConnected:
		return "connected"
	case EventShutdown:
		return "shutdown"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one connection-management notification. For a connection-oriented
// EventConnReq, Conn and PeerIdentity carry the raw accepted connection and
// the initiator's identity so the Target can build an active Endpoint from it
// (§4.3.1). For a connectionless (SHM) EventConnReq, Conn is nil and
// PeerIdentity holds the sender's index in the receiving AddressVector.
type Event struct {
	Type         EventType
	PeerAddr     net.Addr
	PeerIdentity uint64
	Conn         net.Conn
	Err          error
}

// EventQueue is a bounded, non-blocking-pollable queue of Events, bound to
// exactly one Endpoint or PassiveEndpoint at a time per spec §4.2.
type EventQueue struct {
	ch chan Event
}

// NewEventQueue allocates an EventQueue with the given backlog capacity.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = 16
	}
	return &EventQueue{ch: make(chan Event, capacity)}
}

// push enqueues ev, dropping the oldest entry if the queue is full rather
// than blocking the goroutine servicing the socket — a full EQ means the
// caller isn't draining it, which is a caller bug, not a reason to stall I/O.
func (q *EventQueue) push(ev Event) {
	select {
	case q.ch <- ev:
	default:
		select {
		case <-q.ch:
		default:
		}
		select {
		case q.ch <- ev:
		default:
		}
	}
}

// TryRead returns the next Event without blocking, or (Event{}, false) if
// none is pending — the NotReady signalling path of readQueues().
func (q *EventQueue) TryRead() (Event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
		return Event{}, false
	}
}

// ReadBlocking waits up to timeout for an Event, honouring ctx cancellation.
// timeout==0 degrades to a single non-blocking poll, per spec §5.
func (q *EventQueue) ReadBlocking(ctx context.Context, timeout time.Duration) (Event, error) {
	if ev, ok := q.TryRead(); ok {
		return ev, nil
	}
	if timeout <= 0 {
		return Event{}, ferrors.New(ferrors.StatusNotReady, "EventQueue.ReadBlocking", "no event pending")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-q.ch:
		return ev, nil
	case <-timer.C:
		return Event{}, ferrors.New(ferrors.StatusTimeout, "EventQueue.ReadBlocking", "deadline elapsed waiting for event")
	case <-ctx.Done():
		return Event{}, ferrors.Wrap(ferrors.StatusInterrupted, "EventQueue.ReadBlocking", ctx.Err())
	}
}
