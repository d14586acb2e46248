package endpoint

import (
	"context"
	"time"

	"github.com/mxl-media/fabrics/internal/ferrors"
)

// CompletionKind distinguishes a transfer completion from a receive completion.
type CompletionKind int

const (
	// CompletionWrite reports a one-sided write: on the initiator, its local
	// post finished; on the target, a write arrived and was applied.
	CompletionWrite CompletionKind = iota
	// CompletionRecv reports a small receive buffer being filled, used only
	// when the Domain is in cq-data-via-recv mode.
	CompletionRecv
)

// CompletionEntry is one entry drained from a CompletionQueue.
type CompletionEntry struct {
	Kind    CompletionKind
	Token   uint64 // opaque correlation id supplied to write()/recv()
	ImmData uint32
	Err     error
}

// CompletionQueue is a bounded, non-blocking-pollable queue of transfer
// completions, bound to exactly one Endpoint at a time.
type CompletionQueue struct {
	ch chan CompletionEntry
}

// NewCompletionQueue allocates a CompletionQueue with the given backlog capacity.
func NewCompletionQueue(capacity int) *CompletionQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &CompletionQueue{ch: make(chan CompletionEntry, capacity)}
}

func (q *CompletionQueue) push(entry CompletionEntry) {
	select {
	case q.ch <- entry:
	default:
		select {
		case <-q.ch:
		default:
		}
		select {
		case q.ch <- entry:
		default:
		}
	}
}

// TryRead returns the next CompletionEntry without blocking, or
// (CompletionEntry{}, false) if none is pending.
func (q *CompletionQueue) TryRead() (CompletionEntry, bool) {
	select {
	case e := <-q.ch:
		return e, true
	default:
		return CompletionEntry{}, false
	}
}

// ReadBlocking waits up to timeout for a CompletionEntry, honouring ctx
// cancellation. timeout==0 degrades to a single non-blocking poll.
func (q *CompletionQueue) ReadBlocking(ctx context.Context, timeout time.Duration) (CompletionEntry, error) {
	if e, ok := q.TryRead(); ok {
		return e, nil
	}
	if timeout <= 0 {
		return CompletionEntry{}, ferrors.New(ferrors.StatusNotReady, "CompletionQueue.ReadBlocking", "no completion pending")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e := <-q.ch:
		return e, nil
	case <-timer.C:
		return CompletionEntry{}, ferrors.New(ferrors.StatusTimeout, "CompletionQueue.ReadBlocking", "deadline elapsed waiting for completion")
	case <-ctx.Done():
		return CompletionEntry{}, ferrors.Wrap(ferrors.StatusInterrupted, "CompletionQueue.ReadBlocking", ctx.Err())
	}
}
