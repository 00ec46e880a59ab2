package transport

import (
	"context"
	"time"

	"github.com/grailbio/base/errors"
)

// Hub wires a set of in-process Queues together over buffered channels.
// It stands in for the MPI transport in tests and single-process runs,
// the way the teacher's bigmachine/testsystem stands in for a real
// cluster.
type Hub struct {
	queues []*localQueue
}

// NewHub creates a Hub with `size` ranks, each with an inbox of the given
// buffer depth.
func NewHub(size, inboxDepth int) *Hub {
	h := &Hub{queues: make([]*localQueue, size)}
	for i := range h.queues {
		h.queues[i] = &localQueue{
			rank: i,
			size: size,
			hub:  h,
			in:   make(chan Message, inboxDepth),
		}
	}
	return h
}

// Queue returns the Queue endpoint for rank.
func (h *Hub) Queue(rank int) Queue { return h.queues[rank] }

type localQueue struct {
	rank int
	size int
	hub  *Hub
	in   chan Message
}

func (q *localQueue) Rank() int { return q.rank }
func (q *localQueue) Size() int { return q.size }

func (q *localQueue) Send(ctx context.Context, dest int, m Message) error {
	if dest < 0 || dest >= q.size {
		return errors.E(errors.Invalid, "transport: destination rank out of range")
	}
	m.Source = q.rank
	select {
	case q.hub.queues[dest].in <- m:
		return nil
	default:
		// Full inbox: a transient, retryable condition (spec §7
		// TransientIO).
		return errors.E(errors.Net, "transport: inbox full")
	}
}

func (q *localQueue) Advance(timeout time.Duration) (Message, bool) {
	select {
	case m := <-q.in:
		return m, true
	case <-time.After(timeout):
		return Message{}, false
	}
}
