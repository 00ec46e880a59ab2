package transport

import (
	"context"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/retry"
)

// Queue is the point-to-point and collective primitive the balancer, job
// tree, and clause exchange are built on (spec §6: "A point-to-point
// message primitive ... large payloads may be streamed in batches"). The
// actual MPI transport is an out-of-scope external collaborator; Queue
// is the seam it plugs into.
type Queue interface {
	// Send enqueues m for delivery to dest. It may return an
	// errors.Net-kind error if the send is retryable (spec §7
	// "TransientIO").
	Send(ctx context.Context, dest int, m Message) error

	// Advance blocks for up to timeout waiting for an inbound message
	// (spec §5: "The main loop blocks only inside messageQueue.advance()
	// (I/O poll with microsecond timeout)"), returning ok=false on
	// timeout.
	Advance(timeout time.Duration) (Message, bool)

	// Rank and Size report this queue's position in the cluster.
	Rank() int
	Size() int
}

// SendRetryPolicy is the default backoff used for retryable sends,
// mirroring how the teacher's bigmachineExecutor holds a package-level
// retryPolicy for RetryCall.
var SendRetryPolicy = retry.Backoff(10*time.Millisecond, 500*time.Millisecond, 1.5)

// SendWithRetry resends m until it succeeds, a non-retryable error is
// returned, or ctx is done. Only errors classified as TransientIO
// (errors.IsTemporary) are retried, per spec §7's propagation policy.
func SendWithRetry(ctx context.Context, q Queue, dest int, m Message) error {
	for retries := 0; ; retries++ {
		err := q.Send(ctx, dest, m)
		if err == nil {
			return nil
		}
		if !errors.IsTemporary(err) {
			return err
		}
		if waitErr := retry.Wait(ctx, SendRetryPolicy, retries); waitErr != nil {
			return err
		}
	}
}
