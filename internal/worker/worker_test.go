package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jabo17/mallob/internal/balancer"
	"github.com/jabo17/mallob/internal/config"
	"github.com/jabo17/mallob/internal/job"
	"github.com/jabo17/mallob/internal/transport"
)

func testWorker(t *testing.T) (*Worker, transport.Queue) {
	t.Helper()
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skip("/bin/true not available")
	}
	hub := transport.NewHub(1, 8)
	queue := hub.Queue(0)
	params := config.Default()
	params.SolverBinaryPath = "/bin/true"
	params.TerminationGracePeriod = 50 * time.Millisecond
	w := New(params, queue, balancer.Tree{Rank: 0, ClusterSize: 1})
	return w, queue
}

func TestSubmitJobRejectsUnknownApplication(t *testing.T) {
	w, _ := testWorker(t)
	_, err := w.SubmitJob(job.Description{Application: 99, Priority: 0.5, Literals: []int32{1, 0}})
	if err == nil {
		t.Fatal("expected an error for an unrecognized application")
	}
}

func TestSubmitJobRejectsInvalidDescription(t *testing.T) {
	w, _ := testWorker(t)
	_, err := w.SubmitJob(job.Description{Application: job.SAT, Priority: 2, Literals: []int32{1, 0}})
	if err == nil {
		t.Fatal("expected priority-out-of-range to be rejected before any attempt is created")
	}
}

func TestAllocJobIDIsMonotonic(t *testing.T) {
	w, _ := testWorker(t)
	first := w.allocJobID()
	second := w.allocJobID()
	if second != first+1 {
		t.Fatalf("allocJobID: got %d then %d, want consecutive ids", first, second)
	}
}

func TestSubmitSATJobIsHealthCheckedToCompletion(t *testing.T) {
	w, _ := testWorker(t)
	j, err := w.SubmitJob(job.Description{
		Application: job.SAT,
		Priority:    1,
		Literals:    []int32{1, -2, 0},
	})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if !w.store.Has(j.Description.ID) {
		t.Fatal("expected job to be registered in the store")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w.healthTick()
		if !w.store.Has(j.Description.ID) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if w.store.Has(j.Description.ID) {
		t.Fatal("expected the health tick to relinquish the job once /bin/true exited")
	}
	w.mu.Lock()
	_, stillTracked := w.attempts[j.Description.ID]
	w.mu.Unlock()
	if stillTracked {
		t.Fatal("expected the attempt to be removed from the worker's attempt table")
	}
}

func TestHandleMessageDispatchesDoExitAndDropsUnknownTags(t *testing.T) {
	w, _ := testWorker(t)

	// Unknown tag must not panic and must not block.
	w.handleMessage(transport.Message{Tag: transport.MsgQBFCancelChildren})

	ctx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	w.handleMessage(transport.Message{Tag: transport.MsgDoExit})
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected MSG_DO_EXIT to cancel the worker's context")
	}
}

func TestRunStopsOnDoExitMessage(t *testing.T) {
	w, queue := testWorker(t)
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()

	if err := queue.Send(context.Background(), 0, transport.Message{Tag: transport.MsgDoExit}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after MSG_DO_EXIT")
	}
}
