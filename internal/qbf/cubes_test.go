package qbf

import (
	"context"
	"testing"

	"github.com/jabo17/mallob/internal/job"
	"github.com/jabo17/mallob/internal/transport"
)

func TestCubeWorkerRequestWorkReturnCycle(t *testing.T) {
	w := NewCubeWorker(func(ctx context.Context, c Cube) (job.Result, error) {
		return job.ResultUnsat, nil
	})
	w.Start()
	if !w.WantsToCommunicate() {
		t.Fatal("expected a freshly started worker to want to request cubes")
	}
	tag, _, ok := w.BeginCommunication()
	if !ok || tag != transport.MsgRequestCubes {
		t.Fatalf("BeginCommunication = (%v,_,%v), want (MsgRequestCubes,true)", tag, ok)
	}
	if w.State() != CubeRequesting {
		t.Fatalf("state = %v, want CubeRequesting", w.State())
	}

	w.DigestSendCubes([]Cube{{Literals: []int32{1}}, {Literals: []int32{2}}})
	if w.State() != CubeWorking {
		t.Fatalf("state = %v, want CubeWorking", w.State())
	}

	w.Solve(context.Background())
	if w.State() != CubeFailed {
		t.Fatalf("state = %v, want CubeFailed (all cubes UNSAT)", w.State())
	}

	tag, failed, ok := w.BeginCommunication()
	if !ok || tag != transport.MsgReturnFailedCubes || len(failed) != 2 {
		t.Fatalf("BeginCommunication = (%v,%v,%v), want (MsgReturnFailedCubes, 2 cubes, true)", tag, failed, ok)
	}
	if w.State() != CubeReturning {
		t.Fatalf("state = %v, want CubeReturning", w.State())
	}

	w.DigestReceivedFailedCubes()
	if w.State() != CubeWaiting {
		t.Fatalf("state = %v, want CubeWaiting (ready to request again)", w.State())
	}
}

func TestCubeWorkerStopsEarlyOnSAT(t *testing.T) {
	calls := 0
	w := NewCubeWorker(func(ctx context.Context, c Cube) (job.Result, error) {
		calls++
		if calls == 1 {
			return job.ResultSAT, nil
		}
		t.Fatal("should not solve a second cube after finding SAT")
		return job.ResultUnsat, nil
	})
	w.Start()
	w.BeginCommunication()
	w.DigestSendCubes([]Cube{{Literals: []int32{1}}, {Literals: []int32{2}}})
	w.Solve(context.Background())
	if w.State() != CubeSolved || w.Result() != job.ResultSAT {
		t.Fatalf("state=%v result=%v, want CubeSolved/ResultSAT", w.State(), w.Result())
	}
}

func TestCubeWorkerInterruptStopsSolve(t *testing.T) {
	w := NewCubeWorker(func(ctx context.Context, c Cube) (job.Result, error) {
		return job.ResultUnsat, nil
	})
	w.Start()
	w.BeginCommunication()
	w.DigestSendCubes([]Cube{{Literals: []int32{1}}})
	w.Interrupt()
	w.Solve(context.Background())
	if w.State() != CubeWorking {
		t.Fatalf("state = %v, want CubeWorking (interrupted before completing)", w.State())
	}
}
