package sync

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/status"
)

func TestRunnerRunsImmediatePass(t *testing.T) {
	db := testDB(t)
	machine := status.NewMachine(nil)
	if err := machine.Transition(status.Idle); err != nil {
		t.Fatal(err)
	}

	r := NewRunner(testOrchestrator(db, nil), 0, machine, zap.NewNop())
	r.Start(context.Background())
	defer r.Stop()

	waitForIdle(t, db)
}

func TestRunnerTriggerNow(t *testing.T) {
	db := testDB(t)
	machine := status.NewMachine(nil)
	if err := machine.Transition(status.Idle); err != nil {
		t.Fatal(err)
	}

	r := NewRunner(testOrchestrator(db, nil), 0, machine, zap.NewNop())
	r.Start(context.Background())
	defer r.Stop()

	waitForIdle(t, db)
	if err := r.TriggerNow(); err != nil {
		t.Errorf("TriggerNow() error = %v", err)
	}
}

// waitForIdle polls until the first pass checkpoint lands.
func waitForIdle(t *testing.T, db interface {
	GetSyncState(key string) (string, error)
}) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		v, err := db.GetSyncState("last_pass_at")
		if err != nil {
			t.Fatal(err)
		}
		if v != "" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a sync pass to complete")
}
