package asynccli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaylane/router/internal/bus"
	"github.com/relaylane/router/internal/delivery"
	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/providers"
	"github.com/relaylane/router/internal/routing"
)

type fakeRunner struct {
	result *providers.CLIResult
	err    error
	delay  time.Duration
}

func (f *fakeRunner) Run(ctx context.Context, cliType, command, workspacePath string) (*providers.CLIResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type recordingSink struct {
	reqs []delivery.Request
}

func (s *recordingSink) Enqueue(ctx context.Context, req delivery.Request) (*delivery.Result, error) {
	s.reqs = append(s.reqs, req)
	return &delivery.Result{DeliveryID: "d1", Queued: true}, nil
}

func waitForJob(t *testing.T, m *Manager, id string, want routing.AsyncJobStatus) routing.AsyncCLIJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, ok := m.StatusOf(id)
		if ok && rec.Status == want {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %s in time", id, want)
	return routing.AsyncCLIJob{}
}

func TestStartExecutionDeliversOutputFile(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{result: &providers.CLIResult{Content: "report ready", OutputFiles: []string{filepath.Join(dir, "report.pdf")}}}
	sink := &recordingSink{}
	m := New(runner, sink, bus.NewBus(), logging.Nop(), []string{"node_modules", ".git"})

	id, err := m.StartExecution(context.Background(), "cli-claude", "generate report", dir, Options{
		DeliveryTarget: routing.DeliveryTarget{ExternalID: "user-1", Platform: "slack"},
	})
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	waitForJob(t, m, id, routing.JobCompleted)
	m.Close()

	if len(sink.reqs) != 1 {
		t.Fatalf("expected one delivery, got %d", len(sink.reqs))
	}
	if sink.reqs[0].Options.Media != filepath.Join(dir, "report.pdf") {
		t.Fatalf("unexpected media path: %s", sink.reqs[0].Options.Media)
	}
}

func TestStartExecutionDropsScriptsWhenDocumentsCreated(t *testing.T) {
	dir := t.TempDir()
	pre, err := snapshotWorkspace(dir, map[string]bool{})
	if err != nil {
		t.Fatalf("snapshotWorkspace: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "generate.py"), []byte("print('hi')"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "output.csv"), []byte("a,b\n1,2"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	created := diffCreatedFiles(dir, pre, nil, map[string]bool{})
	retained := applyScriptFilter(created)

	for _, f := range retained {
		if filepath.Ext(f) == ".py" {
			t.Fatalf("expected script to be dropped, found %s among retained: %v", f, retained)
		}
	}
	foundCSV := false
	for _, f := range retained {
		if filepath.Base(f) == "output.csv" {
			foundCSV = true
		}
	}
	if !foundCSV {
		t.Fatalf("expected output.csv to be retained, got %v", retained)
	}
}

func TestStartExecutionFailureNotifies(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{err: errors.New("process exited 1")}
	sink := &recordingSink{}
	m := New(runner, sink, bus.NewBus(), logging.Nop(), nil)

	id, err := m.StartExecution(context.Background(), "cli-claude", "do it", dir, Options{
		DeliveryTarget: routing.DeliveryTarget{ExternalID: "user-1", Platform: "slack"},
	})
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	waitForJob(t, m, id, routing.JobFailed)
	m.Close()

	if len(sink.reqs) != 1 {
		t.Fatalf("expected one failure notification, got %d", len(sink.reqs))
	}
}

func TestCancelPreventsDelivery(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{result: &providers.CLIResult{Content: "done"}, delay: 200 * time.Millisecond}
	sink := &recordingSink{}
	m := New(runner, sink, bus.NewBus(), logging.Nop(), nil)

	id, err := m.StartExecution(context.Background(), "cli-claude", "slow job", dir, Options{
		DeliveryTarget:   routing.DeliveryTarget{ExternalID: "user-1", Platform: "slack"},
		StaleThresholdMs: int64(5 * time.Second / time.Millisecond),
	})
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	if err := m.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	m.Close()

	rec, ok := m.StatusOf(id)
	if !ok {
		t.Fatal("expected job to still be tracked")
	}
	if rec.Status != routing.JobCancelled {
		t.Fatalf("expected cancelled status, got %s", rec.Status)
	}
	if len(sink.reqs) != 0 {
		t.Fatalf("expected no delivery for a cancelled job, got %d", len(sink.reqs))
	}
}

func TestCancelUnknownTrackingID(t *testing.T) {
	m := New(&fakeRunner{}, &recordingSink{}, bus.NewBus(), logging.Nop(), nil)
	if err := m.Cancel("does-not-exist"); err == nil {
		t.Fatal("expected error cancelling an unknown tracking id")
	}
}
