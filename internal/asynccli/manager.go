// Package asynccli decouples long-running CLI delegation from the
// synchronous caller: a job is recorded, dispatched, and tracked by a
// trackingId the caller's reasoning loop can forget about immediately. The
// manager owns the job exclusively from submission until its result (or
// failure) has been handed to the delivery channel.
package asynccli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaylane/router/internal/bus"
	"github.com/relaylane/router/internal/delivery"
	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/providers"
	"github.com/relaylane/router/internal/routing"
)

// defaultStaleThreshold matches AsyncCLIConfig.StaleThresholdSec's default.
const defaultStaleThreshold = 5 * time.Minute

// Runner executes one CLI delegation call to completion. The reference
// implementation (ProviderRunner) wraps a providers.CLIProvider per cliType;
// tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, cliType, command, workspacePath string) (*providers.CLIResult, error)
}

// ProviderRunner routes by cliType to a registered providers.CLIProvider.
type ProviderRunner struct {
	byType map[string]providers.CLIProvider
}

// NewProviderRunner builds a ProviderRunner over the given cliType->provider map.
func NewProviderRunner(byType map[string]providers.CLIProvider) *ProviderRunner {
	return &ProviderRunner{byType: byType}
}

// Run dispatches to the provider registered for cliType.
func (p *ProviderRunner) Run(ctx context.Context, cliType, command, workspacePath string) (*providers.CLIResult, error) {
	prov, ok := p.byType[cliType]
	if !ok {
		return nil, fmt.Errorf("no CLI provider registered for type %q", cliType)
	}
	return prov.Execute(ctx, command, providers.CLIOptions{WorkspacePath: workspacePath})
}

// Options parameterizes one StartExecution call.
type Options struct {
	UserID           string
	AgenticID        string
	ConversationID   string
	DeliveryTarget   routing.DeliveryTarget
	TimeoutMs        int64
	StaleThresholdMs int64 // 0 means defaultStaleThreshold
}

// job is the manager's internal bookkeeping for one AsyncCLIJob, holding the
// cancel func alongside the public record.
type job struct {
	record routing.AsyncCLIJob
	cancel context.CancelFunc
}

// Manager is the single process-wide async CLI job table.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*job

	runner  Runner
	sink    delivery.Sink
	log     *logging.Logger
	exclude map[string]bool

	wg sync.WaitGroup
}

// New builds a Manager. excludeDirs names directory basenames skipped during
// workspace snapshotting (e.g. "node_modules", ".git").
func New(runner Runner, sink delivery.Sink, b *bus.Bus, log *logging.Logger, excludeDirs []string) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	excl := make(map[string]bool, len(excludeDirs))
	for _, d := range excludeDirs {
		excl[d] = true
	}
	return &Manager{
		jobs:    make(map[string]*job),
		runner:  runner,
		sink:    sink,
		log:     log.WithComponent("asynccli"),
		exclude: excl,
	}
}

// StartExecution records a workspace snapshot, dispatches the CLI process on
// its own goroutine, and returns a trackingId immediately. The caller never
// blocks on completion.
func (m *Manager) StartExecution(ctx context.Context, cliType, command, workspacePath string, opts Options) (string, error) {
	snapshot, err := snapshotWorkspace(workspacePath, m.exclude)
	if err != nil {
		return "", fmt.Errorf("snapshot workspace: %w", err)
	}

	stale := time.Duration(opts.StaleThresholdMs) * time.Millisecond
	if stale <= 0 {
		stale = defaultStaleThreshold
	}

	trackingID := uuid.NewString()
	runCtx, cancel := context.WithTimeout(context.Background(), stale)

	j := &job{
		record: routing.AsyncCLIJob{
			TrackingID:        trackingID,
			CLIType:           cliType,
			Command:           command,
			WorkspacePath:     workspacePath,
			UserID:            opts.UserID,
			AgenticID:         opts.AgenticID,
			ConversationID:    opts.ConversationID,
			DeliveryTarget:    opts.DeliveryTarget,
			WorkspaceSnapshot: snapshot,
			TimeoutMs:         opts.TimeoutMs,
			StaleThresholdMs:  int64(stale / time.Millisecond),
			StartedAt:         time.Now(),
			Status:            routing.JobRunning,
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.jobs[trackingID] = j
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx, trackingID, cliType, command, workspacePath)

	m.log.WithField("trackingId", trackingID).WithField("cliType", cliType).Debug("async CLI job started")
	return trackingID, nil
}

// Cancel transitions a running job to cancelled. No partial result is
// delivered. A job that has already reached a terminal state is untouched.
func (m *Manager) Cancel(trackingID string) error {
	m.mu.Lock()
	j, ok := m.jobs[trackingID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown tracking id %q", trackingID)
	}
	if j.record.Status != routing.JobRunning {
		m.mu.Unlock()
		return fmt.Errorf("job %q already in terminal state %q", trackingID, j.record.Status)
	}
	j.record.Status = routing.JobCancelled
	m.mu.Unlock()

	j.cancel()
	return nil
}

// StatusOf returns a copy of a job's current record.
func (m *Manager) StatusOf(trackingID string) (routing.AsyncCLIJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[trackingID]
	if !ok {
		return routing.AsyncCLIJob{}, false
	}
	return j.record, true
}

// Close waits for every in-flight job's goroutine to exit. It does not
// cancel running jobs; call Cancel first if a forced stop is wanted.
func (m *Manager) Close() {
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context, trackingID, cliType, command, workspacePath string) {
	defer m.wg.Done()

	result, runErr := m.runner.Run(ctx, cliType, command, workspacePath)

	m.mu.Lock()
	j := m.jobs[trackingID]
	cancelled := j.record.Status == routing.JobCancelled
	m.mu.Unlock()

	if cancelled {
		// No partial results are delivered for a cancelled job.
		return
	}

	if runErr != nil {
		status := routing.JobFailed
		if ctx.Err() == context.DeadlineExceeded {
			status = routing.JobTimedOut
		}
		m.finish(trackingID, status)
		m.notifyFailure(j.record, runErr)
		return
	}

	m.finish(trackingID, routing.JobCompleted)
	m.deliverResult(j.record, result)
}

func (m *Manager) finish(trackingID string, status routing.AsyncJobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[trackingID]; ok {
		j.record.Status = status
	}
}

// notifyFailure sends a single delivery notification carrying the error
// message. A failed or force-terminated job is never silent.
func (m *Manager) notifyFailure(record routing.AsyncCLIJob, cause error) {
	req := delivery.Request{
		AccountID: record.DeliveryTarget.AccountID,
		Recipient: record.DeliveryTarget.ExternalID,
		Platform:  record.DeliveryTarget.Platform,
		Content:   fmt.Sprintf("background task failed: %s", cause.Error()),
		Source:    "async_cli",
	}
	if _, err := m.sink.Enqueue(context.Background(), req); err != nil {
		m.log.WithField("trackingId", record.TrackingID).WithError(err).Warn("failed to enqueue failure notification")
	}
}

// deliverResult computes created files against the pre-run snapshot, applies
// the script-vs-document filter, and enqueues one delivery per retained
// file (each carrying the trailing response text), or a single text-only
// delivery of that response when no file is retained.
func (m *Manager) deliverResult(record routing.AsyncCLIJob, result *providers.CLIResult) {
	created := diffCreatedFiles(record.WorkspacePath, record.WorkspaceSnapshot, result.OutputFiles, m.exclude)
	retained := applyScriptFilter(created)

	for _, path := range retained {
		req := delivery.Request{
			AccountID: record.DeliveryTarget.AccountID,
			Recipient: record.DeliveryTarget.ExternalID,
			Platform:  record.DeliveryTarget.Platform,
			Content:   trailingText(result.Content),
			Options:   delivery.Options{Media: path, Caption: captionFor(path)},
			Source:    "async_cli",
		}
		if _, err := m.sink.Enqueue(context.Background(), req); err != nil {
			m.log.WithField("trackingId", record.TrackingID).WithField("file", path).WithError(err).Warn("failed to enqueue file delivery")
		}
	}

	if len(retained) == 0 {
		req := delivery.Request{
			AccountID: record.DeliveryTarget.AccountID,
			Recipient: record.DeliveryTarget.ExternalID,
			Platform:  record.DeliveryTarget.Platform,
			Content:   trailingText(result.Content),
			Source:    "async_cli",
		}
		if _, err := m.sink.Enqueue(context.Background(), req); err != nil {
			m.log.WithField("trackingId", record.TrackingID).WithError(err).Warn("failed to enqueue text delivery")
		}
	}
}

func captionFor(path string) string {
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

// trailingText extracts the tail of a CLI process's stdout as its
// natural-language response, capped so a verbose tool transcript doesn't
// become the entire delivered message.
const maxTrailingChars = 4000

func trailingText(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= maxTrailingChars {
		return content
	}
	return content[len(content)-maxTrailingChars:]
}

// sortedKeys is a small helper kept for deterministic test output.
func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
