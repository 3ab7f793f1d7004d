package testing_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	vtesting "valheimcli/internal/testing"
)

type mockRelayClient struct {
	mock.Mock
}

func (m *mockRelayClient) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockRelayClient) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockRelayClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockRelayClient) SendCommand(ctx context.Context, command string) ([]string, error) {
	args := m.Called(ctx, command)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockRelayClient) WaitForState(ctx context.Context, target string, timeout time.Duration) (bool, error) {
	args := m.Called(ctx, target, timeout)
	return args.Bool(0), args.Error(1)
}

func (m *mockRelayClient) SubscribeToStateChanges(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type mockHostLauncher struct {
	mock.Mock
}

func (m *mockHostLauncher) IsHostRunning() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockHostLauncher) TryConnect(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *mockHostLauncher) Launch(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockHostLauncher) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	args := m.Called(ctx, timeout)
	return args.Error(0)
}

func (m *mockHostLauncher) Stop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// recordingReporter keeps every callback for assertions.
type recordingReporter struct {
	mu      sync.Mutex
	runID   string
	started []string
	cases   []vtesting.TestCaseResult
	final   *vtesting.TestPlanResult
}

func (r *recordingReporter) ReportStart(plan *vtesting.TestPlan, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runID = runID
}

func (r *recordingReporter) ReportCaseStart(tc vtesting.TestCase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, tc.Name)
}

func (r *recordingReporter) ReportCaseResult(result vtesting.TestCaseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases = append(r.cases, result)
}

func (r *recordingReporter) ReportPlanResult(result vtesting.TestPlanResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final = &result
}
