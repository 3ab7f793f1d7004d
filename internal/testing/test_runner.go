package testing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"valheimcli/pkg/logging"
)

const subsystem = "TestRunner"

// testRunner implements the TestRunner interface
type testRunner struct {
	launcher  HostLauncher
	newClient ClientFactory
	reporter  TestReporter
	address   string
	now       func() time.Time
}

// NewTestRunner creates a new test runner. launcher may be nil when plans
// never ask for the host to be started.
func NewTestRunner(launcher HostLauncher, newClient ClientFactory, reporter TestReporter, address string) TestRunner {
	return &testRunner{
		launcher:  launcher,
		newClient: newClient,
		reporter:  reporter,
		address:   address,
		now:       time.Now,
	}
}

// Run executes every case of plan in order, then its cleanup commands.
// A run that cannot connect returns the partial result and the error; case
// failures are reported only through the result.
func (r *testRunner) Run(ctx context.Context, plan *TestPlan, options RunOptions) (*TestPlanResult, error) {
	result := &TestPlanResult{
		RunID:       uuid.NewString(),
		PlanName:    plan.Name,
		StartTime:   r.now(),
		TotalCases:  len(plan.Tests),
		CaseResults: make([]TestCaseResult, 0, len(plan.Tests)),
		Variables:   MergeVariables(plan.Variables, options.Variables),
	}

	if plan.Settings.LogLevel != "" {
		if level, err := logging.ParseLevel(plan.Settings.LogLevel); err == nil {
			logging.SetLevel(level)
		} else {
			logging.Warn(subsystem, "Ignoring log level %q: %v", plan.Settings.LogLevel, err)
		}
	}

	r.reporter.ReportStart(plan, result.RunID)

	launch := plan.Game.Launch
	if options.Launch != nil {
		launch = *options.Launch
	}
	stopAfterSuccess := plan.Game.StopAfterSuccess
	if options.StopAfterSuccess != nil {
		stopAfterSuccess = *options.StopAfterSuccess
	}
	startupTimeout := plan.Game.StartupTimeout
	if options.Timeout > 0 {
		startupTimeout = options.Timeout
	}
	if startupTimeout <= 0 {
		startupTimeout = DefaultStartupTimeout
	}

	client, owned, err := r.connect(ctx, options, launch, startupTimeout)
	if err != nil {
		logging.Error(subsystem, err, "Plan %s could not start", plan.Name)
		result.Error = err.Error()
		result.NotRun = len(plan.Tests)
		r.finish(result)
		return result, err
	}
	if owned {
		defer client.Close()
	}

	if err := client.SubscribeToStateChanges(ctx); err != nil {
		logging.Debug(subsystem, "State subscription failed, relying on polling: %v", err)
	}

	for i, tc := range plan.Tests {
		if ctx.Err() != nil {
			result.Cancelled = true
			result.NotRun = len(plan.Tests) - i
			break
		}

		caseResult := r.runCase(ctx, client, plan, tc, result.Variables)
		result.CaseResults = append(result.CaseResults, caseResult)
		r.updateCounters(result, caseResult)
		r.reporter.ReportCaseResult(caseResult)

		failed := caseResult.Result == ResultFailed || caseResult.Result == ResultError
		if failed && plan.Settings.StopOnFailure {
			result.NotRun = len(plan.Tests) - i - 1
			logging.Info(subsystem, "Stopping plan %s after failed case %s", plan.Name, tc.Name)
			break
		}
	}
	if ctx.Err() != nil {
		result.Cancelled = true
	}

	if !result.Cancelled {
		r.runCleanup(ctx, client, plan, result)
	}

	if stopAfterSuccess {
		switch {
		case result.FailedCases > 0 || result.ErrorCases > 0 || result.Cancelled:
			logging.Info(subsystem, "Leaving host running for inspection after failures")
		case r.launcher == nil:
			logging.Warn(subsystem, "Stop after success requested but no launcher is configured")
		default:
			client.Close()
			if err := r.launcher.Stop(ctx); err != nil {
				logging.Error(subsystem, err, "Failed to stop host")
			}
		}
	}

	r.finish(result)
	return result, nil
}

// connect returns a connected client and whether the runner owns it.
func (r *testRunner) connect(ctx context.Context, options RunOptions, launch bool, startupTimeout time.Duration) (RelayClient, bool, error) {
	if options.Client != nil && options.Client.IsConnected() {
		return options.Client, false, nil
	}

	if launch {
		if err := r.ensureHost(ctx, startupTimeout); err != nil {
			return nil, false, err
		}
	}

	client, owned := options.Client, false
	if client == nil {
		address := options.Address
		if address == "" {
			address = r.address
		}
		if r.newClient == nil {
			return nil, false, errors.New("no relay client available")
		}
		client, owned = r.newClient(address), true
	}

	if err := client.Connect(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return client, owned, nil
}

// ensureHost launches the host unless its relay already answers.
func (r *testRunner) ensureHost(ctx context.Context, timeout time.Duration) error {
	if r.launcher == nil {
		return &LaunchError{Err: errors.New("no launcher configured")}
	}
	if r.launcher.TryConnect(ctx) {
		logging.Debug(subsystem, "Host already running, skipping launch")
		return nil
	}

	logging.Info(subsystem, "Launching host (startup timeout %v)", timeout)
	if err := r.launcher.Launch(ctx); err != nil {
		return &LaunchError{Err: err}
	}
	if err := r.launcher.WaitUntilReady(ctx, timeout); err != nil {
		return &LaunchError{Err: err}
	}
	return nil
}

// runCase executes a single test case
func (r *testRunner) runCase(ctx context.Context, client RelayClient, plan *TestPlan, tc TestCase, vars map[string]string) (result TestCaseResult) {
	result = TestCaseResult{
		Name:      tc.Name,
		StartTime: r.now(),
		Result:    ResultPassed,
	}
	defer func() {
		result.EndTime = r.now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	r.reporter.ReportCaseStart(tc)

	if tc.Skip {
		result.Result = ResultSkipped
		result.Message = "skipped"
		return result
	}

	if tc.Wait != nil {
		if res, msg := r.wait(ctx, client, plan, tc.Wait, vars); res != ResultPassed {
			result.Result, result.Message = res, msg
			return result
		}
	}

	for i := 0; i < tc.Iterations(); i++ {
		for _, raw := range tc.Commands {
			command := ExpandVariables(raw, vars)
			lines, err := client.SendCommand(ctx, command)
			if err != nil {
				result.Result = ResultError
				result.Message = fmt.Sprintf("command %q failed: %v", command, err)
				return result
			}
			result.Output = append(result.Output, lines...)
		}
		result.Iterations++

		if err := sleepContext(ctx, tc.WaitAfter); err != nil {
			result.Result = ResultError
			result.Message = fmt.Sprintf("interrupted: %v", err)
			return result
		}
	}

	if tc.Expect != nil {
		rule := ExpandVariables(tc.Expect.Output, vars)
		if !ParseExpectation(rule).Matches(result.OutputText()) {
			result.Result = ResultFailed
			result.UnmetExpectation = rule
			result.Message = fmt.Sprintf("output did not satisfy expectation: %s", rule)
		}
	}

	return result
}

func (r *testRunner) wait(ctx context.Context, client RelayClient, plan *TestPlan, cond *WaitCondition, vars map[string]string) (TestResult, string) {
	timeout := cond.Timeout
	if timeout <= 0 {
		timeout = plan.Settings.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	if cond.State == "" {
		if cond.Event != "" {
			logging.Debug(subsystem, "Waiting %v for event %s", timeout, cond.Event)
			if err := sleepContext(ctx, timeout); err != nil {
				return ResultError, fmt.Sprintf("interrupted: %v", err)
			}
		}
		return ResultPassed, ""
	}

	target := ExpandVariables(cond.State, vars)
	reached, err := client.WaitForState(ctx, target, timeout)
	if err != nil {
		return ResultError, fmt.Sprintf("waiting for state %s: %v", target, err)
	}
	if !reached {
		msg := fmt.Sprintf("state %s not reached within %v", target, timeout)
		if cond.Message != "" {
			msg += ": " + ExpandVariables(cond.Message, vars)
		}
		return ResultFailed, msg
	}
	return ResultPassed, ""
}

func (r *testRunner) runCleanup(ctx context.Context, client RelayClient, plan *TestPlan, result *TestPlanResult) {
	for _, raw := range plan.Cleanup {
		command := ExpandVariables(raw, result.Variables)
		if _, err := client.SendCommand(ctx, command); err != nil {
			logging.Warn(subsystem, "Cleanup command %q failed: %v", command, err)
			result.CleanupErrors = append(result.CleanupErrors, fmt.Sprintf("%s: %v", command, err))
		}
	}
}

// updateCounters updates the plan result counters
func (r *testRunner) updateCounters(result *TestPlanResult, caseResult TestCaseResult) {
	switch caseResult.Result {
	case ResultPassed:
		result.PassedCases++
	case ResultFailed:
		result.FailedCases++
	case ResultSkipped:
		result.SkippedCases++
	case ResultError:
		result.ErrorCases++
	}
}

func (r *testRunner) finish(result *TestPlanResult) {
	result.EndTime = r.now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	r.reporter.ReportPlanResult(*result)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
