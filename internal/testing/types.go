package testing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TestResult represents the result of test execution
type TestResult string

const (
	// ResultPassed indicates the test passed successfully
	ResultPassed TestResult = "PASSED"
	// ResultFailed indicates the test failed
	ResultFailed TestResult = "FAILED"
	// ResultSkipped indicates the test was skipped
	ResultSkipped TestResult = "SKIPPED"
	// ResultError indicates an error occurred during test execution
	ResultError TestResult = "ERROR"
)

const (
	DefaultWaitTimeout    = 30 * time.Second
	DefaultStartupTimeout = 120 * time.Second
)

// TestPlan is a named, ordered list of test cases run against one host.
type TestPlan struct {
	// Name is the unique identifier for the plan
	Name string `yaml:"name" json:"name"`
	// Description provides human-readable plan description
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Game controls launching and stopping the host application
	Game GameSettings `yaml:"game,omitempty" json:"game"`
	// Settings are plan-wide defaults
	Settings PlanSettings `yaml:"settings,omitempty" json:"settings"`
	// Variables are default values for ${name} substitution
	Variables map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`
	// Tests are executed in order
	Tests []TestCase `yaml:"tests" json:"tests"`
	// Cleanup commands always run after the tests
	Cleanup []string `yaml:"cleanup,omitempty" json:"cleanup,omitempty"`

	// SourcePath is the file the plan was loaded from
	SourcePath string `yaml:"-" json:"source_path,omitempty"`
}

// GameSettings controls the host process around a run.
type GameSettings struct {
	Launch           bool          `yaml:"launch,omitempty" json:"launch"`
	Executable       string        `yaml:"executable,omitempty" json:"executable,omitempty"`
	Args             []string      `yaml:"args,omitempty" json:"args,omitempty"`
	WorkDir          string        `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	StartupTimeout   time.Duration `yaml:"startup_timeout,omitempty" json:"startup_timeout,omitempty"`
	StopAfterSuccess bool          `yaml:"stop_after_success,omitempty" json:"stop_after_success"`
}

// PlanSettings are defaults shared by every test case.
type PlanSettings struct {
	// Timeout is the default wait condition timeout
	Timeout       time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	StopOnFailure bool          `yaml:"stop_on_failure,omitempty" json:"stop_on_failure"`
	LogLevel      string        `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

// TestCase is one step of a plan: wait, run commands, check output.
type TestCase struct {
	Name     string           `yaml:"name" json:"name"`
	Wait     *WaitCondition   `yaml:"wait,omitempty" json:"wait,omitempty"`
	Commands []string         `yaml:"commands,omitempty" json:"commands,omitempty"`
	Expect   *ExpectCondition `yaml:"expect,omitempty" json:"expect,omitempty"`
	// WaitAfter pauses after every iteration
	WaitAfter time.Duration `yaml:"wait_after,omitempty" json:"wait_after,omitempty"`
	// Repeat runs the command list this many times; values below 1 mean 1
	Repeat int  `yaml:"repeat,omitempty" json:"repeat,omitempty"`
	Skip   bool `yaml:"skip,omitempty" json:"skip,omitempty"`
}

// Iterations returns the effective repeat count.
func (tc TestCase) Iterations() int {
	if tc.Repeat < 1 {
		return 1
	}
	return tc.Repeat
}

// WaitCondition blocks a test case until the host reaches a state, or for a
// fixed time when only an event name is given.
type WaitCondition struct {
	State   string        `yaml:"state,omitempty" json:"state,omitempty"`
	Event   string        `yaml:"event,omitempty" json:"event,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Message string        `yaml:"message,omitempty" json:"message,omitempty"`
}

// ExpectCondition is an output rule: `contains "text"`, `matches "regexp"`,
// or plain text that must appear in the output. In YAML it may be a scalar
// rule or a mapping with one of the keys contains, matches or output.
type ExpectCondition struct {
	Output string `json:"output"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *ExpectCondition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Output = node.Value
		return nil
	}

	var m struct {
		Contains string `yaml:"contains"`
		Matches  string `yaml:"matches"`
		Output   string `yaml:"output"`
	}
	if err := node.Decode(&m); err != nil {
		return fmt.Errorf("expect must be a string or a mapping: %w", err)
	}

	switch {
	case m.Contains != "":
		e.Output = fmt.Sprintf("contains %q", m.Contains)
	case m.Matches != "":
		e.Output = "matches \"" + m.Matches + "\""
	default:
		e.Output = m.Output
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (e ExpectCondition) MarshalYAML() (interface{}, error) {
	return e.Output, nil
}

// TestCaseResult represents the result of a single test case
type TestCaseResult struct {
	Name      string        `json:"name"`
	Result    TestResult    `json:"result"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	// Output is every line the case's commands produced, in order
	Output []string `json:"output,omitempty"`
	// Message explains a non-passing result
	Message string `json:"message,omitempty"`
	// UnmetExpectation is the rule that did not match
	UnmetExpectation string `json:"unmet_expectation,omitempty"`
	Iterations       int    `json:"iterations"`
}

// OutputText returns the output joined by newlines.
func (r TestCaseResult) OutputText() string {
	return strings.Join(r.Output, "\n")
}

// TestPlanResult represents the overall result of a plan run
type TestPlanResult struct {
	RunID       string           `json:"run_id"`
	PlanName    string           `json:"plan_name"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Duration    time.Duration    `json:"duration"`
	TotalCases  int              `json:"total_cases"`
	PassedCases int              `json:"passed_cases"`
	FailedCases int              `json:"failed_cases"`
	SkippedCases int             `json:"skipped_cases"`
	ErrorCases  int              `json:"error_cases"`
	// NotRun counts cases never reached because of stop-on-failure or
	// cancellation
	NotRun        int              `json:"not_run"`
	CaseResults   []TestCaseResult `json:"case_results"`
	CleanupErrors []string         `json:"cleanup_errors,omitempty"`
	Cancelled     bool             `json:"cancelled,omitempty"`
	// Error is set when the run could not start
	Error     string            `json:"error,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Succeeded reports whether no case failed or errored and the run started.
func (r TestPlanResult) Succeeded() bool {
	return r.Error == "" && r.FailedCases == 0 && r.ErrorCases == 0 && !r.Cancelled
}

// Summary renders the counts as one line.
func (r TestPlanResult) Summary() string {
	parts := []string{
		fmt.Sprintf("%d passed", r.PassedCases),
		fmt.Sprintf("%d failed", r.FailedCases),
	}
	if r.ErrorCases > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", r.ErrorCases))
	}
	if r.SkippedCases > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", r.SkippedCases))
	}
	if r.NotRun > 0 {
		parts = append(parts, fmt.Sprintf("%d not run", r.NotRun))
	}
	return strings.Join(parts, ", ")
}

// RunOptions are caller overrides for a plan run. Nil pointers and zero
// values fall back to the plan.
type RunOptions struct {
	Variables        map[string]string
	Launch           *bool
	StopAfterSuccess *bool
	// Timeout overrides the host startup timeout
	Timeout time.Duration
	// Client is an already connected relay client to use
	Client RelayClient
	// Address is dialled when no connected Client is given
	Address string
}

// TestRunner interface defines the test execution engine
type TestRunner interface {
	Run(ctx context.Context, plan *TestPlan, options RunOptions) (*TestPlanResult, error)
}

// RelayClient is the subset of the relay client used by the runner.
type RelayClient interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Close() error
	SendCommand(ctx context.Context, command string) ([]string, error)
	WaitForState(ctx context.Context, target string, timeout time.Duration) (bool, error)
	SubscribeToStateChanges(ctx context.Context) error
}

// ClientFactory creates a relay client for an address.
type ClientFactory func(address string) RelayClient

// HostLauncher starts and stops the host application.
type HostLauncher interface {
	// IsHostRunning reports whether the host process is alive
	IsHostRunning() bool
	// TryConnect reports whether the relay answers with the ready sentinel
	TryConnect(ctx context.Context) bool
	// Launch starts the host process
	Launch(ctx context.Context) error
	// WaitUntilReady blocks until TryConnect succeeds or timeout elapses
	WaitUntilReady(ctx context.Context, timeout time.Duration) error
	// Stop terminates the host process
	Stop(ctx context.Context) error
}

// TestPlanLoader loads plans from disk.
type TestPlanLoader interface {
	LoadPlan(path string) (*TestPlan, error)
	LoadPlans(dir string) ([]*TestPlan, error)
}

// TestReporter interface defines how test results are reported
type TestReporter interface {
	// ReportStart is called when a plan run begins
	ReportStart(plan *TestPlan, runID string)
	// ReportCaseStart is called when a case begins
	ReportCaseStart(tc TestCase)
	// ReportCaseResult is called when a case completes
	ReportCaseResult(result TestCaseResult)
	// ReportPlanResult is called when the run completes
	ReportPlanResult(result TestPlanResult)
}

// LaunchError reports that the host could not be started or never became
// ready.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch host: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
