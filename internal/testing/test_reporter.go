package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-runewidth"

	"valheimcli/internal/color"
)

// maxOutputWidth bounds each echoed output line in verbose mode.
const maxOutputWidth = 120

// testReporter implements the TestReporter interface
type testReporter struct {
	out        io.Writer
	verbose    bool
	reportPath string
	runID      string
}

// NewTestReporter creates a console reporter. When reportPath is set a JSON
// report is also written into that directory at the end of every run.
func NewTestReporter(out io.Writer, verbose bool, reportPath string) TestReporter {
	return &testReporter{
		out:        out,
		verbose:    verbose,
		reportPath: reportPath,
	}
}

// ReportStart is called when a plan run begins
func (r *testReporter) ReportStart(plan *TestPlan, runID string) {
	r.runID = runID
	fmt.Fprintf(r.out, "🧪 %s\n", color.TitleStyle.Render("Running test plan "+plan.Name))

	if r.verbose {
		if plan.Description != "" {
			fmt.Fprintf(r.out, "   📝 %s\n", plan.Description)
		}
		fmt.Fprintf(r.out, "   • Run ID: %s\n", runID)
		fmt.Fprintf(r.out, "   • Cases: %d\n", len(plan.Tests))
		if len(plan.Cleanup) > 0 {
			fmt.Fprintf(r.out, "   • Cleanup commands: %d\n", len(plan.Cleanup))
		}
		fmt.Fprintf(r.out, "   • Launch host: %t\n", plan.Game.Launch)
		fmt.Fprintf(r.out, "   • Stop on failure: %t\n", plan.Settings.StopOnFailure)
		fmt.Fprintln(r.out)
	}
}

// ReportCaseStart is called when a case begins
func (r *testReporter) ReportCaseStart(tc TestCase) {
	if r.verbose {
		fmt.Fprintf(r.out, "🎯 %s\n", tc.Name)
		if tc.Wait != nil && tc.Wait.State != "" {
			fmt.Fprintf(r.out, "   ⏳ Waiting for state %s\n", tc.Wait.State)
		}
		if n := len(tc.Commands); n > 0 {
			fmt.Fprintf(r.out, "   📋 Commands: %d x%d\n", n, tc.Iterations())
		}
	} else {
		fmt.Fprintf(r.out, "🎯 %s... ", tc.Name)
	}
}

// ReportCaseResult is called when a case completes
func (r *testReporter) ReportCaseResult(result TestCaseResult) {
	status := styleResult(result.Result)
	duration := result.Duration.Round(time.Millisecond)

	if !r.verbose {
		fmt.Fprintf(r.out, "%s %s (%v)\n", getResultSymbol(result.Result), status, duration)
		if result.Result == ResultFailed || result.Result == ResultError {
			fmt.Fprintf(r.out, "   %s\n", color.ErrorStyle.Render(result.Message))
		}
		return
	}

	fmt.Fprintf(r.out, "%s %s %s (%v)\n", getResultSymbol(result.Result), status, result.Name, duration)
	if result.Message != "" && result.Result != ResultPassed {
		fmt.Fprintf(r.out, "   %s\n", color.MutedStyle.Render(result.Message))
	}
	for _, line := range result.Output {
		fmt.Fprintln(r.out, color.OutputStyle.Render(runewidth.Truncate(line, maxOutputWidth, "...")))
	}
	fmt.Fprintln(r.out)
}

// ReportPlanResult is called when the run completes
func (r *testReporter) ReportPlanResult(result TestPlanResult) {
	fmt.Fprintf(r.out, "\n🏁 %s\n", color.TitleStyle.Render("Test plan "+result.PlanName+" complete"))
	fmt.Fprintf(r.out, "⏱️  Duration: %v\n", result.Duration.Round(time.Millisecond))
	if result.Error != "" {
		fmt.Fprintf(r.out, "💥 %s\n", color.ErrorStyle.Render(result.Error))
	}
	fmt.Fprintf(r.out, "📊 Results:\n")
	fmt.Fprintf(r.out, "   ✅ Passed: %d\n", result.PassedCases)
	if result.FailedCases > 0 {
		fmt.Fprintf(r.out, "   ❌ Failed: %d\n", result.FailedCases)
	}
	if result.ErrorCases > 0 {
		fmt.Fprintf(r.out, "   💥 Errors: %d\n", result.ErrorCases)
	}
	if result.SkippedCases > 0 {
		fmt.Fprintf(r.out, "   ⏭️  Skipped: %d\n", result.SkippedCases)
	}
	if result.NotRun > 0 {
		fmt.Fprintf(r.out, "   ⏸️  Not run: %d\n", result.NotRun)
	}
	fmt.Fprintf(r.out, "   📈 Total: %d\n", result.TotalCases)
	for _, cleanupErr := range result.CleanupErrors {
		fmt.Fprintf(r.out, "   🧹 %s\n", color.SkippedStyle.Render("cleanup: "+cleanupErr))
	}

	switch {
	case result.Cancelled:
		fmt.Fprintf(r.out, "\n%s\n", color.SkippedStyle.Render("Run cancelled"))
	case result.Succeeded():
		fmt.Fprintf(r.out, "\n🎉 %s\n", color.PassedStyle.Render("All tests passed!"))
	default:
		fmt.Fprintf(r.out, "\n💔 %s\n", color.FailedStyle.Render("Some tests failed"))
	}

	if r.reportPath != "" {
		path, err := saveDetailedReport(r.reportPath, result)
		if err != nil {
			fmt.Fprintf(r.out, "⚠️  Failed to save detailed report: %v\n", err)
		} else {
			fmt.Fprintf(r.out, "📄 Detailed report saved to: %s\n", path)
		}
	}
}

// saveDetailedReport writes result as indented JSON into dir and returns the
// file path.
func saveDetailedReport(dir string, result TestPlanResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	runID := result.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	timestamp := result.StartTime.Format("20060102-150405")
	fullPath := filepath.Join(dir, fmt.Sprintf("valheimcli-report-%s-%s.json", timestamp, runID))

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if err := os.WriteFile(fullPath, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return fullPath, nil
}

// getResultSymbol returns an appropriate symbol for the test result
func getResultSymbol(result TestResult) string {
	switch result {
	case ResultPassed:
		return "✅"
	case ResultFailed:
		return "❌"
	case ResultSkipped:
		return "⏭️"
	case ResultError:
		return "💥"
	default:
		return "❓"
	}
}

func styleResult(result TestResult) string {
	switch result {
	case ResultPassed:
		return color.PassedStyle.Render(string(result))
	case ResultFailed:
		return color.FailedStyle.Render(string(result))
	case ResultError:
		return color.ErrorStyle.Render(string(result))
	default:
		return color.SkippedStyle.Render(string(result))
	}
}

// NewQuietReporter creates a reporter that only outputs failures and the
// final summary
func NewQuietReporter(out io.Writer) TestReporter {
	return &quietReporter{out: out}
}

// quietReporter implements minimal output for CI/CD integration
type quietReporter struct {
	out io.Writer
}

func (r *quietReporter) ReportStart(plan *TestPlan, runID string) {}

func (r *quietReporter) ReportCaseStart(tc TestCase) {}

func (r *quietReporter) ReportCaseResult(result TestCaseResult) {
	if result.Result == ResultFailed || result.Result == ResultError {
		fmt.Fprintf(r.out, "%s %s: %s\n", getResultSymbol(result.Result), result.Name, result.Message)
	}
}

func (r *quietReporter) ReportPlanResult(result TestPlanResult) {
	if result.Succeeded() {
		fmt.Fprintf(r.out, "✅ %s: %s\n", result.PlanName, result.Summary())
	} else {
		fmt.Fprintf(r.out, "❌ %s: %s\n", result.PlanName, result.Summary())
	}
}

// NewJSONReporter creates a reporter that prints the plan result as JSON
func NewJSONReporter(out io.Writer) TestReporter {
	return &jsonReporter{out: out}
}

// jsonReporter implements JSON output for machine consumption
type jsonReporter struct {
	out io.Writer
}

func (r *jsonReporter) ReportStart(plan *TestPlan, runID string) {}

func (r *jsonReporter) ReportCaseStart(tc TestCase) {}

func (r *jsonReporter) ReportCaseResult(result TestCaseResult) {}

func (r *jsonReporter) ReportPlanResult(result TestPlanResult) {
	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, `{"error": "Failed to marshal results: %v"}`+"\n", err)
		return
	}
	fmt.Fprintln(r.out, string(jsonData))
}
