package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	vtesting "valheimcli/internal/testing"
)

var (
	testLaunch           bool
	testStopAfterSuccess bool
	testVars             []string
	testVerbose          bool
	testQuiet            bool
	testJSON             bool
	testReportPath       string
	testStartupTimeout   time.Duration
	testTimeout          time.Duration
)

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test <plan.yaml|dir>...",
	Short: "Run YAML test plans against the game",
	Long: `Runs test plans against the game through the relay. A plan is a YAML
file with an ordered list of test cases; each case can wait for a game
state, send console commands (optionally repeated) and check their output:

  name: smoke
  variables:
    mob: Boar
  tests:
    - name: world loaded
      wait: {state: InWorld, timeout: 2m}
    - name: spawn
      commands: ["spawn ${mob} 3"]
      expect: contains "Spawned"
  cleanup: ["killall"]

Directories are searched for .yaml and .yml files. Plans run one after the
other and the command exits non-zero when any case fails.

With --launch the game is started first unless the relay already answers,
using the plan's game section or the game section of the config file.

Example usage:
  valheimcli test plans/                     # Run every plan in a directory
  valheimcli test smoke.yaml --var mob=Troll # Override a plan variable
  valheimcli test smoke.yaml --launch --stop-after-success
  valheimcli test plans/ --json > results.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)

	// Host lifecycle
	testCmd.Flags().BoolVar(&testLaunch, "launch", false, "Launch the game if the relay is not answering (overrides the plan)")
	testCmd.Flags().BoolVar(&testStopAfterSuccess, "stop-after-success", false, "Stop the game when every case passed (overrides the plan)")
	testCmd.Flags().DurationVar(&testStartupTimeout, "startup-timeout", 0, "How long to wait for a launched game (default from plan or config)")

	// Plan input
	testCmd.Flags().StringArrayVar(&testVars, "var", nil, "Set a plan variable, name=value (repeatable)")
	testCmd.Flags().DurationVar(&testTimeout, "timeout", 30*time.Minute, "Overall test execution timeout")

	// Output and reporting
	testCmd.Flags().BoolVar(&testVerbose, "verbose", false, "Print every case's output")
	testCmd.Flags().BoolVar(&testQuiet, "quiet-results", false, "Only print failures and a one-line summary per plan")
	testCmd.Flags().BoolVar(&testJSON, "json", false, "Print plan results as JSON")
	testCmd.Flags().StringVar(&testReportPath, "report-path", "", "Directory to save a detailed JSON report per plan")

	testCmd.MarkFlagsMutuallyExclusive("verbose", "quiet-results", "json")

	testCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if testTimeout <= 0 {
			return fmt.Errorf("--timeout must be positive, got %v", testTimeout)
		}
		if testStartupTimeout < 0 {
			return fmt.Errorf("--startup-timeout must not be negative, got %v", testStartupTimeout)
		}
		_, err := parseVariables(testVars)
		return err
	}
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, testTimeout)
	defer timeoutCancel()

	vars, err := parseVariables(testVars)
	if err != nil {
		return err
	}

	plans, err := loadPlans(vtesting.NewTestPlanLoader(), args)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "⚠️  No test plans found in %s\n", strings.Join(args, ", "))
		return nil
	}

	options := vtesting.RunOptions{
		Variables: vars,
		Timeout:   testStartupTimeout,
		Address:   rootAddress,
	}
	if cmd.Flags().Changed("launch") {
		options.Launch = &testLaunch
	}
	if cmd.Flags().Changed("stop-after-success") {
		options.StopAfterSuccess = &testStopAfterSuccess
	}

	output := planOutput{
		out:        cmd.OutOrStdout(),
		verbose:    testVerbose,
		quiet:      testQuiet || rootQuiet,
		json:       testJSON || rootOutput == "json",
		reportPath: testReportPath,
	}

	failed := 0
	for _, plan := range plans {
		result, err := runPlan(ctx, plan, options, output)
		if err != nil || !result.Succeeded() {
			failed++
		}
		if ctx.Err() != nil {
			break
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d test plans failed", failed, len(plans))
	}
	return nil
}

// planOutput selects the reporter used for a run.
type planOutput struct {
	out        io.Writer
	verbose    bool
	quiet      bool
	json       bool
	reportPath string
}

// runPlan runs one plan with a framework built for its game settings.
func runPlan(ctx context.Context, plan *vtesting.TestPlan, options vtesting.RunOptions, output planOutput) (*vtesting.TestPlanResult, error) {
	plan.Game = vtesting.ResolveGameSettings(plan.Game, configuredGame())

	framework := vtesting.NewTestFramework(vtesting.FrameworkOptions{
		Address:    rootAddress,
		Game:       plan.Game,
		Output:     output.out,
		Verbose:    output.verbose,
		Quiet:      output.quiet,
		JSON:       output.json,
		ReportPath: output.reportPath,
		NewClient: func(address string) vtesting.RelayClient {
			return newRelayClient(address)
		},
	})
	return framework.Runner.Run(ctx, plan, options)
}

// configuredGame returns the config file's game section as plan defaults.
func configuredGame() vtesting.GameSettings {
	return vtesting.GameSettings{
		Executable:     appConfig.Game.Executable,
		Args:           appConfig.Game.Args,
		WorkDir:        appConfig.Game.WorkDir,
		StartupTimeout: appConfig.Game.StartupTimeout,
	}
}

// loadPlans loads plan files and every plan in plan directories, in the
// order given.
func loadPlans(loader vtesting.TestPlanLoader, paths []string) ([]*vtesting.TestPlan, error) {
	var plans []*vtesting.TestPlan
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to access %s: %w", path, err)
		}

		if info.IsDir() {
			dirPlans, err := loader.LoadPlans(path)
			if err != nil {
				return nil, err
			}
			plans = append(plans, dirPlans...)
			continue
		}

		plan, err := loader.LoadPlan(path)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// parseVariables turns name=value pairs into a map.
func parseVariables(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable %q, expected name=value", pair)
		}
		vars[name] = value
	}
	return vars, nil
}
