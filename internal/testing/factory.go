package testing

import (
	"io"
)

// FrameworkOptions configures NewTestFramework.
type FrameworkOptions struct {
	// Address is the relay address plans run against
	Address string
	Game    GameSettings
	// Output receives reporter output
	Output     io.Writer
	Verbose    bool
	Quiet      bool
	JSON       bool
	ReportPath string
	// NewClient creates relay clients for the runner
	NewClient ClientFactory
}

// TestFramework holds all components needed for testing
type TestFramework struct {
	Runner   TestRunner
	Loader   TestPlanLoader
	Reporter TestReporter
	Launcher *ProcessLauncher
}

// NewTestFramework wires a runner, loader, reporter and launcher together.
func NewTestFramework(opts FrameworkOptions) *TestFramework {
	var reporter TestReporter
	switch {
	case opts.JSON:
		reporter = NewJSONReporter(opts.Output)
	case opts.Quiet:
		reporter = NewQuietReporter(opts.Output)
	default:
		reporter = NewTestReporter(opts.Output, opts.Verbose, opts.ReportPath)
	}

	launcher := NewProcessLauncher(LauncherConfig{
		Executable: opts.Game.Executable,
		Args:       opts.Game.Args,
		WorkDir:    opts.Game.WorkDir,
		Address:    opts.Address,
	})

	return &TestFramework{
		Runner:   NewTestRunner(launcher, opts.NewClient, reporter, opts.Address),
		Loader:   NewTestPlanLoader(),
		Reporter: reporter,
		Launcher: launcher,
	}
}

// ResolveGameSettings fills the fields a plan leaves empty from defaults.
func ResolveGameSettings(plan GameSettings, defaults GameSettings) GameSettings {
	game := plan
	if game.Executable == "" {
		game.Executable = defaults.Executable
		if len(game.Args) == 0 {
			game.Args = defaults.Args
		}
	}
	if game.WorkDir == "" {
		game.WorkDir = defaults.WorkDir
	}
	if game.StartupTimeout <= 0 {
		game.StartupTimeout = defaults.StartupTimeout
	}
	return game
}
