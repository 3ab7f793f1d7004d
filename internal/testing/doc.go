// Package testing runs YAML test plans against a host through its relay.
//
// A plan is an ordered list of test cases. Each case may wait for a game
// state, sends console commands (optionally repeated), and checks the
// combined output against an expectation:
//
//	name: teleport
//	game:
//	  launch: true
//	  executable: valheimcli
//	  args: [serve]
//	  stop_after_success: true
//	variables:
//	  x: "10"
//	tests:
//	  - name: in world
//	    wait: {state: InWorld, timeout: 30s}
//	  - name: goto
//	    commands: ["goto $x 0 ${x}"]
//	    expect: contains "Teleported"
//	cleanup: ["logout"]
//
// Expectations are `contains "text"`, `matches "regexp"` or plain text; all
// comparisons ignore case. Variables use ${name} or $name and unknown names
// are left untouched.
//
// The runner can launch the host itself (ProcessLauncher), waiting until the
// relay greets with its ready sentinel, and stops it again after a fully
// successful run when asked to. Results go to a TestReporter: console,
// quiet or JSON.
package testing
