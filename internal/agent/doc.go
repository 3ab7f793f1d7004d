// Package agent provides the interactive surfaces on top of the relay client.
//
// Console is a readline REPL: slash commands (/state, /commands, /wait,
// /ping, /help) are handled locally and any other line is sent to the game
// console. Host command names are cached for tab completion.
//
// MCPServer exposes the same operations, plus test plan runs, as MCP tools
// over stdio so an AI assistant can drive the game:
//
//	client := cli.NewClient("127.0.0.1:5555")
//	srv := agent.NewMCPServer(client, runPlan, version)
//	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
package agent
