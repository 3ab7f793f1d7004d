// Package config provides configuration management for valheimcli.
//
// Configuration is loaded and merged in the following order, later layers
// overriding earlier ones field by field:
//
//  1. Defaults compiled into the binary
//  2. User configuration (~/.config/valheimcli/config.yaml)
//  3. Project configuration (./.valheimcli/config.yaml)
//
// Command-line flags override all of them. An explicit --config file replaces
// layers 2 and 3.
//
//	relay:
//	  host: 127.0.0.1
//	  port: 5555
//	  outputWait: 5s
//	  hostConfig: ./host.yaml
//	client:
//	  timeout: 30s
//	  statePollInterval: 2s
//	game:
//	  executable: ./valheim_server
//	  args: ["-batchmode"]
//	  startupTimeout: 2m
//	logging:
//	  level: debug
package config
