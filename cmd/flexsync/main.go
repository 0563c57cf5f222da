// flexsync runs particle scenes headless against the in-memory solver.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "run":
		cmdRun(args)
	case "watch":
		cmdWatch(args)
	case "params":
		cmdParams(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`flexsync - incremental particle scene sync

Usage:
  flexsync <command> [options]

Commands:
  info    Compose the scene once and print its layout
  run     Reset, then run go cycles and print timings
  watch   Like run, but re-read the scene and params files when they change
  params  Print the effective solver parameters (-o saves them)
  config  Print the effective config (-o or -save writes it)

Common options:
  -config <file>   Config file (default ./flexsync.yaml, then the user config dir)
  -scene <file>    Scene document (.yaml or .toml)
  -params <file>   Solver parameters (.yaml, .toml or .ini)
  -mode <mode>     update, append or lock
  -cycles <n>      Go cycles to run, 0 runs until interrupted
  -lock            Freeze inputs after the first reset
  -debug           Debug logging

Examples:
  flexsync info -scene drop.yaml
  flexsync run -scene drop.yaml -cycles 600
  flexsync watch -scene drop.toml -params water.ini -mode append
  flexsync params -params water.ini -o water.yaml
  flexsync config -mode append -save`)
}
