package main

import (
	"fmt"
	"os"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		runServe(nil)
		return
	}

	switch args[0] {
	case "serve":
		runServe(args[1:])
	case "install":
		runInstall(args[1:])
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Print(`arbor runs behavior trees and exposes them to MCP clients.

Usage:

  arbor serve [flags] [definition ...]   start the engine (default command)
  arbor install [flags]                  write settings and (re)start a server
  arbor version                          print the version

Serve flags:

  -sse    serve MCP over SSE on the listen address instead of stdio

Definitions are XML or JSON behavior tree files loaded at startup.
`)
}
