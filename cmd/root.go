// Package cmd contains the aerodoc command-line entry points.
//
// Following the pattern of kubectl and hugo, all application logic lives
// here; main.go is a minimal wrapper around Execute.
package cmd

import (
	"fmt"
	"os"
)

// Execute is the entry point for the aerodoc CLI. It routes to the
// requested subcommand, handling version and help before any
// initialization so they work even with an invalid config.
func Execute() error {
	if len(os.Args) < 2 {
		printHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "ingest":
		return runIngest()
	case "version", "--version", "-v":
		printVersionInfo()
		return nil
	case "help", "--help", "-h":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

func printHelp() {
	fmt.Println("aerodoc - question answering over aircraft manuals")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  aerodoc serve [--addr host:port]      Start the HTTP API server")
	fmt.Println("  aerodoc ingest --doc <id> <file>...   Index manual pages into the vector store")
	fmt.Println("  aerodoc version                       Show version information")
	fmt.Println("  aerodoc help                          Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required: Gemini API key")
	fmt.Println("  DATABASE_URL       Optional: PostgreSQL connection URL")
	fmt.Println("  AERODOC_BACKEND    Optional: storage backend (postgres or memory)")
}
