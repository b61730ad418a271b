// Command rk is the recordkit CLI: it reads, edits and watches records in a
// SQLite record source, and evaluates and converts journal filter trees.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Println("rk", version)
		return
	}

	initGlog(envOr("RECORDKIT_V", "0"))
	defer glog.Flush()

	a, err := newApp()
	if err != nil {
		fatal("%v", err)
	}

	code := a.run(os.Args[1], os.Args[2:])
	a.Close()
	os.Exit(code)
}

// initGlog sends glog output to stderr; the subcommands own the command line
// flags.
func initGlog(verbosity string) {
	flag.Set("logtostderr", "true")
	flag.Set("v", verbosity)
}

func (a *app) run(cmd string, args []string) int {
	switch cmd {
	// Setup
	case "init":
		return a.cmdInit(args)
	case "status":
		return a.cmdStatus(args)

	// Records
	case "create":
		return a.cmdCreate(args)
	case "get":
		return a.cmdGet(args)
	case "set":
		return a.cmdSet(args)
	case "watch":
		return a.cmdWatch(args)

	// Filters
	case "query", "q":
		return a.cmdQuery(args)
	case "filter":
		return a.cmdFilter(args)
	}
	fmt.Fprintf(os.Stderr, "rk: unknown command %q\n", cmd)
	fmt.Fprintln(os.Stderr, "Run 'rk --help' for usage.")
	return 1
}

func printUsage() {
	fmt.Print(`rk: records and journal filters on a SQLite record source

Usage:
  rk <command> [flags]

Setup:
  init                          Create the database, show what it holds
  status                        Record counts per type, pending updates

Records:
  create <type> att=value...    Create a record, print its id
  get <id> <path>...            Load attribute paths of a record
  set <id> att=value...         Change attributes of a record
  watch <id> <path>...          Print attribute snapshots as the record changes

Filters:
  query [--filter FILE]         List records matching a predicate tree
  filter --tree FILE            Convert a predicate tree to filter groups
  filter --reverse --tree FILE  Convert filter groups back to a predicate tree
  filter --defaults             Build the default tree for a column set

Aliases:
  q = query

Values in att=value are JSON when they parse as JSON, strings otherwise.
Paths use the attribute path language: title, tags[], owner.name,
status?str, doc{disp,id}, .atts(n:"tags"){str}, #raw.

Environment:
  RECORDKIT_DB   SQLite database path (default: .recordkit/records.db)
  RECORDKIT_V    glog verbosity (default: 0)

All commands support --json for machine-readable output.

Exit codes:
  0  success
  1  error
`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "rk: "+format+"\n", args...)
	os.Exit(1)
}
