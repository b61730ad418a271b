package main

import (
	"flag"
	"fmt"
)

func (a *app) cmdInit(args []string) int {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	n := a.store.CountRecords()
	if *jsonOut {
		printJSON(map[string]interface{}{"db": a.dbPath, "records": n})
		return 0
	}

	fmt.Printf("initialized recordkit (db: %s)\n", a.dbPath)
	if n > 0 {
		fmt.Printf("  %d existing record(s)\n", n)
	}

	fmt.Println()
	fmt.Println("next steps:")
	fmt.Println("  rk create doc title=Report    # create a record")
	fmt.Println("  rk get <id> title cm:modified # load attributes")
	fmt.Println("  rk watch <id> title           # follow changes")
	return 0
}
