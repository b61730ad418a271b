package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/recordkit/pkg/predicate"
)

func (a *app) cmdQuery(args []string) int {
	flags := flag.NewFlagSet("query", flag.ContinueOnError)
	filterFile := flags.String("filter", "", "predicate tree JSON file (- for stdin)")
	typ := flags.String("type", "", "only records of this type")
	limit := flags.Int("limit", 50, "max records to return")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	var tree *predicate.Predicate
	if *filterFile != "" {
		tree = &predicate.Predicate{}
		if err := readJSON(*filterFile, tree); err != nil {
			fmt.Fprintf(os.Stderr, "rk: query: %v\n", err)
			return 1
		}
		tree = predicate.RemoveEmptyPredicates(tree)
	}
	if *typ != "" {
		byType := predicate.Leaf("_type", predicate.OpEq, *typ)
		if tree == nil {
			tree = byType
		} else {
			tree = predicate.Group(predicate.OpAnd, byType, tree)
		}
	}

	recs, err := a.store.Query(context.Background(), tree, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rk: query: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(recs)
		return 0
	}
	if len(recs) == 0 {
		fmt.Println("no matching records")
		return 0
	}
	for _, r := range recs {
		fmt.Printf("%-36s modified=%s %s\n", r.ID, shortTime(r.Modified), formatValue(r.Attributes))
	}
	return 0
}
