package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/daviddao/recordkit/pkg/predicate"
)

func (a *app) cmdFilter(args []string) int {
	flags := flag.NewFlagSet("filter", flag.ContinueOnError)
	treeFile := flags.String("tree", "", "predicate tree JSON file, or filter groups with --reverse (- for stdin)")
	columnsFile := flags.String("columns", "", "column set JSON file")
	reverse := flags.Bool("reverse", false, "read filter groups and print the predicate tree")
	defaults := flags.Bool("defaults", false, "print the default tree for the column set")
	extra := flags.String("extra", "", "comma separated attributes to add to the default tree")
	flat := flags.Bool("flat", false, "print the non-empty leaves of the tree")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	cols, err := readColumns(*columnsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rk: filter: columns: %v\n", err)
		return 1
	}

	switch {
	case *defaults:
		var names []string
		if *extra != "" {
			names = strings.Split(*extra, ",")
		}
		printJSON(predicate.GetDefaultPredicates(cols, names, nil))
		return 0

	case *reverse:
		if *treeFile == "" {
			fmt.Fprintln(os.Stderr, "rk: filter: --reverse needs --tree")
			return 1
		}
		var groups []*predicate.GroupPredicate
		if err := readJSON(*treeFile, &groups); err != nil {
			fmt.Fprintf(os.Stderr, "rk: filter: %v\n", err)
			return 1
		}
		tree := predicate.Reverse(groups)
		if tree == nil {
			fmt.Fprintln(os.Stderr, "rk: filter: no filters")
			return 1
		}
		printJSON(tree)
		return 0
	}

	if *treeFile == "" {
		fmt.Fprintln(os.Stderr, "rk: filter: usage: rk filter --tree FILE [--columns FILE] [--reverse|--flat]")
		return 1
	}
	tree := &predicate.Predicate{}
	if err := readJSON(*treeFile, tree); err != nil {
		fmt.Fprintf(os.Stderr, "rk: filter: %v\n", err)
		return 1
	}

	if *flat {
		leaves := predicate.GetFlatFilters(tree)
		if *jsonOut {
			printJSON(leaves)
			return 0
		}
		for _, p := range leaves {
			fmt.Println(describe(p))
		}
		return 0
	}

	groups := predicate.Parse(tree, cols)
	if *jsonOut {
		printJSON(groups)
		return 0
	}
	printGroups(groups)
	return 0
}

func printGroups(groups []*predicate.GroupPredicate) {
	if len(groups) == 0 {
		fmt.Println("no filter groups")
		return
	}
	for i, g := range groups {
		fmt.Printf("group %d (%s):\n", i+1, g.Condition)
		for j, f := range g.Filters {
			cond := f.Condition
			if j == 0 {
				cond = ""
			}
			fmt.Printf("  %-4s %s\n", cond, describe(f.Predicate))
		}
	}
}

// describe renders a leaf as "att t val".
func describe(p *predicate.Predicate) string {
	if predicate.PredicatesWithoutValue[p.T] {
		return p.Att + " " + p.T
	}
	return fmt.Sprintf("%s %s %s", p.Att, p.T, formatValue(p.Val))
}
