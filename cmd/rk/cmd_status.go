package main

import (
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/daviddao/recordkit/pkg/model"
)

// statusScanLimit bounds the records status looks at.
const statusScanLimit = 10000

type typeCount struct {
	Type    string `json:"type"`
	Records int    `json:"records"`
	Pending int    `json:"pending_updates"`
}

func (a *app) cmdStatus(args []string) int {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	recs, err := a.store.ListRecords("", statusScanLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rk: status: %v\n", err)
		return 1
	}
	counts := countByType(recs)
	pending := pendingIDs(recs)

	if *jsonOut {
		printJSON(map[string]interface{}{
			"db":      a.dbPath,
			"records": a.store.CountRecords(),
			"types":   counts,
			"pending": pending,
		})
		return 0
	}

	fmt.Printf("db: %s\n", a.dbPath)
	fmt.Printf("records: %d\n", a.store.CountRecords())
	if len(counts) > 0 {
		fmt.Println("types:")
		for _, c := range counts {
			fmt.Printf("  %-20s %5d  pending=%d\n", c.Type, c.Records, c.Pending)
		}
	}
	if len(pending) > 0 {
		fmt.Println("pending updates:")
		for _, id := range pending {
			fmt.Printf("  %s\n", id)
		}
	} else {
		fmt.Println("pending updates: none")
	}
	return 0
}

// countByType groups records by type, sorted by type name.
func countByType(recs []model.Record) []typeCount {
	byType := map[string]*typeCount{}
	for _, r := range recs {
		c, ok := byType[r.Type]
		if !ok {
			c = &typeCount{Type: r.Type}
			byType[r.Type] = c
		}
		c.Records++
		if r.PendingUpdate {
			c.Pending++
		}
	}
	out := make([]typeCount, 0, len(byType))
	for _, typ := range slices.Sorted(maps.Keys(byType)) {
		out = append(out, *byType[typ])
	}
	return out
}

func pendingIDs(recs []model.Record) []string {
	var ids []string
	for _, r := range recs {
		if r.PendingUpdate {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
