package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"
)

func (a *app) cmdWatch(args []string) int {
	flags := flag.NewFlagSet("watch", flag.ContinueOnError)
	interval := flags.Int("interval", 2, "poll interval in seconds")
	jsonOut := flags.Bool("json", false, "JSON output (one JSON object per line)")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "rk: watch: usage: rk watch <id> <path>...")
		return 1
	}

	id := flags.Arg(0)
	atts := map[string]string{}
	for _, p := range flags.Args()[1:] {
		atts[p] = p
	}
	pollInterval := time.Duration(*interval) * time.Second

	// Handle ctrl-c gracefully.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	rec := a.registry.Get(id)
	w, err := rec.Watch(ctx, atts, func(values map[string]any) error {
		printSnapshot(id, values, *jsonOut)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rk: watch: %v\n", err)
		return 1
	}
	defer w.Unwatch()

	fmt.Fprintf(os.Stderr, "watching %s (poll every %s, ctrl-c to stop)\n", id, pollInterval)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			fmt.Fprintln(os.Stderr, "\nstopped")
			return 0
		case <-ticker.C:
			// failures are logged by the record; the watcher keeps its last values
			_ = rec.Update(ctx)
		}
	}
}

func printSnapshot(id string, values map[string]any, jsonOut bool) {
	if jsonOut {
		b, _ := json.Marshal(map[string]any{"id": id, "attributes": values})
		fmt.Println(string(b))
		return
	}
	fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), id)
	for _, k := range slices.Sorted(maps.Keys(values)) {
		fmt.Printf("  %-22s %s\n", k, formatValue(values[k]))
	}
}
