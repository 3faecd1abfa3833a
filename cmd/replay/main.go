// Command replay feeds newline-delimited envelopes through the engine, for
// backfills and for re-driving deliveries the ledger marked error.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yungbote/northstar-backend/internal/app"
	types "github.com/yungbote/northstar-backend/internal/domain"
)

func main() {
	path := flag.String("file", "", "NDJSON file of envelopes (default stdin)")
	flag.Parse()
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := os.Stdin
	if *path != "" {
		f, err := os.Open(*path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", *path, err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	var envs []types.Envelope
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var env types.Envelope
		if err := json.Unmarshal(sc.Bytes(), &env); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", line, err)
			os.Exit(1)
		}
		envs = append(envs, env)
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read envelopes: %v\n", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	results, runErr := a.Dispatcher.Run(ctx, envs)
	counts := map[types.Outcome]int{}
	for _, r := range results {
		counts[r.Outcome]++
	}
	a.Log.Info("Replay finished",
		"total", len(envs),
		"processed", counts[types.OutcomeProcessed],
		"skipped", counts[types.OutcomeSkipped],
		"duplicate", counts[types.OutcomeDuplicate],
	)
	if runErr != nil {
		a.Log.Error("Replay had failures", "error", runErr)
		os.Exit(1)
	}
}
