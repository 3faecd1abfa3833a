package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yungbote/northstar-backend/internal/app"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init worker: %v\n", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	if err := a.RunWorker(ctx); err != nil {
		a.Log.Error("Temporal worker stopped", "error", err)
		os.Exit(1)
	}
}
