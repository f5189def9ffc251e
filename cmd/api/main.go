package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dubwise/dubwise-backend/internal/app"
)

func main() {
	a, err := app.New(app.LoadConfig())
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.RunAPI(ctx); err != nil {
		fmt.Printf("api exited: %v\n", err)
		os.Exit(1)
	}
}
