package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/phillip-england/caresuite/internal/clientapp"
	"github.com/phillip-england/caresuite/internal/envutil"
)

func main() {
	if err := envutil.LoadDotEnv(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := clientapp.Run(ctx, clientapp.DefaultConfigFromEnv()); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
