package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roby-engine/roby/internal/ports"
)

func main() {
	ctx := ports.WithCorrelationID(context.Background(), ports.GenerateCorrelationID())

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
