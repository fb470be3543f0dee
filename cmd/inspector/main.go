package main

import (
	"context"
	"fmt"
	"os"

	"ogm_mongodb_inspector/internal/cli"
	"ogm_mongodb_inspector/internal/logging"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		logging.Error("inspector command failed", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
