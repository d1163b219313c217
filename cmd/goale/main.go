package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load environment variables from .env file when present
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "goale",
		Short:         "Activation likelihood estimation contrasts over a table of neuroimaging experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newGroupsCmd(),
		newExportCmd(),
		newFigureCmd(),
		newInitCmd(),
		newShowCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
