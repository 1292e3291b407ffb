package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/BartekS5/catalog-migrator/internal/cli"
	"github.com/joho/godotenv"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitWarning = 2
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd()
	rootCmd.SilenceErrors = true
	err := rootCmd.ExecuteContext(ctx)
	stop()

	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var warn *cli.WarningExit
	if errors.As(err, &warn) {
		fmt.Fprintln(os.Stderr, "WARNING:", warn)
		return exitWarning
	}
	fmt.Fprintln(os.Stderr, "ERROR:", err)
	return exitFailure
}
