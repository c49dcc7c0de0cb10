package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kvistgaard/arkive/internal"
	"github.com/kvistgaard/arkive/pkg/logger"
)

var log = logger.Get("Main")

// main is the entry point of the server. It loads the user-provided
// YAML configuration and runs Arkive until an interrupt or termination
// signal arrives.
func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	verbosity := flag.Int("verbosity", 2, "minimum log level to emit (0=verbose ... 5=fatal)")
	flag.Parse()

	logger.SetMinLoggingLevel(*verbosity)

	config := internal.ArkiveConfig{}
	if err := config.LoadFromFile(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Arkive stopped with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Arkive shut down\n")
}
