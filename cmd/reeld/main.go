// Command reeld runs the recording daemon in the foreground. It is the
// standalone counterpart to `reel daemon run` for service managers that
// supervise the process themselves.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"reel/internal/config"
	"reel/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "path to the reel configuration file")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	socketPath := flag.String("socket", "", "control socket path override")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	err = daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:   *logLevel,
		SocketPath: *socketPath,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "reeld: %v\n", err)
		os.Exit(1)
	}
}
