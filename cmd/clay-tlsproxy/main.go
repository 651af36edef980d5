// Command clay-tlsproxy is the TLS proxy child process (C10): it holds
// the actual TLS session to a MUD server so the connection survives a
// hot reload of the main clay process, relaying bytes between the TLS
// session and a Unix domain socket the main process dials.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"clay/internal/tlsproxy"
)

func main() {
	socket := flag.String("socket", "", "unix socket path to listen on")
	host := flag.String("host", "", "MUD server host to dial over TLS")
	port := flag.Int("port", 0, "MUD server port")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if *socket == "" || *host == "" || *port == 0 {
		fmt.Fprintln(os.Stderr, "clay-tlsproxy: -socket, -host, and -port are required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tlsproxy.RunChild(ctx, logger, *socket, *host, *port); err != nil {
		logger.Error("clay-tlsproxy: exiting", "error", err)
		os.Exit(1)
	}
}
