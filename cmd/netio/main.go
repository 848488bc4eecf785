// Command netio is a netcat-style tool built on the netio package: it
// listens, connects, exchanges UDP datagrams and resolves names.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/momentics/hioload-net/internal/console"
	"github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "netio",
		Usage: "readiness-based TCP/UDP swiss army knife",
		Commands: []*cli.Command{
			listenCommand(),
			connectCommand(),
			udpCommand(),
			resolveCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		console.ErrorMsg("%s\n", err)
		os.Exit(1)
	}
}
