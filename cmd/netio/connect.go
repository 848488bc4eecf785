package main

import (
	"context"
	"fmt"
	"io"

	"github.com/momentics/hioload-net/internal/console"
	"github.com/momentics/hioload-net/netio"
	"github.com/urfave/cli/v3"
)

func connectCommand() *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Connect to a TCP endpoint and relay it to stdio",
		ArgsUsage: "host:port",
		Flags:     commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o := parseOptions(cmd)
			if err := validate(o); err != nil {
				return err
			}
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one host:port argument")
			}
			svc, err := o.services()
			if err != nil {
				return err
			}
			defer printStats(o, svc)

			return runConnect(ctx, svc, o, cmd.Args().First(), stdin())
		},
	}
}

func runConnect(ctx context.Context, svc *netio.Services, o options, target string, in io.Reader) error {
	addr, err := svc.Resolver().ResolveHostPort(ctx, target, o.Version)
	if err != nil {
		return err
	}
	src, err := netio.NewStreamSource(svc, addr, netio.ModeActive, 1)
	if err != nil {
		return err
	}
	defer src.Close()
	src.SetTimeout(o.Timeout)

	st, err := src.Next()
	if err != nil {
		return err
	}
	defer st.Close()
	console.PeerMsg("Connected to %s\n", src.PeerAddr().String(false))

	return relay(ctx, svc, st, in, stdout)
}
