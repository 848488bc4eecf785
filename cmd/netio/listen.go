package main

import (
	"context"
	"fmt"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/console"
	"github.com/momentics/hioload-net/netio"
	"github.com/urfave/cli/v3"
)

const (
	countFlag = "count"
	reuseFlag = "reuse"
)

func listenCommand() *cli.Command {
	return &cli.Command{
		Name:      "listen",
		Usage:     "Accept TCP connections and relay them to stdio",
		ArgsUsage: "[host:]port",
		Flags: append(commonFlags(),
			&cli.IntFlag{
				Name:    countFlag,
				Aliases: []string{"n"},
				Usage:   "Number of connections to serve one after another, -1 for no limit",
				Value:   1,
			},
			&cli.BoolFlag{
				Name:  reuseFlag,
				Usage: "Set SO_REUSEADDR on the listening socket",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o := parseOptions(cmd)
			if err := validate(o); err != nil {
				return err
			}
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one [host:]port argument")
			}
			svc, err := o.services()
			if err != nil {
				return err
			}
			defer printStats(o, svc)

			return runListen(ctx, svc, o, cmd.Args().First(), int(cmd.Int(countFlag)), cmd.Bool(reuseFlag))
		},
	}
}

func runListen(ctx context.Context, svc *netio.Services, o options, target string, count int, reuse bool) error {
	host, port, err := splitTarget(target)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", target, err)
	}
	addr, err := svc.Resolver().Resolve(ctx, host, port, o.Version)
	if err != nil {
		return err
	}
	if reuse {
		addr = addr.WithReuse()
	}
	if count < 0 {
		count = api.Unlimited
	}

	src, err := netio.NewStreamSource(svc, addr, netio.ModePassive, count)
	if err != nil {
		return err
	}
	defer src.Close()

	local, err := src.LocalAddr()
	if err != nil {
		return err
	}
	console.InfoMsg("Listening on %s\n", local.String(false))

	for src.HasItems() {
		st, err := src.Next()
		if err != nil {
			return err
		}
		console.PeerMsg("Connection from %s\n", src.PeerAddr().String(false))
		err = relay(ctx, svc, st, stdin(), stdout)
		st.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
