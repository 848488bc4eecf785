package main

import (
	"context"
	"fmt"

	"github.com/momentics/hioload-net/internal/console"
	"github.com/momentics/hioload-net/netio"
	"github.com/urfave/cli/v3"
)

const reverseFlag = "reverse"

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Print the endpoints a host and service resolve to",
		ArgsUsage: "host service",
		Flags: append(commonFlags(),
			&cli.BoolFlag{
				Name:    reverseFlag,
				Aliases: []string{"r"},
				Usage:   "Render hosts through reverse DNS",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o := parseOptions(cmd)
			if err := validate(o); err != nil {
				return err
			}
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("expected host and service arguments")
			}
			svc, err := o.services()
			if err != nil {
				return err
			}

			addr, err := svc.Resolver().Resolve(ctx, cmd.Args().Get(0), cmd.Args().Get(1), o.Version)
			if err != nil {
				return err
			}
			if addr.Passive() {
				console.InfoMsg("wildcard address, suitable for binding\n")
			}
			reverse := cmd.Bool(reverseFlag)
			for _, rec := range addr.Records() {
				single, err := netio.AddressFromAddrPorts(addr.Passive(), rec.AddrPort())
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "%s\t%s\n", rec.Family, single.String(reverse))
			}
			return nil
		},
	}
}
