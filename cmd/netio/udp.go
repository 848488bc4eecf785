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
	portFlag    = "port"
	echoFlag    = "echo"
	toFlag      = "to"
	messageFlag = "message"
)

func udpCommand() *cli.Command {
	return &cli.Command{
		Name:  "udp",
		Usage: "Receive UDP datagrams, optionally echoing them, or send one and wait for the reply",
		Flags: append(commonFlags(),
			&cli.IntFlag{
				Name:    portFlag,
				Aliases: []string{"p"},
				Usage:   "Local port, 0 picks one",
				Value:   0,
			},
			&cli.IntFlag{
				Name:    countFlag,
				Aliases: []string{"n"},
				Usage:   "Number of datagrams to receive, -1 for no limit",
				Value:   -1,
			},
			&cli.BoolFlag{
				Name:  echoFlag,
				Usage: "Send every received datagram back to its sender",
			},
			&cli.StringFlag{
				Name:  toFlag,
				Usage: "Send --message to host:port and print the reply",
			},
			&cli.StringFlag{
				Name:    messageFlag,
				Aliases: []string{"m"},
				Usage:   "Payload sent with --to",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o := parseOptions(cmd)
			if err := validate(o); err != nil {
				return err
			}
			port := cmd.Int(portFlag)
			if port < 0 || port > 65535 {
				return fmt.Errorf("'--%s' must be in [0, 65535]", portFlag)
			}
			svc, err := o.services()
			if err != nil {
				return err
			}
			defer printStats(o, svc)

			src, err := netio.NewDatagramSource(svc, uint16(port), o.Timeout)
			if err != nil {
				return err
			}
			defer src.Close()

			if to := cmd.String(toFlag); to != "" {
				reply, err := sendAndWait(ctx, svc, src, to, cmd.String(messageFlag), o.Version)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "%s\n", reply)
				return nil
			}
			return serveDatagrams(src, int(cmd.Int(countFlag)), cmd.Bool(echoFlag))
		},
	}
}

func sendAndWait(ctx context.Context, svc *netio.Services, src *netio.DatagramSource, to, message string, version api.IPVersion) (string, error) {
	addr, err := svc.Resolver().ResolveHostPort(ctx, to, version)
	if err != nil {
		return "", err
	}
	d, err := src.CreateFor(addr)
	if err != nil {
		return "", err
	}
	d.SetOutput([]byte(message))
	_, err = d.Send()
	d.Release()
	if err != nil {
		return "", err
	}

	in, err := src.Receive()
	if err != nil {
		return "", err
	}
	defer in.Release()
	return string(in.Input()), nil
}

func serveDatagrams(src *netio.DatagramSource, count int, echo bool) error {
	local, err := src.LocalAddr()
	if err != nil {
		return err
	}
	console.InfoMsg("Receiving datagrams on port %d\n", local.Port())

	for n := 0; count < 0 || n < count; n++ {
		d, err := src.Receive()
		if err != nil {
			return err
		}
		console.PeerMsg("#%d from %s, %d bytes\n", d.UID(), d.Peer().String(false), len(d.Input()))
		if _, err := stdout.Write(d.Input()); err != nil {
			d.Release()
			return err
		}
		if echo {
			d.SetOutput(d.Input())
			if _, err := d.Send(); err != nil {
				d.Release()
				return err
			}
		}
		d.Release()
	}
	return nil
}
