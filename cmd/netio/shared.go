package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/internal/console"
	"github.com/momentics/hioload-net/netio"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const categoryCommon = "common"

const (
	verboseFlag = "verbose"
	timeoutFlag = "timeout"
	ipv4Flag    = "ipv4"
	ipv6Flag    = "ipv6"
	statsFlag   = "stats"
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:     verboseFlag,
			Aliases:  []string{"v"},
			Usage:    "Debug logging of socket activity",
			Category: categoryCommon,
		},
		&cli.IntFlag{
			Name:     timeoutFlag,
			Aliases:  []string{"t"},
			Usage:    "Timeout of every blocking operation in milliseconds, 0 waits forever",
			Category: categoryCommon,
			Value:    0,
		},
		&cli.BoolFlag{
			Name:     ipv4Flag,
			Aliases:  []string{"4"},
			Usage:    "Resolve IPv4 addresses only",
			Category: categoryCommon,
		},
		&cli.BoolFlag{
			Name:     ipv6Flag,
			Aliases:  []string{"6"},
			Usage:    "Resolve IPv6 addresses only",
			Category: categoryCommon,
		},
		&cli.BoolFlag{
			Name:     statsFlag,
			Usage:    "Print I/O counters on exit",
			Category: categoryCommon,
		},
	}
}

// options holds the parsed common flags.
type options struct {
	Verbose bool
	Timeout time.Duration
	Version api.IPVersion
	Stats   bool
}

func parseOptions(cmd *cli.Command) options {
	o := options{
		Verbose: cmd.Bool(verboseFlag),
		Timeout: api.Infinite,
		Version: api.IPAny,
		Stats:   cmd.Bool(statsFlag),
	}
	if ms := cmd.Int(timeoutFlag); ms > 0 {
		o.Timeout = time.Duration(ms) * time.Millisecond
	}
	switch {
	case cmd.Bool(ipv4Flag):
		o.Version = api.IPv4
	case cmd.Bool(ipv6Flag):
		o.Version = api.IPv6
	}
	return o
}

func (o options) Validate() []error {
	var errors []error
	if o.Timeout < 0 && o.Timeout != api.Infinite {
		errors = append(errors, fmt.Errorf("'--%s' must not be negative", timeoutFlag))
	}
	return errors
}

// services builds the dependency bundle for one command run.
func (o options) services() (*netio.Services, error) {
	logger := zap.NewNop()
	if o.Verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("building logger: %w", err)
		}
		logger = l
	}
	cfg := control.DefaultConfig()
	cfg.DefaultTimeout = o.Timeout
	return netio.NewServices(netio.WithLogger(logger), netio.WithConfig(cfg)), nil
}

func validate(o options) error {
	if errs := o.Validate(); len(errs) > 0 {
		console.ErrorMsg("Argument validation errors:\n")
		for _, err := range errs {
			console.ErrorMsg(" - %s\n", err)
		}
		return fmt.Errorf("exiting")
	}
	return nil
}

func printStats(o options, svc *netio.Services) {
	if !o.Stats {
		return
	}
	for k, v := range svc.Metrics().GetSnapshot() {
		console.InfoMsg("%s = %d\n", k, v)
	}
}

// splitTarget accepts "host:port", "[v6]:port" or a bare port.
func splitTarget(s string) (host, port string, err error) {
	if _, perr := strconv.ParseUint(s, 10, 16); perr == nil {
		return "", s, nil
	}
	return net.SplitHostPort(s)
}
