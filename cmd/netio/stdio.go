package main

import (
	"io"
	"os"

	"github.com/muesli/cancelreader"
)

// stdout receives relayed payload.
var stdout io.Writer = os.Stdout

// stdin returns a cancelable stdin reader when the platform supports one.
func stdin() io.Reader {
	cr, err := cancelreader.NewReader(os.Stdin)
	if err != nil {
		return os.Stdin
	}
	return cr
}
