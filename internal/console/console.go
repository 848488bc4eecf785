// Package console prints coloured status lines for the command line tool.
// Payload data never goes through here; it is written to stdout as is.
package console

import (
	"io"
	"os"

	"github.com/fatih/color"
)

// Output receives every message. Tests may swap it.
var Output io.Writer = os.Stderr

var red = color.New(color.FgRed).FprintfFunc()
var blue = color.New(color.FgBlue).FprintfFunc()
var green = color.New(color.FgGreen).FprintfFunc()

// ErrorMsg prints an error message in red.
func ErrorMsg(format string, a ...any) {
	red(Output, "[!] Error: "+format, a...)
}

// InfoMsg prints an informational message in blue.
func InfoMsg(format string, a ...any) {
	blue(Output, "[+] "+format, a...)
}

// PeerMsg announces a peer event in green.
func PeerMsg(format string, a ...any) {
	green(Output, "[*] "+format, a...)
}
