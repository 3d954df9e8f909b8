package main

import (
	"fmt"
	"io"
	"os"

	apperrors "github.com/sideassist/sideassist/internal/errors"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

// stdin is read by interactive commands; replaced in tests.
var stdin io.Reader = os.Stdin

const usage = `sideassist - drive a desktop from a paired companion

Usage:
  sideassist <command> [options]

Host commands:
  host start      Start the host service
  host status     Show host status over the local control socket
  credential      Issue or show the pairing password (--qr for a QR code)
  actions list    List recorded custom actions
  actions rename <id> <name>  Rename a custom action
  actions delete <id>         Delete a custom action

Companion commands:
  connect         Pair with a host and stay attached until interrupted
  send text <text>    Type text on the host
  send copy           Trigger copy on the host
  send paste          Trigger paste on the host
  send run <id>       Run a custom action on the host
  record          Record a new custom action on the host
  discover        Find hosts advertised on the local network

  version         Print the version
Run 'sideassist <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "host":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: sideassist host <start|status>")
			return 1
		}
		switch args[2] {
		case "start":
			return runHostStart(args[3:], stdout, stderr)
		case "status":
			return runHostStatus(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown host command: %s\n", args[2])
			return 1
		}
	case "credential":
		return runCredential(args[2:], stdout, stderr)
	case "actions":
		return runActions(args[2:], stdout, stderr)
	case "connect":
		return runConnect(args[2:], stdout, stderr)
	case "send":
		return runSend(args[2:], stdout, stderr)
	case "record":
		return runRecord(args[2:], stdout, stderr)
	case "discover":
		return runDiscover(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "sideassist %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}

// reportError prints err and, for coded errors, the suggested next step.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if hint := apperrors.NextAction(apperrors.GetCode(err)); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}
