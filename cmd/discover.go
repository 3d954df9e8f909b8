package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sideassist/sideassist/internal/mdns"
)

func runDiscover(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.SetOutput(stderr)

	timeout := fs.Duration("timeout", 3*time.Second, "How long to browse the network")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sideassist discover [options]\n\nList hosts advertising over mDNS. Pairing still needs the host password.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if *timeout <= 0 {
		fmt.Fprintln(stderr, "Error: --timeout must be positive")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	hosts, err := mdns.Discover(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(hosts); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	writeHostsTable(stdout, hosts)
	return 0
}

// writeHostsTable renders discovered hosts as an aligned table.
func writeHostsTable(w io.Writer, hosts []mdns.DiscoveredHost) {
	if len(hosts) == 0 {
		fmt.Fprintln(w, "No hosts found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tVERSION")
	for _, h := range hosts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Name, h.Address(), h.Version)
	}
	tw.Flush()
}
