package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"text/tabwriter"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/hostclient"
	"github.com/sideassist/sideassist/internal/protocol"
)

const actionsUsage = `Usage: sideassist actions <command> [options]

Commands:
  list                 List recorded custom actions
  rename <id> <name>   Rename a custom action
  delete <id>          Delete a custom action

Options:
  --config <path>      Path to config file
  --socket <path>      Path to the host control socket
  --password <code>    Password for mutations (default: the host's live password)
  --json               Output in JSON format (list only)
`

func runActions(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stdout, actionsUsage)
		return 1
	}

	switch args[0] {
	case "list":
		return runActionsList(args[1:], stdout, stderr)
	case "rename":
		return runActionsRename(args[1:], stdout, stderr)
	case "delete":
		return runActionsDelete(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown actions command: %s\n", args[0])
		fmt.Fprint(stdout, actionsUsage)
		return 1
	}
}

// actionsFlags are shared by every actions subcommand.
type actionsFlags struct {
	config   string
	socket   string
	password string
}

func newActionsFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *actionsFlags) {
	fs := flag.NewFlagSet("actions "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &actionsFlags{}
	fs.StringVar(&f.config, "config", "", "Path to config file (default: ~/.sideassist/config.toml)")
	fs.StringVar(&f.socket, "socket", "", "Path to the host control socket (default: ~/.sideassist/control.sock)")
	fs.StringVar(&f.password, "password", "", "Password for mutations (default: the host's live password)")
	return fs, f
}

func runActionsList(args []string, stdout, stderr io.Writer) int {
	fs, f := newActionsFlagSet("list", stderr)
	jsonOutput := fs.Bool("json", false, "Output in JSON format")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	_, socket, err := localSettings(f.config, f.socket)
	if err != nil {
		reportError(stderr, err)
		return 1
	}

	actions, err := hostclient.NewUnix(socket, hostclient.Options{}).ListActions(context.Background())
	if err != nil {
		reportError(stderr, err)
		return 1
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(actions); err != nil {
			reportError(stderr, err)
			return 1
		}
		return 0
	}

	writeActionsTable(stdout, actions)
	return 0
}

// writeActionsTable renders actions as an aligned table.
func writeActionsTable(w io.Writer, actions []protocol.CustomAction) {
	if len(actions) == 0 {
		fmt.Fprintln(w, "No custom actions recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tKEYS\tRUNS")
	for _, a := range actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", a.ID, a.Name, a.ShortcutType, len(a.KeySequence), a.RunCount)
	}
	tw.Flush()
}

func runActionsRename(args []string, stdout, stderr io.Writer) int {
	fs, f := newActionsFlagSet("rename", stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	rest := fs.Args()
	if len(rest) < 2 {
		fmt.Fprintln(stderr, "Usage: sideassist actions rename <id> <name>")
		return 1
	}
	id, name := rest[0], strings.Join(rest[1:], " ")

	ctx := context.Background()
	client, password, err := mutationClient(ctx, f)
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	if err := client.RenameAction(ctx, id, name, password); err != nil {
		reportError(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "Renamed %s to %q\n", id, name)
	return 0
}

func runActionsDelete(args []string, stdout, stderr io.Writer) int {
	fs, f := newActionsFlagSet("delete", stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(stderr, "Usage: sideassist actions delete <id>")
		return 1
	}
	id := rest[0]

	ctx := context.Background()
	client, password, err := mutationClient(ctx, f)
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	if err := client.DeleteAction(ctx, id, password); err != nil {
		reportError(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "Deleted %s\n", id)
	return 0
}

// mutationClient returns a loopback client for the host's LAN API along with
// the password to send. Mutations go through the same authorization as a
// companion; the control socket only supplies the port and live password.
func mutationClient(ctx context.Context, f *actionsFlags) (*hostclient.Client, string, error) {
	_, socket, err := localSettings(f.config, f.socket)
	if err != nil {
		return nil, "", err
	}
	local := hostclient.NewUnix(socket, hostclient.Options{})

	status, err := local.Status(ctx)
	if err != nil {
		return nil, "", err
	}

	password := f.password
	if password == "" {
		cred, err := local.Credential(ctx)
		if err != nil {
			return nil, "", err
		}
		if cred == nil {
			return nil, "", apperrors.New(apperrors.CodeAuthNoCredential, "no live password; issue one or pass --password")
		}
		password = cred.Password
	}

	base := "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(status.Port))
	return hostclient.New(base, hostclient.Options{}), password, nil
}
