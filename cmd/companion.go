package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sideassist/sideassist/internal/companion"
	"github.com/sideassist/sideassist/internal/config"
	"github.com/sideassist/sideassist/internal/hostclient"
	"github.com/sideassist/sideassist/internal/pairing"
	"github.com/sideassist/sideassist/internal/protocol"
)

// companionFlags select the host to pair with. A payload wins over fields.
type companionFlags struct {
	config   string
	payload  string
	ip       string
	port     string
	password string
	verbose  bool
}

func (f *companionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.config, "config", "", "Path to config file (default: ~/.sideassist/config.toml)")
	fs.StringVar(&f.payload, "payload", "", "Pairing payload, e.g. sideassist://connect?ip=..&port=..&password=..")
	fs.StringVar(&f.ip, "ip", "", "Host IPv4 address")
	fs.StringVar(&f.port, "port", "", "Host port")
	fs.StringVar(&f.password, "password", "", "Host password")
	fs.BoolVar(&f.verbose, "verbose", false, "Log companion events to stderr")
}

// pairCompanion builds a companion runtime from the config file and pairs
// it with the host named by f.
func pairCompanion(ctx context.Context, f *companionFlags, stderr io.Writer) (*companion.Companion, error) {
	if f.payload == "" && f.ip == "" {
		return nil, errors.New("a host is required: pass --payload or --ip, --port and --password")
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}

	var logger *log.Logger
	if f.verbose {
		logger = log.New(stderr, "", log.LstdFlags)
	}

	c := companion.New(companion.Config{
		ProbeTimeout: cfg.ProbeTimeout(),
		Monitor: companion.MonitorConfig{
			Settle:   cfg.MonitorSettle(),
			Interval: cfg.MonitorInterval(),
		},
		Recorder: companion.RecorderConfig{
			Poll: cfg.RecordingPoll(),
		},
		Resolver: pairing.ResolverConfig{
			Scheme: cfg.PayloadScheme(),
		},
		Logger: logger,
	})

	if f.payload != "" {
		if _, err := c.PairPayload(ctx, f.payload); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err := c.PairFields(ctx, f.ip, f.port, f.password); err != nil {
		return nil, err
	}
	return c, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runConnect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &companionFlags{}
	f.register(fs)
	watch := fs.Bool("watch", true, "Print host events while attached")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sideassist connect [options] [payload]\n\nPair with a host and stay attached until interrupted or the host is lost.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if f.payload == "" && fs.NArg() > 0 {
		f.payload = fs.Arg(0)
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, err := pairCompanion(ctx, f, stderr)
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	defer c.Disconnect()

	snap := c.Session.Snapshot()
	target := *snap.Target
	fmt.Fprintf(stdout, "Paired with %s (%d companions connected)\n", target.HostPort(), snap.ConnectedClients)
	for _, a := range c.Recorder.Actions() {
		fmt.Fprintf(stdout, "  action %s: %s\n", a.ID, a.Name)
	}

	events := make(chan protocol.Envelope, 16)
	if *watch {
		stream := hostclient.New(target.BaseURL(), hostclient.Options{})
		go func() {
			err := stream.Watch(ctx, target.Secret, func(env protocol.Envelope) {
				select {
				case events <- env:
				case <-ctx.Done():
				}
			})
			if err != nil && ctx.Err() == nil {
				fmt.Fprintf(stderr, "Warning: event stream closed: %v\n", err)
			}
		}()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(stdout, "\nDisconnecting.")
			return 0
		case env := <-events:
			writeEvent(stdout, env)
		case <-ticker.C:
			if c.Session.State() == companion.StateDisconnected {
				fmt.Fprintln(stdout, "Connection to host lost.")
				return 1
			}
		}
	}
}

// writeEvent prints one event stream message.
func writeEvent(w io.Writer, env protocol.Envelope) {
	ts := time.UnixMilli(env.Timestamp).Format("15:04:05")
	fmt.Fprintf(w, "[%s] %s %s\n", ts, env.Type, strings.TrimSpace(string(env.Payload)))
}

func runSend(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stdout, "Usage: sideassist send <text|copy|paste|run> [options] [args]")
		return 1
	}
	kind := args[0]

	fs := flag.NewFlagSet("send "+kind, flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &companionFlags{}
	f.register(fs)

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	var send func(ctx context.Context, d *companion.Dispatcher) error
	switch kind {
	case "text":
		text := strings.Join(fs.Args(), " ")
		if text == "" {
			fmt.Fprintln(stderr, "Usage: sideassist send text [options] <text>")
			return 1
		}
		send = func(ctx context.Context, d *companion.Dispatcher) error { return d.SendText(ctx, text) }
	case "copy":
		send = func(ctx context.Context, d *companion.Dispatcher) error { return d.Copy(ctx) }
	case "paste":
		send = func(ctx context.Context, d *companion.Dispatcher) error { return d.Paste(ctx) }
	case "run":
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "Usage: sideassist send run [options] <action-id>")
			return 1
		}
		id := fs.Arg(0)
		send = func(ctx context.Context, d *companion.Dispatcher) error { return d.RunAction(ctx, id) }
	default:
		fmt.Fprintf(stdout, "Unknown send command: %s\n", kind)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, err := pairCompanion(ctx, f, stderr)
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	defer c.Disconnect()

	if err := send(ctx, c.Dispatcher); err != nil {
		reportError(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "Sent %s\n", kind)
	return 0
}

func runRecord(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &companionFlags{}
	f.register(fs)
	name := fs.String("name", "", "Name of the new custom action (required)")
	icon := fs.String("icon", "", "Icon shown for the action")
	shortcutType := fs.String("type", protocol.ShortcutNormal, "Replay mode: Normal (chord) or Sequential (timed)")
	wait := fs.Duration("wait", 30*time.Second, "How long to wait for the host to save the recording")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sideassist record [options]\n\nRecord keys pressed on the host as a new custom action.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(stderr, "Error: --name is required")
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, err := pairCompanion(ctx, f, stderr)
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	defer c.Disconnect()

	if _, err := c.Recorder.Prepare(ctx, *name, *icon, *shortcutType); err != nil {
		reportError(stderr, err)
		return 1
	}
	if _, err := c.Recorder.Start(ctx); err != nil {
		reportError(stderr, err)
		c.Recorder.Cancel(context.Background())
		return 1
	}

	fmt.Fprintf(stdout, "Recording %q on the host. Press Enter to save, or type 'cancel' and Enter to discard.\n", *name)

	line, _ := bufio.NewReader(stdin).ReadString('\n')
	if ctx.Err() != nil || strings.TrimSpace(line) == "cancel" {
		if _, err := c.Recorder.Cancel(context.Background()); err != nil {
			reportError(stderr, err)
			return 1
		}
		fmt.Fprintln(stdout, "Recording discarded.")
		return 0
	}

	if _, err := c.Recorder.Stop(ctx); err != nil {
		reportError(stderr, err)
		return 1
	}

	timer := time.NewTimer(*wait)
	defer timer.Stop()

	select {
	case ev := <-c.Recorder.Events():
		if ev.Type != companion.RecordingCompleted {
			fmt.Fprintln(stderr, "Error: the host abandoned the recording")
			return 1
		}
		fmt.Fprintf(stdout, "Saved custom action %q (%d keys)\n", ev.Status.Name, ev.Status.RecordedKeysCount)
		return 0
	case <-timer.C:
		fmt.Fprintln(stderr, "Error: timed out waiting for the host to save the recording")
		return 1
	case <-ctx.Done():
		return 1
	}
}
