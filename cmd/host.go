package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sideassist/sideassist/internal/auth"
	"github.com/sideassist/sideassist/internal/config"
	"github.com/sideassist/sideassist/internal/executor"
	"github.com/sideassist/sideassist/internal/hostclient"
	"github.com/sideassist/sideassist/internal/ipc"
	"github.com/sideassist/sideassist/internal/mdns"
	"github.com/sideassist/sideassist/internal/pairing"
	"github.com/sideassist/sideassist/internal/protocol"
	"github.com/sideassist/sideassist/internal/recording"
	"github.com/sideassist/sideassist/internal/server"
	"github.com/sideassist/sideassist/internal/storage"
)

// daemonEnvVar marks the re-executed child of a --daemon start.
const daemonEnvVar = "SIDEASSIST_DAEMON_CHILD"

// HostStartConfig holds the parsed flags for host start. Zero values fall
// back to the config file, then to built-in defaults.
type HostStartConfig struct {
	Config           string
	Addr             string
	Port             int
	Store            string
	LogLevel         string
	CredentialExpiry int
	ClientTimeout    int
	MdnsEnabled      bool
	MdnsName         string
	IPCSocket        string
	Scheme           string
	IP               string
	QR               bool
	Daemon           bool
	PIDFile          string
	LogFile          string
}

func runHostStart(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("host start", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &HostStartConfig{}

	fs.StringVar(&cfg.Config, "config", "", "Path to config file (default: ~/.sideassist/config.toml)")
	fs.StringVar(&cfg.Addr, "addr", "", "Interface to listen on (default: 0.0.0.0)")
	fs.IntVar(&cfg.Port, "port", 0, "TCP port to listen on (default: 8080)")
	fs.StringVar(&cfg.Store, "store", "", "Path to the custom action database (default: ~/.sideassist/sideassist.db)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	fs.IntVar(&cfg.CredentialExpiry, "credential-expiry", 0, "Seconds a pairing password stays valid (default: 300)")
	fs.IntVar(&cfg.ClientTimeout, "client-timeout", 0, "Seconds before a silent companion is dropped (default: 15)")
	fs.BoolVar(&cfg.MdnsEnabled, "mdns", false, "Advertise the host over mDNS/Bonjour (LAN-visible)")
	fs.StringVar(&cfg.MdnsName, "mdns-name", "", "Name advertised over mDNS (default: hostname)")
	fs.StringVar(&cfg.IPCSocket, "socket", "", "Path to the local control socket (default: ~/.sideassist/control.sock)")
	fs.StringVar(&cfg.Scheme, "scheme", "", "Pairing payload scheme (default: sideassist)")
	fs.StringVar(&cfg.IP, "ip", "", "Address shown in the pairing payload (default: Tailscale or LAN IP)")
	fs.BoolVar(&cfg.QR, "qr", false, "Display the pairing payload as a QR code")
	fs.BoolVar(&cfg.Daemon, "daemon", false, "Run host in background as daemon")
	fs.StringVar(&cfg.PIDFile, "pid-file", "", "PID file path (default: ~/.sideassist/host.pid)")
	fs.StringVar(&cfg.LogFile, "log-file", "", "Log file path (default: ~/.sideassist/host.log)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sideassist host start [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	explicitFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicitFlags[f.Name] = true
	})

	if cfg.Config == "" {
		if path, err := config.DefaultConfigPath(); err == nil {
			if err := config.WriteDefault(path); err != nil {
				fmt.Fprintf(stderr, "Warning: %v\n", err)
			}
		}
	}

	fileCfg, err := config.Load(cfg.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	mergeHostConfig(cfg, fileCfg, explicitFlags)
	if err := fileCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.Daemon && os.Getenv(daemonEnvVar) == "" {
		return startDaemon(cfg, args, stdout, stderr)
	}

	var logFile *os.File
	if cfg.Daemon {
		logFilePath, err := resolveLogFilePath(cfg.LogFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		logFile, err = os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open log file: %v\n", err)
			return 1
		}
		defer logFile.Close()
		stdout = logFile
		stderr = logFile
		log.SetOutput(logFile)
	}

	serverLogger := log.New(stderr, "", log.LstdFlags)
	debugLogger := componentLogger(cfg.LogLevel, stderr)

	storePath := cfg.Store
	if storePath == "" {
		storePath, err = config.DefaultStorePath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0700); err != nil {
		fmt.Fprintf(stderr, "Error: failed to create store directory: %v\n", err)
		return 1
	}
	store, err := storage.NewSQLiteStore(storePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	credentials := auth.NewCredentialManager(auth.CredentialConfig{
		Expiry: fileCfg.CredentialExpiry(),
	})
	recorder := recording.NewOrchestrator(recording.Config{
		Store:  store,
		Logger: debugLogger,
	})
	input := executor.New(executor.Config{
		Logger: debugLogger,
	})

	srv := server.NewServer(server.Config{
		Addr:          fileCfg.ListenAddr(),
		Credentials:   credentials,
		Recorder:      recorder,
		Actions:       store,
		Executor:      input,
		ClientTimeout: fileCfg.ClientTimeout(),
		Logger:        serverLogger,
	})
	if err := <-srv.StartAsync(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer srv.Stop()

	control := ipc.NewControlSocketServer(cfg.IPCSocket, srv.LocalHandler(), serverLogger)
	if err := control.Start(); err != nil {
		fmt.Fprintf(stderr, "Warning: control socket disabled: %v\n", err)
	} else {
		defer control.Stop()
	}

	if cfg.MdnsEnabled {
		advertiser := mdns.NewAdvertiser(mdns.Config{Port: srv.Port(), Name: cfg.MdnsName})
		if err := advertiser.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: mDNS advertisement disabled: %v\n", err)
		} else {
			defer advertiser.Stop()
		}
	}

	pidFilePath := cfg.PIDFile
	if pidFilePath == "" {
		if dir, err := config.DefaultDir(); err == nil {
			pidFilePath = filepath.Join(dir, "host.pid")
		}
	}
	if pidFilePath != "" {
		if err := writePIDFile(pidFilePath); err != nil {
			fmt.Fprintf(stderr, "Warning: %v\n", err)
		} else {
			defer removePIDFile(pidFilePath, stderr)
		}
	}

	cred, err := credentials.Issue()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	target := pairing.ConnectionTarget{
		Address: advertiseIP(cfg.IP, stderr),
		Port:    srv.Port(),
		Secret:  cred.Value,
	}
	payload := pairing.FormatPayload(fileCfg.PayloadScheme(), target)
	if cfg.QR {
		DisplayQRCode(stdout, payload, cred.Value, cred.ExpiresAt, target.HostPort())
	} else {
		DisplayCredential(stdout, payload, cred.Value, cred.ExpiresAt, target.HostPort())
	}

	fmt.Fprintf(stdout, "Host listening on %s. Press Ctrl+C to stop.\n", fileCfg.ListenAddr())
	fmt.Fprintf(stdout, "Run 'sideassist credential' for a fresh password once this one expires.\n")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	fmt.Fprintf(stdout, "\nReceived signal %v, stopping...\n", sig)

	// Deferred cleanup runs in reverse order of creation.
	return 0
}

// mergeHostConfig folds CLI flags into the file config. Explicit CLI flags
// always win; empty flags take the file value.
func mergeHostConfig(cfg *HostStartConfig, fileCfg *config.Config, explicitFlags map[string]bool) {
	if cfg.Addr != "" {
		fileCfg.Addr = cfg.Addr
	}
	if cfg.Port != 0 {
		fileCfg.Port = cfg.Port
	}
	if cfg.Store == "" {
		cfg.Store = fileCfg.Store
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if cfg.CredentialExpiry != 0 {
		fileCfg.CredentialExpirySeconds = cfg.CredentialExpiry
	}
	if cfg.ClientTimeout != 0 {
		fileCfg.ClientTimeoutSeconds = cfg.ClientTimeout
	}
	if cfg.Scheme != "" {
		fileCfg.Scheme = cfg.Scheme
	}
	if !explicitFlags["mdns"] {
		cfg.MdnsEnabled = fileCfg.MdnsEnabled
	}
	if cfg.IPCSocket == "" {
		cfg.IPCSocket = fileCfg.IPCSocket
	}
	if cfg.IPCSocket == "" {
		if path, err := config.DefaultSocketPath(); err == nil {
			cfg.IPCSocket = path
		}
	}
}

// componentLogger returns the logger for chatty components: recording
// transitions and executed input. They only log at debug level.
func componentLogger(level string, w io.Writer) *log.Logger {
	if level == "debug" {
		return log.New(w, "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// startDaemon re-executes the current binary in the background. Go has no
// fork, so the child is recognized by daemonEnvVar.
func startDaemon(cfg *HostStartConfig, args []string, stdout, stderr io.Writer) int {
	logFilePath, err := resolveLogFilePath(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0700); err != nil {
		fmt.Fprintf(stderr, "Error: failed to create log directory: %v\n", err)
		return 1
	}
	logFileHandle, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open log file: %v\n", err)
		return 1
	}
	defer logFileHandle.Close()

	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to get executable path: %v\n", err)
		return 1
	}

	childArgs := append([]string{"host", "start"}, args...)
	cmd := exec.Command(exe, childArgs...)
	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle
	cmd.Env = append(os.Environ(), daemonEnvVar+"=1")

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(stderr, "Error: failed to start daemon: %v\n", err)
		return 1
	}

	childDone := make(chan error, 1)
	go func() {
		childDone <- cmd.Wait()
	}()

	// A child that survives startup is assumed healthy.
	select {
	case err := <-childDone:
		if err != nil {
			fmt.Fprintf(stderr, "Error: daemon failed to start (exit: %v, check log: %s)\n", err, logFilePath)
		} else {
			fmt.Fprintf(stderr, "Error: daemon exited unexpectedly (check log: %s)\n", logFilePath)
		}
		return 1
	case <-time.After(2 * time.Second):
		fmt.Fprintf(stdout, "Daemon started (pid %d). Logging to: %s\n", cmd.Process.Pid, logFilePath)
		return 0
	}
}

func runHostStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("host status", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.sideassist/config.toml)")
	socket := fs.String("socket", "", "Path to the host control socket (default: ~/.sideassist/control.sock)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sideassist host status [options]\n\nShow the current status of the running host.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	_, socketPath, err := localSettings(*configPath, *socket)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	client := hostclient.NewUnix(socketPath, hostclient.Options{})
	ctx := context.Background()

	status, err := client.Status(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	recordingStatus, err := client.RecordingStatus(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cred, err := client.Credential(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	writeHostStatusOutput(stdout, status, recordingStatus, cred, time.Now())
	return 0
}

// writeHostStatusOutput renders human-readable host status output.
func writeHostStatusOutput(stdout io.Writer, status protocol.StatusResponse, rec protocol.RecordingStatus, cred *protocol.CredentialResponse, now time.Time) {
	running := "no"
	if status.Running {
		running = "yes"
	}
	fmt.Fprintf(stdout, "Running:      %s\n", running)
	fmt.Fprintf(stdout, "Port:         %d\n", status.Port)
	fmt.Fprintf(stdout, "Companions:   %d\n", status.ConnectedClientCount)
	fmt.Fprintf(stdout, "Recording:    %s\n", rec.Status)
	if rec.Name != "" {
		fmt.Fprintf(stdout, "  Action:     %s (%d keys)\n", rec.Name, rec.RecordedKeysCount)
	}
	if cred == nil {
		fmt.Fprintf(stdout, "Password:     none (run 'sideassist credential')\n")
		return
	}
	remaining := cred.ExpiresAt.Sub(now).Truncate(time.Second)
	if remaining < 0 {
		remaining = 0
	}
	fmt.Fprintf(stdout, "Password:     live, expires in %s\n", remaining)
}

// writePIDFile writes the current process ID to the specified file.
// Creates the parent directory if it doesn't exist.
func writePIDFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	pid := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(path, []byte(pid), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// removePIDFile removes the PID file if it exists.
// Errors are reported but not returned; cleanup should not fail the shutdown.
func removePIDFile(path string, stderr io.Writer) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(stderr, "Warning: failed to remove PID file: %v\n", err)
	}
}

// resolveLogFilePath returns the log file path, using ~/.sideassist/host.log
// if not specified.
func resolveLogFilePath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	dir, err := config.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "host.log"), nil
}
