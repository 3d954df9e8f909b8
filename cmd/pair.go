package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/sideassist/sideassist/internal/hostclient"
	"github.com/sideassist/sideassist/internal/pairing"
	"github.com/sideassist/sideassist/internal/protocol"
)

// CredentialConfig holds the parsed flags for the credential command.
type CredentialConfig struct {
	Config string
	Socket string
	IP     string
	New    bool
	QR     bool
}

func runCredential(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("credential", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &CredentialConfig{}
	fs.StringVar(&cfg.Config, "config", "", "Path to config file (default: ~/.sideassist/config.toml)")
	fs.StringVar(&cfg.Socket, "socket", "", "Path to the host control socket (default: ~/.sideassist/control.sock)")
	fs.StringVar(&cfg.IP, "ip", "", "Address the companion should dial (default: Tailscale or LAN IP)")
	fs.BoolVar(&cfg.New, "new", false, "Issue a new password even if one is live")
	fs.BoolVar(&cfg.QR, "qr", false, "Display the pairing payload as a QR code")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sideassist credential [options]\n\nShow the host's pairing password, issuing one if none is live.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nIssuing a new password invalidates the previous one immediately.\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	fileCfg, socket, err := localSettings(cfg.Config, cfg.Socket)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	client := hostclient.NewUnix(socket, hostclient.Options{})
	ctx := context.Background()

	status, err := client.Status(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "\nThe host must be running to issue a password.\n")
		fmt.Fprintf(stderr, "Start it with: sideassist host start\n")
		return 1
	}

	cred, err := currentOrIssue(ctx, client, cfg.New)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	target := pairing.ConnectionTarget{
		Address: advertiseIP(cfg.IP, stderr),
		Port:    status.Port,
		Secret:  cred.Password,
	}
	payload := pairing.FormatPayload(fileCfg.PayloadScheme(), target)

	if cfg.QR {
		DisplayQRCode(stdout, payload, cred.Password, cred.ExpiresAt, target.HostPort())
	} else {
		DisplayCredential(stdout, payload, cred.Password, cred.ExpiresAt, target.HostPort())
	}
	return 0
}

// currentOrIssue returns the live credential, issuing one when none is live
// or when forced.
func currentOrIssue(ctx context.Context, client *hostclient.Client, force bool) (protocol.CredentialResponse, error) {
	if !force {
		current, err := client.Credential(ctx)
		if err != nil {
			return protocol.CredentialResponse{}, err
		}
		if current != nil {
			return *current, nil
		}
	}
	return client.IssueCredential(ctx)
}

// DisplayCredential shows the pairing password and payload as text.
func DisplayCredential(w io.Writer, payload, password string, expiry time.Time, addr string) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         PAIRING PASSWORD")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "           %s\n", FormatCodeWithSpaces(password))
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "  Expires: %s\n", expiry.Local().Format("15:04:05"))
	fmt.Fprintf(w, "  Host:    %s\n", addr)
	fmt.Fprintf(w, "  Link:    %s\n", payload)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  Enter the address and password in the companion,")
	fmt.Fprintln(w, "  or open the link on the companion device.")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// DisplayQRCode shows the pairing payload as a QR code with a plain-text
// fallback. The payload has the form sideassist://connect?ip=..&port=..&password=..
func DisplayQRCode(w io.Writer, payload, password string, expiry time.Time, addr string) {
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Falling back to text display.\n\n")
		DisplayCredential(w, payload, password, expiry, addr)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SCAN TO PAIR")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")

	// Half-block characters keep the code compact in a terminal.
	fmt.Fprint(w, qr.ToSmallString(false))

	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintln(w, "  Plain-text fallback:")
	fmt.Fprintf(w, "  Password: %s\n", FormatCodeWithSpaces(password))
	fmt.Fprintf(w, "  Host:     %s\n", addr)
	fmt.Fprintf(w, "  Expires:  %s\n", expiry.Local().Format("15:04:05"))
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// FormatCodeWithSpaces adds spaces between digits for readability.
// "12345" -> "1 2 3 4 5"
func FormatCodeWithSpaces(code string) string {
	var b strings.Builder
	for i, c := range code {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// GetPreferredOutboundIP returns the machine's preferred outbound IPv4 address.
// Dialing UDP sends no packets; it only asks the routing table which local
// address would be used. Returns empty string if detection fails.
func GetPreferredOutboundIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return localAddr.IP.String()
}

// tailscaleNet is the CGNAT range used by Tailscale (100.64.0.0/10).
var tailscaleNet = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

// GetTailscaleIP scans network interfaces for a Tailscale IP address.
// Returns empty string if no Tailscale IP is found.
func GetTailscaleIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip != nil && tailscaleNet.Contains(ip) {
				return ip.String()
			}
		}
	}

	return ""
}
