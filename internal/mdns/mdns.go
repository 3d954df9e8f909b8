// Package mdns provides optional mDNS/Bonjour service advertisement.
//
// When enabled, the host advertises itself on the local network using
// DNS-SD so a companion can offer it in a picker instead of requiring the
// address to be typed or scanned. The advertisement includes:
//   - Service type: _sideassist._tcp
//   - TXT records with protocol version and host name
//
// Discovery only reveals presence; the password is still required.
package mdns

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type for sideassist hosts.
const ServiceType = "_sideassist._tcp"

// ProtocolVersion identifies the HTTP API revision advertised to companions.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the server port to advertise.
	Port int

	// Name is a human-readable name for this host.
	// Defaults to the system hostname if empty.
	Name string
}

// Advertiser manages mDNS/DNS-SD service registration.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates a new mDNS advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{
		config: cfg,
	}
}

// Start begins advertising the service via mDNS.
// Start is safe to call multiple times; subsequent calls are no-ops
// if already running.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}
	if a.config.Port <= 0 || a.config.Port > 65535 {
		return fmt.Errorf("mdns register: invalid port %d", a.config.Port)
	}

	name := instanceName(a.config.Name)

	server, err := zeroconf.Register(
		name,
		ServiceType,
		"local.",
		a.config.Port,
		txtRecords(name),
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop unregisters the service. It is safe to call Stop multiple times or
// on an advertiser that was never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning returns true if the advertiser is currently running.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

func instanceName(name string) string {
	if name != "" {
		return name
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "sideassist"
	}
	return hostname
}

func txtRecords(name string) []string {
	return []string{
		"version=" + ProtocolVersion,
		"name=" + name,
	}
}

// DiscoveredHost is a host found via mDNS discovery.
type DiscoveredHost struct {
	// Name is the human-readable name of the host.
	Name string

	// Host is the IP address.
	Host string

	// Port is the server port.
	Port int

	// Version is the advertised protocol version.
	Version string
}

// Address returns host:port suitable for a pairing payload.
func (h DiscoveredHost) Address() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// hostFromEntry converts a resolved service entry.
func hostFromEntry(entry *zeroconf.ServiceEntry) DiscoveredHost {
	host := DiscoveredHost{
		Name: entry.Instance,
		Port: entry.Port,
	}

	// Companions pair over IPv4 more reliably.
	if len(entry.AddrIPv4) > 0 {
		host.Host = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		host.Host = entry.AddrIPv6[0].String()
	}

	for _, txt := range entry.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case "version":
			host.Version = value
		case "name":
			host.Name = value
		}
	}
	return host
}

// Discover browses for sideassist hosts until ctx is done.
func Discover(ctx context.Context) ([]DiscoveredHost, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		hosts []DiscoveredHost
		mu    sync.Mutex
		wg    sync.WaitGroup
	)

	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		seen := make(map[string]bool)
		for entry := range entries {
			host := hostFromEntry(entry)
			if host.Host == "" || seen[host.Address()] {
				continue
			}
			seen[host.Address()] = true

			mu.Lock()
			hosts = append(hosts, host)
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-ctx.Done()

	// zeroconf closes entries once ctx is done.
	wg.Wait()

	return hosts, nil
}
