// Package main provides the sideassist command line.
// This file centralizes address and socket selection for CLI commands.
package main

import (
	"fmt"
	"io"

	"github.com/sideassist/sideassist/internal/config"
)

// advertiseIP picks the address a companion should dial. An explicit value
// wins; otherwise Tailscale, then the LAN address, then loopback.
func advertiseIP(explicit string, stderr io.Writer) string {
	if explicit != "" {
		return explicit
	}
	if ip := GetTailscaleIP(); ip != "" {
		return ip
	}
	if ip := GetPreferredOutboundIP(); ip != "" {
		return ip
	}
	fmt.Fprintf(stderr, "Warning: could not detect network IP, using localhost\n")
	return "127.0.0.1"
}

// localSettings loads the config file and resolves the control socket path.
// A non-empty socket flag overrides the file.
func localSettings(configPath, socketFlag string) (*config.Config, string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}
	socket := socketFlag
	if socket == "" {
		socket = cfg.IPCSocket
	}
	if socket == "" {
		socket, err = config.DefaultSocketPath()
		if err != nil {
			return nil, "", fmt.Errorf("failed to determine control socket path: %w", err)
		}
	}
	return cfg, socket, nil
}
