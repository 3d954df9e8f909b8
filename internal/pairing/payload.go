// Package pairing turns a scanned QR code, a deep link or manually typed
// fields into a validated ConnectionTarget, and guards the handshake against
// duplicate and overlapping submissions.
package pairing

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	apperrors "github.com/sideassist/sideassist/internal/errors"
)

// DefaultScheme is the scheme the host puts in its QR payloads.
const DefaultScheme = "sideassist"

// payloadHost is the fixed host part of a pairing URL.
const payloadHost = "connect"

// ErrMalformedPayload is wrapped by every validation failure.
var ErrMalformedPayload = errors.New("malformed pairing payload")

var passwordPattern = regexp.MustCompile(`^\d{5}$`)

// ConnectionTarget is the validated address of a host plus its secret.
type ConnectionTarget struct {
	Address string
	Port    int
	Secret  string
}

// HostPort returns address:port.
func (t ConnectionTarget) HostPort() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(t.Port))
}

// BaseURL returns the host's HTTP base URL.
func (t ConnectionTarget) BaseURL() string {
	return "http://" + t.HostPort()
}

func malformed(reason string) error {
	err := apperrors.MalformedPayload(reason)
	err.Cause = ErrMalformedPayload
	return err
}

// clean strips whitespace and control characters anywhere in s. Scanners
// and clipboards routinely wrap long URLs.
func clean(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// ParsePayload parses <scheme>://connect?ip=<addr>&port=<port>&password=<secret>.
// An empty scheme means DefaultScheme. Whitespace is stripped from raw before
// parsing; the prefix must then match exactly and decoded values are
// validated as they are, never repaired.
func ParsePayload(scheme, raw string) (ConnectionTarget, error) {
	if scheme == "" {
		scheme = DefaultScheme
	}
	s := clean(raw)
	if s == "" {
		return ConnectionTarget{}, malformed("empty payload")
	}

	prefix := scheme + "://" + payloadHost + "?"
	if !strings.HasPrefix(s, prefix) {
		return ConnectionTarget{}, malformed("expected " + prefix)
	}
	query := s[len(prefix):]
	if strings.Contains(query, "#") {
		return ConnectionTarget{}, malformed("unexpected fragment")
	}

	q, err := url.ParseQuery(query)
	if err != nil {
		return ConnectionTarget{}, malformed("bad query")
	}
	for _, key := range []string{"ip", "port", "password"} {
		if len(q[key]) > 1 {
			return ConnectionTarget{}, malformed("repeated " + key)
		}
	}
	return validateFields(q.Get("ip"), q.Get("port"), q.Get("password"))
}

// FromFields validates manually entered fields. Whitespace typed around or
// inside a field is dropped first.
func FromFields(ip, port, password string) (ConnectionTarget, error) {
	return validateFields(clean(ip), clean(port), clean(password))
}

func validateFields(ip, port, password string) (ConnectionTarget, error) {
	if ip == "" || port == "" || password == "" {
		return ConnectionTarget{}, malformed("ip, port and password are required")
	}
	if !validIPv4(ip) {
		return ConnectionTarget{}, malformed("invalid ip " + strconv.Quote(ip))
	}
	p, ok := parsePort(port)
	if !ok {
		return ConnectionTarget{}, malformed("invalid port " + strconv.Quote(port))
	}
	if !passwordPattern.MatchString(password) {
		return ConnectionTarget{}, malformed("password must be 5 digits")
	}

	return ConnectionTarget{Address: ip, Port: p, Secret: password}, nil
}

// FormatPayload builds the canonical payload for target. An empty scheme
// uses DefaultScheme.
func FormatPayload(scheme string, target ConnectionTarget) string {
	if scheme == "" {
		scheme = DefaultScheme
	}
	// Fixed key order keeps payloads byte-identical for the duplicate check.
	return fmt.Sprintf("%s://%s?ip=%s&port=%d&password=%s",
		scheme, payloadHost, url.QueryEscape(target.Address), target.Port, url.QueryEscape(target.Secret))
}

func validIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		n, ok := digits(part, 3)
		if !ok || n > 255 {
			return false
		}
	}
	return true
}

func parsePort(s string) (int, bool) {
	n, ok := digits(s, 5)
	if !ok || n < 1 || n > 65535 {
		return 0, false
	}
	return n, true
}

// digits parses an unsigned decimal of at most max digits.
func digits(s string, max int) (int, bool) {
	if s == "" || len(s) > max {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
