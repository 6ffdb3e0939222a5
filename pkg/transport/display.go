// Package transport opens the byte streams a connection runs over: local
// and TCP display sockets, and binary websocket streams through a bridge.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	// X11TCPPort is the TCP port of display 0.
	X11TCPPort = 6000
	// UnixSocketDir holds the local display sockets, one X<n> per display.
	UnixSocketDir = "/tmp/.X11-unix"
)

var ErrInvalidDisplay = errors.New("transport: invalid display name")

// Display is a parsed display name of the form [host]:number[.screen].
// An empty host or "unix" selects the local socket; a host starting with
// a slash is the path of the socket itself.
type Display struct {
	Host   string
	Number int
	Screen int
}

func ParseDisplay(name string) (Display, error) {
	colon := strings.LastIndexByte(name, ':')
	if colon < 0 {
		return Display{}, fmt.Errorf("%w: %q has no display number", ErrInvalidDisplay, name)
	}
	d := Display{Host: name[:colon]}
	rest := name[colon+1:]
	number, screen, hasScreen := strings.Cut(rest, ".")
	var err error
	if d.Number, err = strconv.Atoi(number); err != nil || d.Number < 0 {
		return Display{}, fmt.Errorf("%w: %q has a bad display number", ErrInvalidDisplay, name)
	}
	if hasScreen {
		if d.Screen, err = strconv.Atoi(screen); err != nil || d.Screen < 0 {
			return Display{}, fmt.Errorf("%w: %q has a bad screen number", ErrInvalidDisplay, name)
		}
	}
	return d, nil
}

// Address returns the network and address Dial connects to.
func (d Display) Address() (string, string) {
	switch {
	case strings.HasPrefix(d.Host, "/"):
		return "unix", d.Host
	case d.Host == "" || d.Host == "unix":
		return "unix", filepath.Join(UnixSocketDir, "X"+strconv.Itoa(d.Number))
	}
	return "tcp", net.JoinHostPort(d.Host, strconv.Itoa(X11TCPPort+d.Number))
}

func (d Display) String() string {
	return d.Host + ":" + strconv.Itoa(d.Number) + "." + strconv.Itoa(d.Screen)
}

// Dial connects to the named display, retrying with exponential backoff up
// to maxRetries times after the first attempt.
func Dial(ctx context.Context, name string, maxRetries int, logger *logrus.Logger) (net.Conn, error) {
	d, err := ParseDisplay(name)
	if err != nil {
		return nil, err
	}
	network, address := d.Address()

	var (
		conn   net.Conn
		dialer net.Dialer
	)
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		c, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			logger.Debug("dial ", network, " ", address, " attempt ", attempt, ": ", err)
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(),
		uint64(maxRetries),
	), ctx))
	if err != nil {
		return nil, fmt.Errorf("dial display %s: %w", name, err)
	}
	return conn, nil
}
