//go:build linux

package reactor

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/AKMHZJ/localserver/pkg/config"
)

// Listener is a bound, non-blocking server socket registered with the epoll
// instance exactly once.
type Listener struct {
	fd   int
	spec *config.ListenerSpec
}

// bindListener opens, binds and starts listening on the spec's endpoint.
func bindListener(spec *config.ListenerSpec) (*Listener, error) {
	sa, family, err := sockaddrFor(spec.Host, spec.Port)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket %s: %w", spec.Addr(), err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt %s: %w", spec.Addr(), err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", spec.Addr(), err)
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen %s: %w", spec.Addr(), err)
	}
	return &Listener{fd: fd, spec: spec}, nil
}

func sockaddrFor(host string, port int) (unix.Sockaddr, int, error) {
	if host == "" || host == "localhost" {
		host = "127.0.0.1"
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, fmt.Errorf("invalid listen address %q", host)
	}
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6, nil
}

// remoteIP formats the peer address of an accepted socket.
func remoteIP(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(v.Addr[:]).String()
	case *unix.SockaddrInet6:
		return net.IP(v.Addr[:]).String()
	default:
		return ""
	}
}
