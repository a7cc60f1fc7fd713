//go:build linux

package reactor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/AKMHZJ/localserver/pkg/config"
	"github.com/AKMHZJ/localserver/pkg/guard"
	"github.com/AKMHZJ/localserver/pkg/httpcodec"
	"github.com/AKMHZJ/localserver/pkg/logger"
	"github.com/AKMHZJ/localserver/pkg/router"
	"github.com/AKMHZJ/localserver/pkg/telemetry"
)

const readChunk = 4096

// Reactor owns every listening socket and live connection and drives them
// from a single goroutine over one epoll instance. The only blocking call is
// epoll_wait; reads run until EAGAIN or a completed request, writes until
// EAGAIN or an empty outbound buffer.
type Reactor struct {
	epfd      int
	listeners map[int]*Listener
	conns     map[int]*Conn
	router    *router.Router
	limiter   *guard.AcceptLimiter
	idle      time.Duration
	tick      time.Duration
}

// New creates the epoll instance.
func New(rt *router.Router, limiter *guard.AcceptLimiter, idle, tick time.Duration) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Reactor{
		epfd:      epfd,
		listeners: map[int]*Listener{},
		conns:     map[int]*Conn{},
		router:    rt,
		limiter:   limiter,
		idle:      idle,
		tick:      tick,
	}, nil
}

// Bind opens every listener and registers it for read readiness. It is
// all-or-nothing: the first failure closes everything already bound.
func (r *Reactor) Bind(specs []*config.ListenerSpec) error {
	for _, spec := range specs {
		ln, err := bindListener(spec)
		if err != nil {
			r.Close()
			return err
		}
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(ln.fd)}
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, ln.fd, &ev); err != nil {
			unix.Close(ln.fd)
			r.Close()
			return fmt.Errorf("epoll_ctl add listener %s: %w", spec.Addr(), err)
		}
		r.listeners[ln.fd] = ln
		logger.Info("listening", "addr", spec.Addr(), "vhosts", len(spec.VHost))
	}
	return nil
}

// Addrs returns the actual bound address of every listener, resolving
// ephemeral ports.
func (r *Reactor) Addrs() []string {
	var out []string
	for _, ln := range r.listeners {
		sa, err := unix.Getsockname(ln.fd)
		if err != nil {
			continue
		}
		switch v := sa.(type) {
		case *unix.SockaddrInet4:
			out = append(out, fmt.Sprintf("%s:%d", remoteIP(v), v.Port))
		case *unix.SockaddrInet6:
			out = append(out, fmt.Sprintf("[%s]:%d", remoteIP(v), v.Port))
		}
	}
	return out
}

// Run drives the event loop until ctx is cancelled. Each iteration waits at
// most min(tick, soonest connection deadline), dispatches readiness events,
// then reaps idle and finished connections.
func (r *Reactor) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, 128)
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		default:
		}

		n, err := unix.EpollWait(r.epfd, events, r.pollTimeoutMs())
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			r.Close()
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)
			if ln, ok := r.listeners[fd]; ok {
				r.acceptLoop(ln)
				continue
			}
			c, ok := r.conns[fd]
			if !ok {
				continue
			}
			if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				r.drop(c)
				continue
			}
			if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
				r.handleReadable(c)
			}
			if _, alive := r.conns[fd]; alive && ev.Events&unix.EPOLLOUT != 0 {
				r.handleWritable(c)
			}
		}

		r.reap()
	}
}

// pollTimeoutMs is min(tick, soonest idle deadline), in milliseconds.
func (r *Reactor) pollTimeoutMs() int {
	timeout := r.tick
	now := time.Now()
	for _, c := range r.conns {
		if d := c.idleDeadline(r.idle).Sub(now); d < timeout {
			timeout = d
		}
	}
	if timeout < 0 {
		timeout = 0
	}
	return int(timeout / time.Millisecond)
}

// acceptLoop accepts until the listener would block.
func (r *Reactor) acceptLoop(ln *Listener) {
	for {
		fd, sa, err := unix.Accept4(ln.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR {
				continue
			}
			logger.Warn("accept_failed", "addr", ln.spec.Addr(), "error", err)
			return
		}
		ip := remoteIP(sa)
		if !r.limiter.Allow(ip) {
			unix.Close(fd)
			telemetry.ConnectionsRejected.Inc()
			continue
		}
		ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP, Fd: int32(fd)}
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			logger.Warn("epoll_ctl_add_failed", "error", err)
			unix.Close(fd)
			continue
		}
		c := &Conn{
			fd:       fd,
			ln:       ln,
			parser:   httpcodec.NewParser(ln.spec.MaxBodySize(), router.EffectiveBodyLimit(ln.spec)),
			remoteIP: ip,
		}
		c.touch()
		r.conns[fd] = c
		telemetry.ConnectionsAccepted.Inc()
		telemetry.ActiveConnections.Inc()
	}
}

// handleReadable drains the socket into the parser until EAGAIN, peer close
// or a completed request.
func (r *Reactor) handleReadable(c *Conn) {
	buf := make([]byte, readChunk)
	for {
		n, err := unix.Read(c.fd, buf)
		if n > 0 {
			c.touch()
			telemetry.BytesRead.Add(float64(n))
			if c.closing {
				// response already queued; discard the rest
				continue
			}
			c.parser.Feed(buf[:n])
			if c.parser.Done() {
				r.dispatch(c)
				return
			}
			if c.parser.State() == httpcodec.StateError {
				r.rejectRequest(c)
				return
			}
			continue
		}
		if n == 0 {
			// peer closed; a request already buffered may still complete
			if c.parser.Done() {
				r.dispatch(c)
				return
			}
			c.closing = true
			return
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err == unix.EINTR {
			continue
		}
		logger.Debug("read_failed", "fd", c.fd, "error", err)
		r.drop(c)
		return
	}
}

// dispatch routes a completed request and queues the serialized response.
// Connections are one-request-per-connection: the reply carries
// Connection: close and the socket is flushed then dropped.
func (r *Reactor) dispatch(c *Conn) {
	req := c.parser.Request()
	resp := r.router.Handle(req, c.ln.spec, c.remoteIP)
	telemetry.CountRequest(resp.Status)
	if resp.Status == 504 {
		telemetry.CGITimeouts.Inc()
	}
	c.enqueue(resp.Serialize())
	c.closing = true
	c.parser.Reset(c.ln.spec.MaxBodySize())
	r.armWrite(c)
}

// rejectRequest answers a parser failure with 400 or 413 and closes after
// the flush. The virtual host's error page applies when the Host header was
// already parsed.
func (r *Reactor) rejectRequest(c *Conn) {
	status := 400
	if c.parser.Err() == httpcodec.ErrBodyTooLarge {
		status = 413
	}
	vhost := router.VHostFor(c.ln.spec, c.parser.Request().Host())
	resp := router.ErrorResponse(status, vhost)
	telemetry.CountRequest(status)
	c.enqueue(resp.Serialize())
	c.closing = true
	r.armWrite(c)
}

// armWrite adds write interest for the connection.
func (r *Reactor) armWrite(c *Conn) {
	if c.writeArmed {
		return
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP, Fd: int32(c.fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, c.fd, &ev); err != nil {
		logger.Debug("epoll_ctl_mod_failed", "fd", c.fd, "error", err)
		r.drop(c)
		return
	}
	c.writeArmed = true
}

// handleWritable drains the outbound buffer until empty or EAGAIN.
func (r *Reactor) handleWritable(c *Conn) {
	for len(c.out) > 0 {
		n, err := unix.Write(c.fd, c.out)
		if n > 0 {
			c.touch()
			telemetry.BytesWritten.Add(float64(n))
			c.out = c.out[n:]
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err == unix.EINTR {
			continue
		}
		logger.Debug("write_failed", "fd", c.fd, "error", err)
		r.drop(c)
		return
	}
	// buffer drained: clear write interest, drop if closing
	if c.closing {
		r.drop(c)
		return
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP, Fd: int32(c.fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, c.fd, &ev); err != nil {
		r.drop(c)
		return
	}
	c.writeArmed = false
}

// reap closes idle connections and finished closers.
func (r *Reactor) reap() {
	now := time.Now()
	for _, c := range r.conns {
		switch {
		case c.closing && len(c.out) == 0:
			r.drop(c)
		case now.After(c.idleDeadline(r.idle)):
			logger.Debug("idle_timeout", "fd", c.fd, "remote", c.remoteIP)
			telemetry.ConnectionsReaped.Inc()
			r.drop(c)
		}
	}
}

// drop deregisters and closes a connection.
func (r *Reactor) drop(c *Conn) {
	if _, ok := r.conns[c.fd]; !ok {
		return
	}
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	_ = unix.Close(c.fd)
	delete(r.conns, c.fd)
	telemetry.ActiveConnections.Dec()
}

// Close releases every socket and the epoll instance.
func (r *Reactor) Close() {
	for fd, c := range r.conns {
		_ = unix.Close(c.fd)
		delete(r.conns, fd)
		telemetry.ActiveConnections.Dec()
	}
	for fd, ln := range r.listeners {
		_ = unix.Close(ln.fd)
		delete(r.listeners, fd)
	}
	if r.epfd >= 0 {
		_ = unix.Close(r.epfd)
		r.epfd = -1
	}
}
