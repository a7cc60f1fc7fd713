//go:build linux

package reactor

import (
	"time"

	"github.com/AKMHZJ/localserver/pkg/httpcodec"
)

// Conn is one live client socket with its parser state and buffers. Created
// on accept; destroyed when closing with an empty outbound buffer, or when
// the idle timeout elapses.
type Conn struct {
	fd           int
	ln           *Listener
	parser       *httpcodec.Parser
	out          []byte
	lastActivity time.Time
	closing      bool
	writeArmed   bool
	remoteIP     string
}

func (c *Conn) touch() { c.lastActivity = time.Now() }

// enqueue appends serialized response bytes to the outbound buffer.
func (c *Conn) enqueue(b []byte) { c.out = append(c.out, b...) }

// idleDeadline is the instant at which the connection times out.
func (c *Conn) idleDeadline(idle time.Duration) time.Time {
	return c.lastActivity.Add(idle)
}
