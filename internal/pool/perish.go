package pool

import (
	"time"

	"github.com/joao-brasil/connpool/internal/events"
)

// perished implements spec.md §4.5's ordered perishability check,
// evaluated each time an idle connection is popped for reuse: idle-time
// first (cheapest, no I/O), then generation staleness, then — rate
// limited by CheckInterval — a socket-liveness probe. Grounded in the
// teacher's popIdle, which checked idle age only; the generation and
// liveness stages are added for spec.md's wider staleness model.
func (p *Pool) perished(c *Connection) (events.Reason, bool) {
	p.mu.Lock()
	maxIdle := p.opts.MaxIdleTime
	currentGen := p.generation
	interval := p.opts.checkInterval()
	p.mu.Unlock()

	if maxIdle > 0 && c.idleDuration() > maxIdle {
		return events.ReasonIdle, true
	}

	if c.generationOf() != currentGen {
		return events.ReasonStale, true
	}

	if !c.dueForLivenessCheck(interval) {
		return "", false
	}

	if !socketAlive(c) {
		return events.ReasonError, true
	}
	return "", false
}

// socketAlive is a cheap, near-non-blocking liveness signal: a one-byte
// read with a deadline one millisecond ahead. If the remote end closed while the
// connection sat idle, the read returns EOF or a reset instead of a
// timeout. Any unexpected byte means the peer sent something while idle
// (a protocol violation for this system), so the connection is treated
// as unusable rather than silently dropping the data.
func socketAlive(c *Connection) bool {
	conn := c.Conn()
	if conn == nil {
		return false
	}
	_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	_ = conn.SetReadDeadline(time.Time{})

	if n > 0 {
		return false
	}
	if err == nil {
		return true
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return true
	}
	return false
}
