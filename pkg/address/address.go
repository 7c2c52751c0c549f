// Package address describes the remote endpoints a connection pool dials.
// One Endpoint corresponds to one Pool (spec.md: "the pool owns a set of
// connections for one endpoint").
package address

import (
	"strconv"
	"strings"
	"time"
)

// Endpoint identifies one remote server and the options governing the
// pool built on top of it.
type Endpoint struct {
	ID   string `yaml:"id"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	TLSEnabled      bool `yaml:"tls_enabled"`
	TLSMatchHost    bool `yaml:"tls_match_hostname"`
	TLSInsecureSkip bool `yaml:"tls_insecure_skip_verify"`

	MaxPoolSize       int           `yaml:"max_pool_size"`
	MinPoolSize       int           `yaml:"min_pool_size"`
	MaxConnecting     int           `yaml:"max_connecting"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	SocketTimeout     time.Duration `yaml:"socket_timeout"`
	WaitQueueTimeout  time.Duration `yaml:"wait_queue_timeout"`
	WaitQueueMultiple int           `yaml:"wait_queue_multiple"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	PauseEnabled      *bool         `yaml:"pause_enabled"`
}

// Addr returns the dialable host:port for this endpoint.
func (e *Endpoint) Addr() string {
	if e.IsUnixSocket() {
		return e.Host
	}
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// IsUnixSocket reports whether this endpoint should be dialed as a UNIX
// domain socket rather than TCP, per spec.md §6's dialer contract.
func (e *Endpoint) IsUnixSocket() bool {
	return strings.HasSuffix(e.Host, ".sock")
}

// IsLocalhost reports whether the host is the literal "localhost", used
// by the dialer to skip a redundant IPv6 dial attempt.
func (e *Endpoint) IsLocalhost() bool {
	return e.Host == "localhost"
}
