// Package auth implements the authentication collaborator spec.md §1
// and §6 describe as external to the pool: "authentication mechanism
// negotiation and execution". The credential shape is lifted from the
// fields the teacher's TDS Login7 parser extracted (username/password),
// re-expressed over internal/wire.Codec instead of TDS byte offsets.
package auth

import (
	"fmt"
	"net"

	"github.com/joao-brasil/connpool/internal/wire"
)

// Credential is the minimal identity a connection authenticates with.
type Credential struct {
	Mechanism string
	Username  string
	Password  string
}

// Key identifies a credential for the purpose of Connection.authset
// membership (spec.md §4.6 step 4: "for each credential not already in
// authset, authenticate").
func (c Credential) Key() string {
	return c.Mechanism + ":" + c.Username
}

// Authenticator executes one authentication mechanism against an
// established, handshaked connection.
type Authenticator interface {
	Authenticate(conn net.Conn, codec wire.Codec, cred Credential) error
}

// PasswordAuthenticator implements a single password-based mechanism:
// send the credential as a command, expect a non-error reply.
type PasswordAuthenticator struct{}

// Authenticate sends the credential over the wire codec and fails on
// any server-reported error, per spec.md §4.6.
func (PasswordAuthenticator) Authenticate(conn net.Conn, codec wire.Codec, cred Credential) error {
	if cred.Username == "" {
		return nil
	}
	args := make([]byte, 0, len(cred.Username)+len(cred.Password)+2)
	args = append(args, byte(len(cred.Username)))
	args = append(args, []byte(cred.Username)...)
	args = append(args, byte(len(cred.Password)))
	args = append(args, []byte(cred.Password)...)

	if _, err := codec.Command(conn, 0, "authenticate", args); err != nil {
		return fmt.Errorf("auth: authenticating %q: %w", cred.Username, err)
	}
	return nil
}
