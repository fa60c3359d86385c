package conn

import (
	"github.com/go-ldap/ldap/v3"

	"github.com/godomain/godomain/arena"
)

// ErrorCallback receives transport and state-machine failures. A single
// slot per connection; installing a new callback replaces the old one.
type ErrorCallback func(operation, dn string, err error)

// Handle is the owning session as seen from the connection context. The
// back-reference is installed by session assembly after the connection is
// configured.
type Handle interface {
	Arena() *arena.Arena
}

// BindParams is the authentication identity used by the state machine.
type BindParams struct {
	DN string

	// Credential is the bind password. nil means no credential was
	// supplied; the zero-length and nil states are never mixed.
	Credential []byte
}

// Context is the mutable runtime state of one directory connection.
type Context struct {
	// Conn is the underlying directory handle, nil until the state
	// machine establishes it.
	Conn *ldap.Conn

	Bind BindParams

	ClientControls []ldap.Control
	ServerControls []ldap.Control

	// Machine advances the connection toward a usable state. Installed
	// by the configurator.
	Machine StateMachine

	// Handle back-references the owning session.
	Handle Handle

	// OnError is the installed error callback, nil when absent.
	OnError ErrorCallback
}

// Close releases the directory handle. Safe to call on a context that
// never connected.
func (c *Context) Close() error {
	if c == nil || c.Conn == nil {
		return nil
	}
	err := c.Conn.Close()
	c.Conn = nil
	return err
}

// ReportError forwards a failure to the installed error callback, if any.
func (c *Context) ReportError(operation, dn string, err error) {
	if c == nil || c.OnError == nil || err == nil {
		return
	}
	c.OnError(operation, dn, err)
}
