package conn

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"

	"github.com/godomain/godomain/logging"
)

// Operation types a modification request entry.
type Operation int

const (
	OpAdd Operation = iota
	OpDelete
	OpReplace
	OpIncrement
)

func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpReplace:
		return "replace"
	case OpIncrement:
		return "increment"
	default:
		return "unknown"
	}
}

// Modification is one operation-typed attribute change. Value order is
// preserved end to end.
type Modification struct {
	Name   string
	Op     Operation
	Values []string
}

// Transport submits DN-addressed modification requests to the directory.
type Transport interface {
	Add(ctx context.Context, dn string, mods []Modification) error
	Delete(ctx context.Context, dn string) error
	Modify(ctx context.Context, dn string, mods []Modification) error
	Rename(ctx context.Context, oldDN, newRDN, newParent string, deleteOldRDN bool) error
}

// ErrNotConnected is returned when a transport call is made before the
// connection reached a usable state.
var ErrNotConnected = errors.New("conn: not connected")

// LDAPTransport is the default Transport over the context's go-ldap
// handle. Failures are forwarded to the context's error callback before
// being returned.
type LDAPTransport struct {
	cc  *Context
	log logging.Logger
}

// NewLDAPTransport creates the default transport for a connection context.
func NewLDAPTransport(cc *Context, log logging.Logger) *LDAPTransport {
	return &LDAPTransport{cc: cc, log: log.Component("transport")}
}

func (t *LDAPTransport) Add(_ context.Context, dn string, mods []Modification) error {
	if t.cc.Conn == nil {
		return t.report("add", dn, ErrNotConnected)
	}
	req := ldap.NewAddRequest(dn, t.cc.ClientControls)
	for _, mod := range mods {
		req.Attribute(mod.Name, mod.Values)
	}
	if err := t.cc.Conn.Add(req); err != nil {
		return t.report("add", dn, err)
	}
	return nil
}

func (t *LDAPTransport) Delete(_ context.Context, dn string) error {
	if t.cc.Conn == nil {
		return t.report("delete", dn, ErrNotConnected)
	}
	req := ldap.NewDelRequest(dn, t.cc.ClientControls)
	if err := t.cc.Conn.Del(req); err != nil {
		return t.report("delete", dn, err)
	}
	return nil
}

func (t *LDAPTransport) Modify(_ context.Context, dn string, mods []Modification) error {
	if t.cc.Conn == nil {
		return t.report("modify", dn, ErrNotConnected)
	}
	req := ldap.NewModifyRequest(dn, t.cc.ClientControls)
	applyModifications(req, mods)
	if err := t.cc.Conn.Modify(req); err != nil {
		return t.report("modify", dn, err)
	}
	return nil
}

func (t *LDAPTransport) Rename(_ context.Context, oldDN, newRDN, newParent string, deleteOldRDN bool) error {
	if t.cc.Conn == nil {
		return t.report("rename", oldDN, ErrNotConnected)
	}
	req := ldap.NewModifyDNRequest(oldDN, newRDN, deleteOldRDN, newParent)
	if err := t.cc.Conn.ModifyDN(req); err != nil {
		return t.report("rename", oldDN, err)
	}
	return nil
}

// applyModifications maps operation-typed modifications onto a go-ldap
// modify request, preserving order within each operation.
func applyModifications(req *ldap.ModifyRequest, mods []Modification) {
	for _, mod := range mods {
		switch mod.Op {
		case OpAdd:
			req.Add(mod.Name, mod.Values)
		case OpDelete:
			req.Delete(mod.Name, mod.Values)
		case OpReplace:
			req.Replace(mod.Name, mod.Values)
		case OpIncrement:
			value := ""
			if len(mod.Values) > 0 {
				value = mod.Values[0]
			}
			req.Increment(mod.Name, value)
		}
	}
}

func (t *LDAPTransport) report(operation, dn string, err error) error {
	t.log.Error().Err(err).Str("operation", operation).Str("dn", dn).Msg("transport operation failed")
	t.cc.ReportError(operation, dn, err)
	return fmt.Errorf("conn: %s %s: %w", operation, dn, err)
}
