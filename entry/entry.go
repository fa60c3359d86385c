// Package entry translates high-level entry operations into DN-addressed,
// operation-typed modification requests and submits them through the
// session's directory transport.
//
// All entry points validate their identity arguments before building
// anything: a nil session or an empty name/parent fails fast with a
// validation error and issues no transport call. Callers are expected to
// invoke these operations only once the connection has reached a usable
// state; no coordination is enforced here.
package entry

import (
	"context"
	"errors"
	"fmt"

	"github.com/godomain/godomain/conn"
	"github.com/godomain/godomain/session"
)

// Validation errors.
var (
	// ErrNilSession is returned when no session handle is supplied.
	ErrNilSession = errors.New("entry: nil session")

	// ErrEmptyArgument is returned when a required identity argument is
	// empty.
	ErrEmptyArgument = errors.New("entry: empty argument")
)

// Attribute is one named, ordered value list supplied by the caller.
type Attribute struct {
	Name   string
	Values []string
}

// BuildRequests converts an attribute list into a modification request
// list. One entry is emitted per attribute, in input order, all typed with
// the supplied operation. Names and value lists are copied so the result
// is independent of the caller's buffers.
func BuildRequests(attrs []Attribute, op conn.Operation) []conn.Modification {
	mods := make([]conn.Modification, 0, len(attrs))
	for _, attr := range attrs {
		values := make([]string, len(attr.Values))
		copy(values, attr.Values)
		mods = append(mods, conn.Modification{
			Name:   attr.Name,
			Op:     op,
			Values: values,
		})
	}
	return mods
}

// DN builds a distinguished name from an RDN prefix, an entry name, and a
// parent DN. An empty prefix omits the "=" separator entirely, addressing
// the entry by a pre-built leftmost component.
func DN(prefix, name, parent string) string {
	if prefix == "" {
		return name + "," + parent
	}
	return prefix + "=" + name + "," + parent
}

// Add creates the entry prefix=name,parent with the given attributes.
func Add(ctx context.Context, s *session.Session, name, parent, prefix string, attrs []Attribute) error {
	if err := validate(s, "add", name, parent); err != nil {
		return err
	}
	dn := DN(prefix, name, parent)
	return s.Transport().Add(ctx, dn, BuildRequests(attrs, conn.OpAdd))
}

// Delete removes the entry prefix=name,parent.
func Delete(ctx context.Context, s *session.Session, name, parent, prefix string) error {
	if err := validate(s, "delete", name, parent); err != nil {
		return err
	}
	return s.Transport().Delete(ctx, DN(prefix, name, parent))
}

// Modify replaces the given attributes on the entry prefix=name,parent.
func Modify(ctx context.Context, s *session.Session, name, parent, prefix string, attrs []Attribute) error {
	if err := validate(s, "modify", name, parent); err != nil {
		return err
	}
	dn := DN(prefix, name, parent)
	return s.Transport().Modify(ctx, dn, BuildRequests(attrs, conn.OpReplace))
}

// ModifyAttrs modifies the given attributes with a caller-supplied
// operation. Unlike Modify, the prefix may be empty, in which case the DN
// is name,parent with no "=" inserted.
func ModifyAttrs(ctx context.Context, s *session.Session, name, parent, prefix string, attrs []Attribute, op conn.Operation) error {
	if err := validate(s, "modify_attrs", name, parent); err != nil {
		return err
	}
	dn := DN(prefix, name, parent)
	return s.Transport().Modify(ctx, dn, BuildRequests(attrs, op))
}

// Rename moves the entry prefix=oldName,parent to prefix=newName under the
// same parent. The new DN handed to the transport is the bare new RDN; the
// parent travels as the transport's separate new-superior argument, and
// the old RDN is always deleted.
func Rename(ctx context.Context, s *session.Session, oldName, newName, parent, prefix string) error {
	if err := validate(s, "rename", oldName, parent); err != nil {
		return err
	}
	if newName == "" {
		log := s.Logger()
		log.Error().Str("operation", "rename").Msg("empty new name")
		return fmt.Errorf("%w: new name", ErrEmptyArgument)
	}
	oldDN := DN(prefix, oldName, parent)
	newRDN := prefix + "=" + newName
	return s.Transport().Rename(ctx, oldDN, newRDN, parent, true)
}

func validate(s *session.Session, operation, name, parent string) error {
	if s == nil {
		return fmt.Errorf("%w: %s", ErrNilSession, operation)
	}
	log := s.Logger()
	if name == "" {
		log.Error().Str("operation", operation).Msg("empty entry name")
		return fmt.Errorf("%w: name", ErrEmptyArgument)
	}
	if parent == "" {
		log.Error().Str("operation", operation).Msg("empty parent container")
		return fmt.Errorf("%w: parent", ErrEmptyArgument)
	}
	return nil
}
