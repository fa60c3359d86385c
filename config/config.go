// Package config resolves and validates session configuration from a
// settings file, an env file, or explicit fields. All three entry points
// produce the same normalized SessionConfig shape so session assembly has
// a single contract.
package config

import "time"

// Protocol and SASL defaults.
const (
	// DefaultProtocolVersion is the directory protocol version used when
	// the configuration does not specify one.
	DefaultProtocolVersion = 3

	// MechanismSimple selects plain password authentication through SASL.
	MechanismSimple = "SIMPLE"

	// MechanismGSSAPI selects Kerberos authentication through SASL.
	MechanismGSSAPI = "GSSAPI"
)

// BindMode is the normalized authentication mode, chosen exclusively at
// resolution time from the simple_bind/use_sasl/use_anon flags.
type BindMode int

const (
	// BindInteractive is the default mode: SASL interactive bind with
	// ambient credentials.
	BindInteractive BindMode = iota

	// BindSimple performs a plain bind with DN and password.
	BindSimple

	// BindSASL negotiates a SASL mechanism (SIMPLE or GSSAPI).
	BindSASL

	// BindAnonymous performs an unauthenticated bind.
	BindAnonymous
)

func (m BindMode) String() string {
	switch m {
	case BindInteractive:
		return "interactive"
	case BindSimple:
		return "simple"
	case BindSASL:
		return "sasl"
	case BindAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// SessionConfig is the immutable result of configuration resolution.
// Username and Password are nil when not supplied, which is distinct from
// an empty string. The TLS material paths are always non-nil strings,
// empty when unset.
type SessionConfig struct {
	ServerEndpoint  string // host, with ":port" folded in when port > 0
	ProtocolVersion int
	BaseDN          string // required key; its value may be empty

	Username *string
	Password *string

	// Raw authentication flags as supplied by the source.
	SimpleBind   bool
	UseTLS       bool
	UseSASL      bool
	UseAnonymous bool

	// Normalized bind mode derived from the raw flags. SASLMechanism is
	// set iff Mode == BindSASL.
	Mode          BindMode
	SASLMechanism string

	Timeout time.Duration

	CACertFile string
	CertFile   string
	KeyFile    string

	// Kerberos material for GSSAPI binds.
	KerberosRealm  string
	KerberosConfig string // krb5.conf path, empty selects the system default

	// ProtocolDebug enables verbose wire-level debug output on the
	// directory handle. Off by default.
	ProtocolDebug bool
}

// Clone returns a deep copy. Later mutation of the original cannot affect
// the copy; sessions hold a clone so they are decoupled from the caller.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Username = cloneString(c.Username)
	out.Password = cloneString(c.Password)
	return &out
}

// Zeroize wipes credential material in place. Registered as an arena
// release hook so teardown scrubs the password.
func (c *SessionConfig) Zeroize() {
	if c.Password != nil {
		*c.Password = ""
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
