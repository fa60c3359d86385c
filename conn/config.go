// Package conn holds the connection layer of a directory session: the
// resolved connection configuration consumed by the configurator, the
// mutable runtime context wrapping the directory handle, the connection
// state machine, and the modification transport.
package conn

import (
	"time"

	"github.com/godomain/godomain/arena"
)

// BindDNAttribute is the naming attribute used for the leftmost component
// of the bind DN. Fixed; broader naming-attribute support is not a goal of
// this layer.
const BindDNAttribute = "cn"

// SecurityProperties is the SASL security-properties string applied to
// every SASL bind: a fixed minimum security factor.
const SecurityProperties = "minssf=56"

// BindType selects between a plain bind and an interactive SASL bind.
type BindType int

const (
	// BindTypeInteractive negotiates the bind interactively via SASL.
	BindTypeInteractive BindType = iota

	// BindTypeSimple performs a plain DN/password bind.
	BindTypeSimple
)

func (b BindType) String() string {
	if b == BindTypeSimple {
		return "simple"
	}
	return "interactive"
}

// Global is the per-session global context. There is no process-wide
// state: its lifetime is the session's.
type Global struct {
	Arena *arena.Arena
}

// SASLOptions carries SASL negotiation parameters. Present on a Config iff
// SASL was enabled at assembly time.
type SASLOptions struct {
	Mechanism          string // "SIMPLE" or "GSSAPI"
	Password           string
	Canonicalize       bool   // always false: canonicalization is off
	SecurityProperties string // always "minssf=56"
	Quiet              bool   // suppress mechanism prompts
}

// TLSPaths carries certificate material locations. Present on a Config iff
// TLS was enabled at assembly time.
type TLSPaths struct {
	CACertFile string
	CertFile   string
	KeyFile    string
}

// Config is the resolved connection configuration handed to the
// configurator. Built once during session assembly; read-only thereafter.
type Config struct {
	ServerEndpoint  string // host or host:port
	ProtocolVersion int
	BindType        BindType
	Anonymous       bool
	ChaseReferrals  bool // fixed false: referral chasing is not supported
	UseSASL         bool
	StartTLS        bool
	Timeout         time.Duration

	Username string // naming component of the bind DN

	SASL *SASLOptions // present iff UseSASL
	TLS  *TLSPaths    // present iff StartTLS

	KerberosRealm  string
	KerberosConfig string

	// ProtocolDebug enables verbose wire-level debugging on the directory
	// handle. An explicit option rather than a hidden assembly side
	// effect; defaults to off.
	ProtocolDebug bool
}
