// Package session assembles validated configuration into an exclusively
// owned directory session and drives its connection establishment through
// the event loop.
//
// A Session and everything it owns belong to the caller holding the
// handle; no synchronization is provided for concurrent use.
package session

import (
	"errors"
	"fmt"

	"github.com/godomain/godomain/arena"
	"github.com/godomain/godomain/config"
	"github.com/godomain/godomain/conn"
	"github.com/godomain/godomain/logging"
	"github.com/godomain/godomain/loop"
)

// Assembly errors.
var (
	// ErrNoConfig is returned immediately for a nil configuration; a
	// session is never built from one.
	ErrNoConfig = errors.New("session: nil configuration")

	// ErrNoArena is returned by AssembleIn when no arena is supplied.
	ErrNoArena = errors.New("session: nil arena")

	// ErrConfigureFailed wraps configurator failures. The returned
	// session is partially built and unusable, but the caller must still
	// Close it to release what was allocated.
	ErrConfigureFailed = errors.New("session: connection configuration failed")

	// ErrNoCallback is returned when installing a nil handler.
	ErrNoCallback = errors.New("session: nil callback")

	// ErrNilSession is returned by operations on a nil session.
	ErrNilSession = errors.New("session: nil session")
)

// Session is the assembled, exclusively owned session handle.
type Session struct {
	arena *arena.Arena
	cfg   *config.SessionConfig
	log   logging.Logger

	loop   *loop.Loop
	global *conn.Global

	connCfg *conn.Config
	connCtx *conn.Context

	transport conn.Transport
}

type options struct {
	log          logging.Logger
	loop         *loop.Loop
	configurator conn.Configurator
	transport    conn.Transport
}

// Option customizes session assembly.
type Option func(*options)

// WithLogger routes session logging through the given logger.
func WithLogger(log logging.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithLoop attaches the session to an existing event loop instead of
// creating its own, for embedding into an application's loop.
func WithLoop(l *loop.Loop) Option {
	return func(o *options) { o.loop = l }
}

// WithConfigurator replaces the default connection configurator.
func WithConfigurator(c conn.Configurator) Option {
	return func(o *options) { o.configurator = c }
}

// WithTransport replaces the default directory transport.
func WithTransport(t conn.Transport) Option {
	return func(o *options) { o.transport = t }
}

// Assemble builds a session from resolved configuration, owning a fresh
// arena root. The configuration is deep-copied: later mutation of the
// caller's value cannot affect the session.
func Assemble(cfg *config.SessionConfig, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, ErrNoConfig
	}
	return assemble(arena.New("session"), cfg, opts...)
}

// AssembleIn is like Assemble but the session is owned by a scope of the
// supplied arena, so freeing that arena tears the session down.
func AssembleIn(a *arena.Arena, cfg *config.SessionConfig, opts ...Option) (*Session, error) {
	if a == nil {
		return nil, ErrNoArena
	}
	if cfg == nil {
		return nil, ErrNoConfig
	}
	scope, err := a.Child("session")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoArena, err)
	}
	return assemble(scope, cfg, opts...)
}

func assemble(root *arena.Arena, cfg *config.SessionConfig, opts ...Option) (*Session, error) {
	o := options{log: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loop == nil {
		o.loop = loop.New()
	}
	if o.configurator == nil {
		o.configurator = conn.DefaultConfigurator{Log: o.log}
	}

	s := &Session{
		arena:  root,
		cfg:    cfg.Clone(),
		log:    o.log.Component("session"),
		loop:   o.loop,
		global: &conn.Global{Arena: root},
	}

	s.connCfg = buildConnConfig(s.cfg)
	s.connCtx = &conn.Context{
		Bind: conn.BindParams{
			DN:         bindDN(s.cfg),
			Credential: credential(s.cfg),
		},
	}

	// The arena owns the directory handle: freeing the session scope
	// closes the connection.
	root.Defer(s.connCtx.Close)
	root.Defer(func() error {
		s.cfg.Zeroize()
		return nil
	})

	if err := o.configurator.Configure(s.global, s.connCtx, s.connCfg); err != nil {
		s.log.Error().Err(err).Msg("unable to configure connection")
		return s, fmt.Errorf("%w: %v", ErrConfigureFailed, err)
	}

	s.connCtx.Handle = s

	s.transport = o.transport
	if s.transport == nil {
		s.transport = conn.NewLDAPTransport(s.connCtx, o.log)
	}

	s.log.Info().
		Str("endpoint", s.connCfg.ServerEndpoint).
		Str("bind_type", s.connCfg.BindType.String()).
		Bool("use_sasl", s.connCfg.UseSASL).
		Bool("start_tls", s.connCfg.StartTLS).
		Msg("session assembled")

	return s, nil
}

// buildConnConfig resolves the connection parameters from the session
// configuration. Referral chasing is fixed off.
func buildConnConfig(cfg *config.SessionConfig) *conn.Config {
	bindType := conn.BindTypeInteractive
	if cfg.SimpleBind {
		bindType = conn.BindTypeSimple
	}

	cc := &conn.Config{
		ServerEndpoint:  cfg.ServerEndpoint,
		ProtocolVersion: cfg.ProtocolVersion,
		BindType:        bindType,
		Anonymous:       cfg.Mode == config.BindAnonymous,
		ChaseReferrals:  false,
		UseSASL:         cfg.UseSASL,
		StartTLS:        cfg.UseTLS,
		Timeout:         cfg.Timeout,
		Username:        stringValue(cfg.Username),
		KerberosRealm:   cfg.KerberosRealm,
		KerberosConfig:  cfg.KerberosConfig,
		ProtocolDebug:   cfg.ProtocolDebug,
	}

	if cfg.UseSASL {
		mechanism := config.MechanismGSSAPI
		if cfg.SimpleBind {
			mechanism = config.MechanismSimple
		}
		cc.SASL = &conn.SASLOptions{
			Mechanism:          mechanism,
			Password:           stringValue(cfg.Password),
			Canonicalize:       false,
			SecurityProperties: conn.SecurityProperties,
			Quiet:              true,
		}
	}

	if cfg.UseTLS {
		cc.TLS = &conn.TLSPaths{
			CACertFile: cfg.CACertFile,
			CertFile:   cfg.CertFile,
			KeyFile:    cfg.KeyFile,
		}
	}

	return cc
}

// bindDN builds the bind identity from the configured username and base
// DN, using the fixed naming attribute.
func bindDN(cfg *config.SessionConfig) string {
	return conn.BindDNAttribute + "=" + stringValue(cfg.Username) + "," + cfg.BaseDN
}

// credential preserves the supplied/absent distinction: nil when no
// password was configured, never a non-nil empty slice. An empty supplied
// password carries no credential either, so it maps to nil as well.
func credential(cfg *config.SessionConfig) []byte {
	if cfg.Password == nil || *cfg.Password == "" {
		return nil
	}
	return []byte(*cfg.Password)
}

// Arena exposes the session's root arena; implements conn.Handle.
func (s *Session) Arena() *arena.Arena {
	return s.arena
}

// Conn returns the connection context.
func (s *Session) Conn() *conn.Context {
	return s.connCtx
}

// Config returns the resolved connection configuration.
func (s *Session) Config() *conn.Config {
	return s.connCfg
}

// SessionConfig returns a copy of the session's configuration snapshot.
func (s *Session) SessionConfig() *config.SessionConfig {
	return s.cfg.Clone()
}

// Transport returns the directory transport bound to this session.
func (s *Session) Transport() conn.Transport {
	return s.transport
}

// Logger returns the session logger.
func (s *Session) Logger() logging.Logger {
	return s.log
}

// Loop returns the event loop driving this session's timers.
func (s *Session) Loop() *loop.Loop {
	return s.loop
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	return s.arena.Freed()
}

// Close tears the session down: the arena recursively releases everything
// it owns, including the directory handle. Idempotent.
func (s *Session) Close() error {
	if s == nil {
		return ErrNilSession
	}
	return s.arena.Free()
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
