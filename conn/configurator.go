package conn

import (
	"errors"
	"fmt"

	"github.com/godomain/godomain/logging"
)

// Configurator prepares a connection context from its resolved
// configuration. Sessions delegate to a Configurator during assembly; the
// default implementation installs the go-ldap state machine.
type Configurator interface {
	Configure(g *Global, c *Context, cfg *Config) error
}

// Configuration errors.
var (
	ErrNilContext  = errors.New("conn: nil context supplied to configurator")
	ErrNoEndpoint  = errors.New("conn: empty server endpoint")
	ErrBadProtocol = errors.New("conn: unsupported protocol version")
)

// DefaultConfigurator validates the configuration and installs the default
// state machine on the context.
type DefaultConfigurator struct {
	Log logging.Logger
}

func (d DefaultConfigurator) Configure(g *Global, c *Context, cfg *Config) error {
	if g == nil || c == nil || cfg == nil {
		return ErrNilContext
	}
	if cfg.ServerEndpoint == "" {
		return ErrNoEndpoint
	}
	if cfg.ProtocolVersion != 2 && cfg.ProtocolVersion != 3 {
		return fmt.Errorf("%w: %d", ErrBadProtocol, cfg.ProtocolVersion)
	}
	if cfg.UseSASL && cfg.SASL == nil {
		return errors.New("conn: SASL enabled without SASL options")
	}

	c.Machine = NewMachine(c, cfg, d.Log)
	return nil
}
