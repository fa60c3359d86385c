package conn

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"

	"github.com/godomain/godomain/logging"
)

// Machine is the default connection state machine: dial, optional StartTLS,
// bind, run. Each Advance performs at most one step. Any step failure moves
// the machine to StateError and surfaces the error to the caller.
type Machine struct {
	cc    *Context
	cfg   *Config
	log   logging.Logger
	state State
	err   error

	// Step seams, replaceable in tests.
	dial     func(ctx context.Context, cfg *Config) (*ldap.Conn, error)
	startTLS func(conn *ldap.Conn, cfg *Config) error
	bind     func(ctx context.Context, conn *ldap.Conn, cc *Context, cfg *Config) error
}

// NewMachine creates a machine for the given connection context and
// configuration.
func NewMachine(cc *Context, cfg *Config, log logging.Logger) *Machine {
	return &Machine{
		cc:       cc,
		cfg:      cfg,
		log:      log.Component("machine"),
		state:    StateDisconnected,
		dial:     dialEndpoint,
		startTLS: startTLS,
		bind:     bindConnection,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Err returns the error that moved the machine to StateError, nil
// otherwise.
func (m *Machine) Err() error {
	return m.err
}

// Advance performs one transition. Terminal states are absorbing: advancing
// a machine in StateRun or StateError changes nothing.
func (m *Machine) Advance(ctx context.Context) (State, error) {
	switch m.state {
	case StateDisconnected:
		m.state = StateConnecting

	case StateConnecting:
		conn, err := m.dial(ctx, m.cfg)
		if err != nil {
			return m.fail("dial", err)
		}
		conn.Debug.Enable(m.cfg.ProtocolDebug)
		if m.cfg.Timeout > 0 {
			conn.SetTimeout(m.cfg.Timeout)
		}
		m.cc.Conn = conn
		if m.cfg.StartTLS {
			m.state = StateTLSHandshake
		} else {
			m.state = StateBinding
		}

	case StateTLSHandshake:
		if err := m.startTLS(m.cc.Conn, m.cfg); err != nil {
			return m.fail("starttls", err)
		}
		m.state = StateBinding

	case StateBinding:
		if err := m.bind(ctx, m.cc.Conn, m.cc, m.cfg); err != nil {
			return m.fail("bind", err)
		}
		m.log.Debug().Str("endpoint", m.cfg.ServerEndpoint).Msg("connection established")
		m.state = StateRun

	case StateRun, StateError:
	}

	return m.state, nil
}

func (m *Machine) fail(step string, err error) (State, error) {
	m.state = StateError
	m.err = fmt.Errorf("conn: %s: %w", step, err)
	m.log.Error().Err(err).Str("step", step).Msg("connection step failed")
	return m.state, m.err
}

// dialEndpoint opens the plain connection. TLS is always layered on via
// StartTLS afterwards, never at dial time.
func dialEndpoint(_ context.Context, cfg *Config) (*ldap.Conn, error) {
	host, port := splitEndpoint(cfg.ServerEndpoint)
	url := "ldap://" + net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &net.Dialer{}
	if cfg.Timeout > 0 {
		dialer.Timeout = cfg.Timeout
	}
	return ldap.DialURL(url, ldap.DialWithDialer(dialer))
}

func startTLS(conn *ldap.Conn, cfg *Config) error {
	host, _ := splitEndpoint(cfg.ServerEndpoint)
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: host,
	}

	if cfg.TLS != nil {
		if cfg.TLS.CACertFile != "" {
			pem, err := os.ReadFile(cfg.TLS.CACertFile)
			if err != nil {
				return fmt.Errorf("reading CA certificate: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return fmt.Errorf("no usable certificates in %s", cfg.TLS.CACertFile)
			}
			tlsConfig.RootCAs = pool
		}
		if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			if err != nil {
				return fmt.Errorf("loading client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return conn.StartTLS(tlsConfig)
}

// bindKind is one arm of the bind matrix.
type bindKind int

const (
	bindAnonymous bindKind = iota
	bindSASLSimple
	bindSASLGSSAPI
	bindSimple
	bindInteractiveGSSAPI
)

func (k bindKind) String() string {
	switch k {
	case bindAnonymous:
		return "anonymous"
	case bindSASLSimple:
		return "sasl-simple"
	case bindSASLGSSAPI:
		return "sasl-gssapi"
	case bindSimple:
		return "simple"
	case bindInteractiveGSSAPI:
		return "interactive-gssapi"
	default:
		return "unknown"
	}
}

// selectBindKind resolves the configured bind matrix: anonymous wins, SASL
// options pick SIMPLE or GSSAPI, a simple bind type picks a plain bind, and
// interactive falls back to GSSAPI with ambient credentials.
func selectBindKind(cfg *Config) bindKind {
	switch {
	case cfg.Anonymous:
		return bindAnonymous
	case cfg.SASL != nil && cfg.SASL.Mechanism == "SIMPLE":
		return bindSASLSimple
	case cfg.SASL != nil:
		return bindSASLGSSAPI
	case cfg.BindType == BindTypeSimple:
		return bindSimple
	default:
		return bindInteractiveGSSAPI
	}
}

func bindConnection(_ context.Context, conn *ldap.Conn, cc *Context, cfg *Config) error {
	switch selectBindKind(cfg) {
	case bindAnonymous:
		return conn.UnauthenticatedBind("")

	case bindSASLSimple, bindSimple:
		return conn.Bind(cc.Bind.DN, string(cc.Bind.Credential))

	case bindSASLGSSAPI:
		return gssapiBind(conn, cc, cfg, cfg.SASL.Password)

	default:
		return gssapiBind(conn, cc, cfg, string(cc.Bind.Credential))
	}
}

func gssapiBind(conn *ldap.Conn, cc *Context, cfg *Config, password string) error {
	client, err := newGSSAPIClient(cfg, password)
	if err != nil {
		return fmt.Errorf("creating GSSAPI client: %w", err)
	}
	defer func() {
		_ = client.DeleteSecContext()
	}()

	host, _ := splitEndpoint(cfg.ServerEndpoint)
	spn := "ldap/" + host

	return conn.GSSAPIBind(client, spn, "")
}

// newGSSAPIClient builds the Kerberos client: explicit password when
// supplied, otherwise the ambient credential cache.
func newGSSAPIClient(cfg *Config, password string) (ldap.GSSAPIClient, error) {
	krb5conf := cfg.KerberosConfig
	if krb5conf == "" {
		krb5conf = "/etc/krb5.conf"
	}

	if cfg.Username != "" && password != "" {
		return gssapi.NewClientWithPassword(cfg.Username, cfg.KerberosRealm, password,
			krb5conf, krb5client.DisablePAFXFAST(true))
	}

	ccache := defaultCCachePath()
	if ccache == "" {
		return nil, fmt.Errorf("no password and no credential cache available")
	}
	return gssapi.NewClientFromCCache(ccache, krb5conf, krb5client.DisablePAFXFAST(true))
}

func defaultCCachePath() string {
	if env := os.Getenv("KRB5CCNAME"); env != "" {
		return strings.TrimPrefix(env, "FILE:")
	}
	path := "/tmp/krb5cc_" + strconv.Itoa(os.Getuid())
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// splitEndpoint separates an endpoint into host and port, defaulting the
// port to 389.
func splitEndpoint(endpoint string) (string, int) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, 389
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return host, 389
	}
	return host, port
}
