package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godomain/godomain/arena"
	"github.com/godomain/godomain/logging"
)

func newTestResolver() *Resolver {
	return NewResolver(logging.Nop())
}

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileResolvesFullConfig(t *testing.T) {
	path := writeSettings(t, `
host: dc1.example.com
port: 636
protocol_version: 3
base_dn: dc=example,dc=com
username: admin
password: secret
simple_bind: true
use_tls: true
timeout: 10
ca_cert_file: /etc/pki/ca.pem
cert_file: /etc/pki/client.pem
key_file: /etc/pki/client.key
`)

	cfg, err := newTestResolver().LoadFile(arena.New("test"), path)
	require.NoError(t, err)

	assert.Equal(t, "dc1.example.com:636", cfg.ServerEndpoint)
	assert.Equal(t, 3, cfg.ProtocolVersion)
	assert.Equal(t, "dc=example,dc=com", cfg.BaseDN)
	require.NotNil(t, cfg.Username)
	assert.Equal(t, "admin", *cfg.Username)
	require.NotNil(t, cfg.Password)
	assert.Equal(t, "secret", *cfg.Password)
	assert.Equal(t, BindSimple, cfg.Mode)
	assert.True(t, cfg.UseTLS)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, "/etc/pki/ca.pem", cfg.CACertFile)
	assert.Equal(t, "/etc/pki/client.pem", cfg.CertFile)
	assert.Equal(t, "/etc/pki/client.key", cfg.KeyFile)
}

func TestLoadFileLogsEverySetting(t *testing.T) {
	path := writeSettings(t, `
host: dc1.example.com
port: 636
protocol_version: 3
base_dn: dc=example,dc=com
username: admin
password: hunter2
simple_bind: true
use_tls: true
use_sasl: false
use_anon: false
timeout: 10
ca_cert_file: /etc/pki/ca.pem
cert_file: /etc/pki/client.pem
key_file: /etc/pki/client.key
kerberos_realm: EXAMPLE.COM
kerberos_config: /etc/krb5.conf
protocol_debug: true
`)

	var buf bytes.Buffer
	log := logging.New(logging.Config{Output: &buf})

	_, err := NewResolver(log).LoadFile(arena.New("test"), path)
	require.NoError(t, err)

	out := buf.String()
	keys := []string{
		"host", "port", "protocol_version", "base_dn", "username",
		"password", "simple_bind", "use_tls", "use_sasl", "use_anon",
		"timeout", "ca_cert_file", "cert_file", "key_file",
		"kerberos_realm", "kerberos_config", "protocol_debug",
	}
	for _, key := range keys {
		assert.Contains(t, out, `"setting":"`+key+`"`, key)
	}

	assert.NotContains(t, out, "hunter2", "password value stays out of the log")
}

func TestLoadFileEndpointOmitsPortWhenAbsent(t *testing.T) {
	path := writeSettings(t, "host: dc1.example.com\nbase_dn: dc=example,dc=com\n")

	cfg, err := newTestResolver().LoadFile(arena.New("test"), path)
	require.NoError(t, err)

	assert.Equal(t, "dc1.example.com", cfg.ServerEndpoint)
	assert.Equal(t, DefaultProtocolVersion, cfg.ProtocolVersion)
}

func TestLoadFileOptionalDefaults(t *testing.T) {
	path := writeSettings(t, "host: dc1.example.com\nbase_dn: ''\n")

	cfg, err := newTestResolver().LoadFile(arena.New("test"), path)
	require.NoError(t, err)

	// base_dn key present with empty value is valid.
	assert.Equal(t, "", cfg.BaseDN)

	// Absent credentials stay absent, not empty.
	assert.Nil(t, cfg.Username)
	assert.Nil(t, cfg.Password)

	// TLS material paths normalize to empty strings.
	assert.Equal(t, "", cfg.CACertFile)
	assert.Equal(t, "", cfg.CertFile)
	assert.Equal(t, "", cfg.KeyFile)

	assert.False(t, cfg.SimpleBind)
	assert.False(t, cfg.UseTLS)
	assert.False(t, cfg.UseSASL)
	assert.False(t, cfg.UseAnonymous)
	assert.Equal(t, BindInteractive, cfg.Mode)
}

func TestLoadFileMissingRequiredKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing host", "base_dn: dc=example,dc=com\n"},
		{"missing base_dn", "host: dc1.example.com\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSettings(t, tt.content)
			cfg, err := newTestResolver().LoadFile(arena.New("test"), path)
			assert.ErrorIs(t, err, ErrMissingRequired)
			assert.Nil(t, cfg, "no partial config on missing required key")
		})
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := newTestResolver().LoadFile(arena.New("test"), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadFileParseError(t *testing.T) {
	path := writeSettings(t, "host: dc1.example.com\nbase_dn: [unterminated\n  port: {{\n")

	_, err := newTestResolver().LoadFile(arena.New("test"), path)
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, path, parseErr.File)
}

func TestLoadFileNilArena(t *testing.T) {
	_, err := newTestResolver().LoadFile(nil, "settings.yaml")
	assert.ErrorIs(t, err, ErrNoArena)
}

func TestFromFieldsEndpointFolding(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		want string
	}{
		{"port folded", "dc1.example.com", 389, "dc1.example.com:389"},
		{"zero port omitted", "dc1.example.com", 0, "dc1.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := newTestResolver().FromFields(arena.New("test"), Fields{
				Host:   tt.host,
				Port:   tt.port,
				BaseDN: "dc=example,dc=com",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.ServerEndpoint)
		})
	}
}

func TestFromFieldsRequiresHost(t *testing.T) {
	_, err := newTestResolver().FromFields(arena.New("test"), Fields{BaseDN: "dc=example,dc=com"})
	assert.ErrorIs(t, err, ErrMissingRequired)
}

func TestFromFieldsNilArena(t *testing.T) {
	_, err := newTestResolver().FromFields(nil, Fields{Host: "dc1.example.com"})
	assert.ErrorIs(t, err, ErrNoArena)
}

func TestFromFieldsProtocolVersionDefault(t *testing.T) {
	cfg, err := newTestResolver().FromFields(arena.New("test"), Fields{Host: "dc1.example.com"})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.ProtocolVersion)

	cfg, err = newTestResolver().FromFields(arena.New("test"), Fields{Host: "dc1.example.com", ProtocolVersion: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.ProtocolVersion)
}

func TestBindModeResolution(t *testing.T) {
	tests := []struct {
		name          string
		simple        bool
		sasl          bool
		anon          bool
		wantMode      BindMode
		wantMechanism string
		wantErr       bool
	}{
		{name: "default interactive", wantMode: BindInteractive},
		{name: "simple", simple: true, wantMode: BindSimple},
		{name: "sasl gssapi", sasl: true, wantMode: BindSASL, wantMechanism: MechanismGSSAPI},
		{name: "sasl simple", sasl: true, simple: true, wantMode: BindSASL, wantMechanism: MechanismSimple},
		{name: "anonymous", anon: true, wantMode: BindAnonymous},
		{name: "anon conflicts with sasl", anon: true, sasl: true, wantErr: true},
		{name: "anon conflicts with simple", anon: true, simple: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := newTestResolver().FromFields(arena.New("test"), Fields{
				Host:         "dc1.example.com",
				BaseDN:       "dc=example,dc=com",
				SimpleBind:   tt.simple,
				UseSASL:      tt.sasl,
				UseAnonymous: tt.anon,
			})

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBindModeConflict)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, cfg.Mode)
			assert.Equal(t, tt.wantMechanism, cfg.SASLMechanism)
		})
	}
}

func TestArenaFreeZeroizesPassword(t *testing.T) {
	a := arena.New("test")
	password := "secret"

	cfg, err := newTestResolver().FromFields(a, Fields{
		Host:     "dc1.example.com",
		BaseDN:   "dc=example,dc=com",
		Password: &password,
	})
	require.NoError(t, err)
	require.NotNil(t, cfg.Password)

	require.NoError(t, a.Free())
	assert.Equal(t, "", *cfg.Password)
}

func TestCloneIsDeep(t *testing.T) {
	username := "admin"
	password := "secret"
	cfg, err := newTestResolver().FromFields(arena.New("test"), Fields{
		Host:     "dc1.example.com",
		BaseDN:   "dc=example,dc=com",
		Username: &username,
		Password: &password,
	})
	require.NoError(t, err)

	clone := cfg.Clone()
	*cfg.Username = "changed"
	*cfg.Password = "changed"

	assert.Equal(t, "admin", *clone.Username)
	assert.Equal(t, "secret", *clone.Password)
}

func TestFromFieldsCopiesCallerPointers(t *testing.T) {
	username := "admin"
	cfg, err := newTestResolver().FromFields(arena.New("test"), Fields{
		Host:     "dc1.example.com",
		BaseDN:   "dc=example,dc=com",
		Username: &username,
	})
	require.NoError(t, err)

	username = "changed"
	assert.Equal(t, "admin", *cfg.Username)
}

func TestFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `DIR_HOST=dc1.example.com
DIR_PORT=636
DIR_BASE_DN=dc=example,dc=com
DIR_USERNAME=admin
DIR_USE_SASL=true
DIR_TIMEOUT=5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := newTestResolver().FromEnv(arena.New("test"), path)
	require.NoError(t, err)

	assert.Equal(t, "dc1.example.com:636", cfg.ServerEndpoint)
	assert.Equal(t, "dc=example,dc=com", cfg.BaseDN)
	require.NotNil(t, cfg.Username)
	assert.Equal(t, "admin", *cfg.Username)
	assert.Nil(t, cfg.Password)
	assert.Equal(t, BindSASL, cfg.Mode)
	assert.Equal(t, MechanismGSSAPI, cfg.SASLMechanism)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestFromEnvMissingRequired(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DIR_HOST=dc1.example.com\n"), 0o600))

	_, err := newTestResolver().FromEnv(arena.New("test"), path)
	assert.ErrorIs(t, err, ErrMissingRequired)
}

func TestFromEnvBadInteger(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "DIR_HOST=dc1.example.com\nDIR_BASE_DN=dc=example,dc=com\nDIR_PORT=abc\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := newTestResolver().FromEnv(arena.New("test"), path)

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}
