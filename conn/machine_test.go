package conn

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godomain/godomain/logging"
)

func newTestMachine(cfg *Config) (*Machine, *Context, *[]string) {
	cc := &Context{}
	m := NewMachine(cc, cfg, logging.Nop())

	steps := &[]string{}
	m.dial = func(context.Context, *Config) (*ldap.Conn, error) {
		*steps = append(*steps, "dial")
		return &ldap.Conn{}, nil
	}
	m.startTLS = func(*ldap.Conn, *Config) error {
		*steps = append(*steps, "starttls")
		return nil
	}
	m.bind = func(context.Context, *ldap.Conn, *Context, *Config) error {
		*steps = append(*steps, "bind")
		return nil
	}
	return m, cc, steps
}

func advanceUntilTerminal(t *testing.T, m *Machine) (State, error) {
	t.Helper()
	var (
		state State
		err   error
	)
	for i := 0; i < 10; i++ {
		state, err = m.Advance(context.Background())
		if state.Terminal() {
			return state, err
		}
	}
	t.Fatal("machine never reached a terminal state")
	return state, err
}

func TestMachineReachesRunWithoutTLS(t *testing.T) {
	m, cc, steps := newTestMachine(&Config{ServerEndpoint: "dc1.example.com"})

	state, err := advanceUntilTerminal(t, m)
	require.NoError(t, err)

	assert.Equal(t, StateRun, state)
	assert.Equal(t, []string{"dial", "bind"}, *steps)
	assert.NotNil(t, cc.Conn)
}

func TestMachineRunsTLSHandshakeWhenConfigured(t *testing.T) {
	m, _, steps := newTestMachine(&Config{ServerEndpoint: "dc1.example.com", StartTLS: true})

	state, err := advanceUntilTerminal(t, m)
	require.NoError(t, err)

	assert.Equal(t, StateRun, state)
	assert.Equal(t, []string{"dial", "starttls", "bind"}, *steps)
}

func TestMachineDialFailure(t *testing.T) {
	m, _, _ := newTestMachine(&Config{ServerEndpoint: "dc1.example.com"})
	dialErr := errors.New("connection refused")
	m.dial = func(context.Context, *Config) (*ldap.Conn, error) {
		return nil, dialErr
	}

	state, err := advanceUntilTerminal(t, m)

	assert.Equal(t, StateError, state)
	assert.ErrorIs(t, err, dialErr)
	assert.ErrorIs(t, m.Err(), dialErr)
}

func TestMachineBindFailure(t *testing.T) {
	m, _, _ := newTestMachine(&Config{ServerEndpoint: "dc1.example.com"})
	bindErr := errors.New("invalid credentials")
	m.bind = func(context.Context, *ldap.Conn, *Context, *Config) error {
		return bindErr
	}

	state, err := advanceUntilTerminal(t, m)

	assert.Equal(t, StateError, state)
	assert.ErrorIs(t, err, bindErr)
}

func TestMachineTerminalStatesAreAbsorbing(t *testing.T) {
	m, _, steps := newTestMachine(&Config{ServerEndpoint: "dc1.example.com"})

	state, err := advanceUntilTerminal(t, m)
	require.NoError(t, err)
	require.Equal(t, StateRun, state)

	fired := len(*steps)
	state, err = m.Advance(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateRun, state)
	assert.Len(t, *steps, fired, "no further steps after terminal state")
}

func TestMachineStateProgression(t *testing.T) {
	m, _, _ := newTestMachine(&Config{ServerEndpoint: "dc1.example.com", StartTLS: true})

	want := []State{StateConnecting, StateTLSHandshake, StateBinding, StateRun}
	for _, expected := range want {
		state, err := m.Advance(context.Background())
		require.NoError(t, err)
		assert.Equal(t, expected, state)
	}
}

func TestSelectBindKind(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bindKind
	}{
		{
			"anonymous",
			Config{Anonymous: true},
			bindAnonymous,
		},
		{
			"anonymous wins over sasl",
			Config{Anonymous: true, UseSASL: true, SASL: &SASLOptions{Mechanism: "GSSAPI"}},
			bindAnonymous,
		},
		{
			"sasl simple mechanism",
			Config{UseSASL: true, SASL: &SASLOptions{Mechanism: "SIMPLE"}},
			bindSASLSimple,
		},
		{
			"sasl gssapi mechanism",
			Config{UseSASL: true, SASL: &SASLOptions{Mechanism: "GSSAPI"}},
			bindSASLGSSAPI,
		},
		{
			"plain simple bind",
			Config{BindType: BindTypeSimple},
			bindSimple,
		},
		{
			"interactive default",
			Config{BindType: BindTypeInteractive},
			bindInteractiveGSSAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectBindKind(&tt.cfg))
		})
	}
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		wantHost string
		wantPort int
	}{
		{"dc1.example.com:636", "dc1.example.com", 636},
		{"dc1.example.com", "dc1.example.com", 389},
		{"dc1.example.com:bogus", "dc1.example.com", 389},
	}

	for _, tt := range tests {
		host, port := splitEndpoint(tt.endpoint)
		assert.Equal(t, tt.wantHost, host, tt.endpoint)
		assert.Equal(t, tt.wantPort, port, tt.endpoint)
	}
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateRun.Terminal())
	assert.True(t, StateError.Terminal())
	assert.False(t, StateDisconnected.Terminal())
	assert.False(t, StateConnecting.Terminal())
	assert.False(t, StateBinding.Terminal())
}
