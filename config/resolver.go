package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/godomain/godomain/arena"
	"github.com/godomain/godomain/logging"
)

// Fields carries explicit configuration from a host application's own
// settings store. Pointer fields distinguish "not supplied" from empty.
type Fields struct {
	Host            string `validate:"required"`
	Port            int    `validate:"gte=0,lte=65535"`
	ProtocolVersion int    `default:"3" validate:"gte=0"`
	BaseDN          string
	Username        *string
	Password        *string
	SimpleBind      bool
	UseTLS          bool
	UseSASL         bool
	UseAnonymous    bool
	TimeoutSeconds  int `validate:"gte=0"`
	CACertFile      string
	CertFile        string
	KeyFile         string
	KerberosRealm   string
	KerberosConfig  string
	ProtocolDebug   bool
}

// Resolver turns configuration sources into validated SessionConfig values.
type Resolver struct {
	log      logging.Logger
	validate *validator.Validate
}

// NewResolver creates a resolver logging through the given logger.
func NewResolver(log logging.Logger) *Resolver {
	return &Resolver{
		log:      log.Component("config"),
		validate: validator.New(),
	}
}

// fileSettings is the on-disk schema. Pointers detect absent keys.
type fileSettings struct {
	Host            *string `yaml:"host"`
	Port            *int    `yaml:"port"`
	ProtocolVersion *int    `yaml:"protocol_version"`
	BaseDN          *string `yaml:"base_dn"`
	Username        *string `yaml:"username"`
	Password        *string `yaml:"password"`
	SimpleBind      *bool   `yaml:"simple_bind"`
	UseTLS          *bool   `yaml:"use_tls"`
	UseSASL         *bool   `yaml:"use_sasl"`
	UseAnon         *bool   `yaml:"use_anon"`
	Timeout         *int    `yaml:"timeout"`
	CACertFile      *string `yaml:"ca_cert_file"`
	CertFile        *string `yaml:"cert_file"`
	KeyFile         *string `yaml:"key_file"`
	KerberosRealm   *string `yaml:"kerberos_realm"`
	KerberosConfig  *string `yaml:"kerberos_config"`
	ProtocolDebug   *bool   `yaml:"protocol_debug"`
}

// LoadFile parses a YAML settings file into a SessionConfig owned by a.
// The required keys are host and base_dn; everything else is optional and
// normalized to the documented defaults.
func (r *Resolver) LoadFile(a *arena.Arena, path string) (*SessionConfig, error) {
	if a == nil {
		return nil, ErrNoArena
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, &ParseError{File: path, Message: err.Error(), Cause: err}
	}

	var fs fileSettings
	if err := yaml.Unmarshal(raw, &fs); err != nil {
		return nil, &ParseError{
			File:    path,
			Line:    yamlErrorLine(err),
			Message: err.Error(),
			Cause:   err,
		}
	}

	if fs.Host == nil {
		r.log.Error().Str("file", path).Msg("no 'host' setting in configuration file")
		return nil, missingRequired("host")
	}
	if fs.BaseDN == nil {
		r.log.Error().Str("file", path).Msg("no 'base_dn' setting in configuration file")
		return nil, missingRequired("base_dn")
	}

	r.logSetting("host", fs.Host)
	r.logSetting("port", fs.Port)
	r.logSetting("protocol_version", fs.ProtocolVersion)
	r.logSetting("base_dn", fs.BaseDN)
	r.logSetting("username", fs.Username)
	r.logSetting("password", fs.Password)
	r.logSetting("simple_bind", fs.SimpleBind)
	r.logSetting("use_tls", fs.UseTLS)
	r.logSetting("use_sasl", fs.UseSASL)
	r.logSetting("use_anon", fs.UseAnon)
	r.logSetting("timeout", fs.Timeout)
	r.logSetting("ca_cert_file", fs.CACertFile)
	r.logSetting("cert_file", fs.CertFile)
	r.logSetting("key_file", fs.KeyFile)
	r.logSetting("kerberos_realm", fs.KerberosRealm)
	r.logSetting("kerberos_config", fs.KerberosConfig)
	r.logSetting("protocol_debug", fs.ProtocolDebug)

	f := Fields{
		Host:           *fs.Host,
		Port:           intOr(fs.Port, 0),
		BaseDN:         *fs.BaseDN,
		Username:       fs.Username,
		Password:       fs.Password,
		SimpleBind:     boolOr(fs.SimpleBind),
		UseTLS:         boolOr(fs.UseTLS),
		UseSASL:        boolOr(fs.UseSASL),
		UseAnonymous:   boolOr(fs.UseAnon),
		TimeoutSeconds: intOr(fs.Timeout, 0),
		CACertFile:     stringOr(fs.CACertFile),
		CertFile:       stringOr(fs.CertFile),
		KeyFile:        stringOr(fs.KeyFile),
		KerberosRealm:  stringOr(fs.KerberosRealm),
		KerberosConfig: stringOr(fs.KerberosConfig),
		ProtocolDebug:  boolOr(fs.ProtocolDebug),
	}
	if fs.ProtocolVersion != nil {
		f.ProtocolVersion = *fs.ProtocolVersion
	}

	return r.FromFields(a, f)
}

// FromFields normalizes explicit fields into a SessionConfig owned by a.
// Same normalization rules as LoadFile, no file I/O.
func (r *Resolver) FromFields(a *arena.Arena, f Fields) (*SessionConfig, error) {
	if a == nil {
		return nil, ErrNoArena
	}

	if err := defaults.Set(&f); err != nil {
		return nil, fmt.Errorf("config: applying defaults: %w", err)
	}

	if err := r.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, ve := range verrs {
				if ve.Tag() == "required" {
					return nil, missingRequired("host")
				}
			}
		}
		return nil, fmt.Errorf("config: invalid fields: %w", err)
	}

	mode, mechanism, err := resolveBindMode(f.SimpleBind, f.UseSASL, f.UseAnonymous)
	if err != nil {
		return nil, err
	}

	endpoint := f.Host
	if f.Port > 0 {
		endpoint = f.Host + ":" + strconv.Itoa(f.Port)
	}

	cfg := &SessionConfig{
		ServerEndpoint:  endpoint,
		ProtocolVersion: f.ProtocolVersion,
		BaseDN:          f.BaseDN,
		Username:        cloneString(f.Username),
		Password:        cloneString(f.Password),
		SimpleBind:      f.SimpleBind,
		UseTLS:          f.UseTLS,
		UseSASL:         f.UseSASL,
		UseAnonymous:    f.UseAnonymous,
		Mode:            mode,
		SASLMechanism:   mechanism,
		Timeout:         time.Duration(f.TimeoutSeconds) * time.Second,
		CACertFile:      f.CACertFile,
		CertFile:        f.CertFile,
		KeyFile:         f.KeyFile,
		KerberosRealm:   f.KerberosRealm,
		KerberosConfig:  f.KerberosConfig,
		ProtocolDebug:   f.ProtocolDebug,
	}

	a.Defer(func() error {
		cfg.Zeroize()
		return nil
	})

	r.log.Info().
		Str("endpoint", cfg.ServerEndpoint).
		Int("protocol_version", cfg.ProtocolVersion).
		Str("bind_mode", cfg.Mode.String()).
		Bool("use_tls", cfg.UseTLS).
		Msg("configuration resolved")

	return cfg, nil
}

// Env file keys recognized by FromEnv.
const (
	envHost            = "DIR_HOST"
	envPort            = "DIR_PORT"
	envProtocolVersion = "DIR_PROTOCOL_VERSION"
	envBaseDN          = "DIR_BASE_DN"
	envUsername        = "DIR_USERNAME"
	envPassword        = "DIR_PASSWORD"
	envSimpleBind      = "DIR_SIMPLE_BIND"
	envUseTLS          = "DIR_USE_TLS"
	envUseSASL         = "DIR_USE_SASL"
	envUseAnon         = "DIR_USE_ANON"
	envTimeout         = "DIR_TIMEOUT"
	envCACertFile      = "DIR_CA_CERT_FILE"
	envCertFile        = "DIR_CERT_FILE"
	envKeyFile         = "DIR_KEY_FILE"
)

// FromEnv reads a dotenv-style file and produces the same normalized shape
// as LoadFile.
func (r *Resolver) FromEnv(a *arena.Arena, path string) (*SessionConfig, error) {
	if a == nil {
		return nil, ErrNoArena
	}

	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, &ParseError{File: path, Message: err.Error(), Cause: err}
	}

	host, ok := env[envHost]
	if !ok {
		return nil, missingRequired(envHost)
	}
	baseDN, ok := env[envBaseDN]
	if !ok {
		return nil, missingRequired(envBaseDN)
	}

	f := Fields{
		Host:         host,
		BaseDN:       baseDN,
		Username:     envString(env, envUsername),
		Password:     envString(env, envPassword),
		SimpleBind:   envBool(env, envSimpleBind),
		UseTLS:       envBool(env, envUseTLS),
		UseSASL:      envBool(env, envUseSASL),
		UseAnonymous: envBool(env, envUseAnon),
		CACertFile:   env[envCACertFile],
		CertFile:     env[envCertFile],
		KeyFile:      env[envKeyFile],
	}

	for key, dst := range map[string]*int{
		envPort:            &f.Port,
		envProtocolVersion: &f.ProtocolVersion,
		envTimeout:         &f.TimeoutSeconds,
	} {
		if v, ok := env[key]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, &ParseError{
					File:    path,
					Message: fmt.Sprintf("%s: not an integer: %q", key, v),
					Cause:   err,
				}
			}
			*dst = n
		}
	}

	return r.FromFields(a, f)
}

// resolveBindMode collapses the three authentication flags into a single
// mode. use_anon contradicts the other flags and is rejected; use_sasl
// takes precedence over bare simple_bind, with simple_bind selecting the
// SIMPLE mechanism instead of GSSAPI.
func resolveBindMode(simpleBind, useSASL, useAnon bool) (BindMode, string, error) {
	switch {
	case useAnon && (useSASL || simpleBind):
		return 0, "", ErrBindModeConflict
	case useAnon:
		return BindAnonymous, "", nil
	case useSASL && simpleBind:
		return BindSASL, MechanismSimple, nil
	case useSASL:
		return BindSASL, MechanismGSSAPI, nil
	case simpleBind:
		return BindSimple, "", nil
	default:
		return BindInteractive, "", nil
	}
}

func (r *Resolver) logSetting(key string, value any) {
	switch v := value.(type) {
	case *string:
		if v == nil {
			r.log.Info().Str("setting", key).Msg("setting not present")
			return
		}
		if key == "password" {
			r.log.Info().Str("setting", key).Msg("setting read")
			return
		}
		r.log.Info().Str("setting", key).Str("value", *v).Msg("setting read")
	case *int:
		if v == nil {
			r.log.Info().Str("setting", key).Msg("setting not present")
			return
		}
		r.log.Info().Str("setting", key).Int("value", *v).Msg("setting read")
	case *bool:
		if v == nil {
			r.log.Info().Str("setting", key).Msg("setting not present")
			return
		}
		r.log.Info().Str("setting", key).Bool("value", *v).Msg("setting read")
	}
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// yamlErrorLine extracts the line number yaml embeds in its error text.
func yamlErrorLine(err error) int {
	m := yamlLinePattern.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return 0
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0
	}
	return n
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool) bool {
	return v != nil && *v
}

func stringOr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func envString(env map[string]string, key string) *string {
	if v, ok := env[key]; ok {
		return &v
	}
	return nil
}

func envBool(env map[string]string, key string) bool {
	v, ok := env[key]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
