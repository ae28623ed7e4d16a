// Package config loads the ironpki YAML configuration file.
package config

import (
	"bytes"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmcleod/ironpki/api"
	"github.com/jmcleod/ironpki/pki"
)

// Config mirrors the YAML file. Zero values mean "use the pki default".
type Config struct {
	EasyRSA  string `yaml:"easyrsa"`
	PKI      string `yaml:"pki"`
	Vars     string `yaml:"vars"`
	Days     int    `yaml:"days"`
	CertDays int    `yaml:"cert_days"`
	Digest   string `yaml:"digest"`
	Algo     string `yaml:"algo"`
	KeySize  int    `yaml:"key_size"`
	Curve    string `yaml:"curve"`

	SecretKey struct {
		// Disabled turns off shared-secret generation after init.
		Disabled bool     `yaml:"disabled"`
		Command  string   `yaml:"command"`
		Args     []string `yaml:"args"`
	} `yaml:"secret_key"`

	// Journal is a BBolt database path, or a postgres:// or postgresql://
	// URL for the PostgreSQL repository. Empty disables it.
	Journal string `yaml:"journal"`

	Server struct {
		Addr string `yaml:"addr"`
		// TrustedProxies lists CIDR ranges whose forwarding headers identify
		// the client for CA password throttling.
		TrustedProxies []string `yaml:"trusted_proxies"`
		// AuditWebhook receives a JSON copy of every API audit event.
		AuditWebhook struct {
			URL        string `yaml:"url"`
			AuthHeader string `yaml:"auth_header"`
		} `yaml:"audit_webhook"`
		// Auth enables bearer token checks on the API. The HMAC secret is
		// read from SecretFile, or from $IRONPKI_API_SECRET when unset.
		Auth struct {
			SecretFile string `yaml:"secret_file"`
			Audience   string `yaml:"audience"`
		} `yaml:"auth"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads path on top of Default. A missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields pki.New does not check itself.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.SecretKey.Command == "" && len(c.SecretKey.Args) > 0 {
		return fmt.Errorf("secret_key.args given without secret_key.command")
	}
	if c.Server.AuditWebhook.AuthHeader != "" && !strings.Contains(c.Server.AuditWebhook.AuthHeader, ":") {
		return fmt.Errorf(`server.audit_webhook.auth_header must be "Header: Value"`)
	}
	if _, err := c.TrustedProxies(); err != nil {
		return err
	}
	return nil
}

// APISecretEnv names the environment variable holding the token secret.
const APISecretEnv = "IRONPKI_API_SECRET"

// TokenSecret returns the API token secret, or nil when auth is not
// configured. Surrounding whitespace in the file is ignored.
func (c *Config) TokenSecret() ([]byte, error) {
	var secret []byte
	if path := c.Server.Auth.SecretFile; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading server.auth.secret_file: %w", err)
		}
		secret = bytes.TrimSpace(data)
	} else if v := os.Getenv(APISecretEnv); v != "" {
		secret = []byte(strings.TrimSpace(v))
	}
	if secret == nil {
		return nil, nil
	}
	if len(secret) < api.MinTokenSecretLen {
		return nil, fmt.Errorf("API token secret must be at least %d bytes", api.MinTokenSecretLen)
	}
	return secret, nil
}

// TrustedProxies parses Server.TrustedProxies. A bare address is treated as
// a single-host prefix.
func (c *Config) TrustedProxies() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.Server.TrustedProxies {
		if addr, err := netip.ParseAddr(raw); err == nil {
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: invalid CIDR %q", raw)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

// Options converts the file settings into pki options. Only non-zero fields
// produce an option so the package defaults still apply.
func (c *Config) Options() []pki.Option {
	var opts []pki.Option
	if c.EasyRSA != "" {
		opts = append(opts, pki.WithEasyRSADir(c.EasyRSA))
	}
	if c.PKI != "" {
		opts = append(opts, pki.WithPKIDir(c.PKI))
	}
	if c.Vars != "" {
		opts = append(opts, pki.WithVarsFile(c.Vars))
	}
	if c.Days != 0 {
		opts = append(opts, pki.WithCADays(c.Days))
	}
	if c.CertDays != 0 {
		opts = append(opts, pki.WithCertDays(c.CertDays))
	}
	if c.Digest != "" {
		opts = append(opts, pki.WithDigest(pki.Digest(c.Digest)))
	}
	if c.Algo != "" {
		opts = append(opts, pki.WithAlgorithm(pki.Algorithm(c.Algo)))
	}
	if c.KeySize != 0 {
		opts = append(opts, pki.WithKeySize(c.KeySize))
	}
	if c.Curve != "" {
		opts = append(opts, pki.WithCurve(c.Curve))
	}
	switch {
	case c.SecretKey.Disabled:
		opts = append(opts, pki.WithSecretKeyCommand())
	case c.SecretKey.Command != "":
		argv := append([]string{c.SecretKey.Command}, c.SecretKey.Args...)
		opts = append(opts, pki.WithSecretKeyCommand(argv...))
	}
	return opts
}
