// Package config loads the bridge's TOML configuration: one server table
// per IRC network plus bridge-wide settings, with environment variable
// overrides applied after decode.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bridgehub/ircbridge/bridgedclient"
)

// Config is the top-level bridge configuration.
type Config struct {
	Bridge  BridgeConfig           `toml:"bridge"`
	Logging LoggingConfig          `toml:"logging"`
	Servers map[string]ServerTable `toml:"servers"`
}

// BridgeConfig carries settings that apply to the whole process rather
// than to any one IRC network.
type BridgeConfig struct {
	NATSURL          string `toml:"nats_url"`
	RedisURL         string `toml:"redis_url"`
	MaxOutboundConns int    `toml:"max_outbound_conns"`
	ShutdownSeconds  int    `toml:"shutdown_seconds"`
}

// LoggingConfig controls the process-wide structured logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerTable is the TOML-facing shape of one bridgedclient.ServerDescriptor.
type ServerTable struct {
	Domain               string      `toml:"domain"`
	DefaultPassword      string      `toml:"default_password"`
	NickTemplate         string      `toml:"nick_template"`
	UserModes            string      `toml:"user_modes"`
	IdleTimeoutSeconds   int         `toml:"idle_timeout_seconds"`
	MessageExpirySeconds int         `toml:"message_expiry_seconds"`
	IPv6Prefix           string      `toml:"ipv6_prefix"`
	ExcludedChannels     []string    `toml:"excluded_channels"`
	Dialer               DialerTable `toml:"dialer"`
}

// DialerTable is the TOML-facing shape of the Connection Instance's dialer
// options: an optional bound IPv6 source address and an optional SOCKS
// proxy hop.
type DialerTable struct {
	BindIPv6 bool        `toml:"bind_ipv6"`
	Proxy    *ProxyTable `toml:"proxy"`
}

// ProxyTable is the TOML-facing shape of bridgedclient.ProxyDescriptor.
type ProxyTable struct {
	Type     string `toml:"type"`
	Address  string `toml:"address"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

func defaults() Config {
	return Config{
		Bridge: BridgeConfig{
			MaxOutboundConns: 1000,
			ShutdownSeconds:  15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Servers: make(map[string]ServerTable),
	}
}

// Load reads path, applies defaults for missing values, then applies
// environment variable overrides. A missing file is not an error: defaults
// plus environment overrides alone may fully describe the configuration.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return &cfg, validate(&cfg)
		}
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// applyEnvOverrides overrides server fields with environment variables of
// the form IRCBRIDGE_<SERVER>_<FIELD>, server names uppercased with
// non-alphanumerics mapped to underscore.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IRCBRIDGE_NATS_URL"); v != "" {
		cfg.Bridge.NATSURL = v
	}
	if v := os.Getenv("IRCBRIDGE_REDIS_URL"); v != "" {
		cfg.Bridge.RedisURL = v
	}
	if v := os.Getenv("IRCBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IRCBRIDGE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	for name, table := range cfg.Servers {
		prefix := "IRCBRIDGE_" + envName(name) + "_"
		if v := os.Getenv(prefix + "PASSWORD"); v != "" {
			table.DefaultPassword = v
		}
		if v := os.Getenv(prefix + "DOMAIN"); v != "" {
			table.Domain = v
		}
		if v := os.Getenv(prefix + "NICK_TEMPLATE"); v != "" {
			table.NickTemplate = v
		}
		if v := os.Getenv(prefix + "PROXY_PASSWORD"); v != "" && table.Dialer.Proxy != nil {
			table.Dialer.Proxy.Password = v
		}
		cfg.Servers[name] = table
	}
}

func envName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func validate(cfg *Config) error {
	for name, table := range cfg.Servers {
		if table.Domain == "" {
			return fmt.Errorf("config: server %q: domain is required", name)
		}
		if table.Dialer.Proxy != nil {
			switch table.Dialer.Proxy.Type {
			case "socks4", "socks4a", "socks5":
			default:
				return fmt.Errorf("config: server %q: unknown proxy type %q", name, table.Dialer.Proxy.Type)
			}
		}
	}
	return nil
}

// ServerDescriptor converts the named server table into a
// bridgedclient.ServerDescriptor, parsing its IPv6 prefix (if any) into a
// *net.IPNet.
func (c *Config) ServerDescriptor(name string) (*bridgedclient.ServerDescriptor, error) {
	table, ok := c.Servers[name]
	if !ok {
		return nil, fmt.Errorf("config: no such server %q", name)
	}

	var prefix *net.IPNet
	if table.IPv6Prefix != "" {
		_, parsed, err := net.ParseCIDR(table.IPv6Prefix)
		if err != nil {
			return nil, fmt.Errorf("config: server %q: parsing ipv6_prefix %q: %w", name, table.IPv6Prefix, err)
		}
		prefix = parsed
	}

	var proxy *bridgedclient.ProxyDescriptor
	if p := table.Dialer.Proxy; p != nil {
		proxy = &bridgedclient.ProxyDescriptor{
			Type:     p.Type,
			Address:  p.Address,
			Username: p.Username,
			Password: p.Password,
		}
	}

	excluded := make(map[string]bool, len(table.ExcludedChannels))
	for _, ch := range table.ExcludedChannels {
		excluded[strings.ToLower(ch)] = true
	}

	return &bridgedclient.ServerDescriptor{
		Domain:               table.Domain,
		DefaultPassword:      table.DefaultPassword,
		NickTemplate:         table.NickTemplate,
		UserModes:            table.UserModes,
		IdleTimeoutSeconds:   table.IdleTimeoutSeconds,
		MessageExpirySeconds: table.MessageExpirySeconds,
		IPv6Prefix:           prefix,
		BindIPv6:             table.Dialer.BindIPv6,
		Proxy:                proxy,
		ExcludedChannel: func(channel string) bool {
			return excluded[strings.ToLower(channel)]
		},
	}, nil
}

// MaxOutboundConnsOrDefault returns Bridge.MaxOutboundConns, or n if it is
// unset (<= 0).
func (c *Config) MaxOutboundConnsOrDefault(n int) int {
	if c.Bridge.MaxOutboundConns > 0 {
		return c.Bridge.MaxOutboundConns
	}
	return n
}

// ShutdownTimeoutSeconds returns Bridge.ShutdownSeconds, defaulting to 15.
func (c *Config) ShutdownTimeoutSeconds() int {
	if c.Bridge.ShutdownSeconds > 0 {
		return c.Bridge.ShutdownSeconds
	}
	return 15
}
