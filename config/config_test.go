package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.MaxOutboundConns != 1000 {
		t.Fatalf("MaxOutboundConns = %d, want default 1000", cfg.Bridge.MaxOutboundConns)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadParsesServerTable(t *testing.T) {
	path := writeTemp(t, "ircbridge.toml", `
[bridge]
nats_url = "nats://localhost:4222"

[servers.freenode]
domain = "irc.libera.chat:6697"
nick_template = "$DISPLAYNAME[m]"
idle_timeout_seconds = 300
excluded_channels = ["#spam"]

[servers.freenode.dialer]
bind_ipv6 = true

[servers.freenode.dialer.proxy]
type = "socks5"
address = "127.0.0.1:1080"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	table, ok := cfg.Servers["freenode"]
	if !ok {
		t.Fatal("servers.freenode not parsed")
	}
	if table.Domain != "irc.libera.chat:6697" {
		t.Fatalf("Domain = %q", table.Domain)
	}
	if !table.Dialer.BindIPv6 {
		t.Fatal("dialer.bind_ipv6 not parsed")
	}
	if table.Dialer.Proxy == nil || table.Dialer.Proxy.Type != "socks5" {
		t.Fatalf("dialer.proxy not parsed: %+v", table.Dialer.Proxy)
	}

	desc, err := cfg.ServerDescriptor("freenode")
	if err != nil {
		t.Fatalf("ServerDescriptor: %v", err)
	}
	if desc.IdleTimeoutSeconds != 300 {
		t.Fatalf("IdleTimeoutSeconds = %d, want 300", desc.IdleTimeoutSeconds)
	}
	if !desc.ExcludedChannel("#SPAM") {
		t.Fatal("ExcludedChannel should be case-insensitive")
	}
	if desc.ExcludedChannel("#general") {
		t.Fatal("#general should not be excluded")
	}
}

func TestLoadRejectsUnknownProxyType(t *testing.T) {
	path := writeTemp(t, "ircbridge.toml", `
[servers.freenode]
domain = "irc.libera.chat:6697"

[servers.freenode.dialer.proxy]
type = "socks9"
address = "127.0.0.1:1080"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown proxy type")
	}
}

func TestLoadRejectsMissingDomain(t *testing.T) {
	path := writeTemp(t, "ircbridge.toml", `
[servers.freenode]
nick_template = "$DISPLAYNAME"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a server table with no domain")
	}
}

func TestEnvOverridesPassword(t *testing.T) {
	path := writeTemp(t, "ircbridge.toml", `
[servers.freenode]
domain = "irc.libera.chat:6697"
default_password = "fromfile"
`)
	t.Setenv("IRCBRIDGE_FREENODE_PASSWORD", "fromenv")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Servers["freenode"].DefaultPassword != "fromenv" {
		t.Fatalf("DefaultPassword = %q, want env override", cfg.Servers["freenode"].DefaultPassword)
	}
}
