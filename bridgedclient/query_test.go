package bridgedclient

import (
	"strings"
	"testing"
	"time"

	"github.com/bridgehub/ircbridge/opcache"
)

func TestWhoisRejectsWithoutUserReply(t *testing.T) {
	c, fs, _ := newConnectedClient(t, nil)
	defer fs.close()

	go func() {
		pollUntil(time.Second, func() bool { return len(fs.linesContaining("WHOIS ghost")) > 0 })
		fs.send(":fakeserver 318 alice ghost :End of /WHOIS list.")
	}()

	if _, err := c.Whois("ghost"); err == nil {
		t.Fatal("expected an error for a nick with no RPL_WHOISUSER reply")
	}
}

func TestWhoisFormatsSummary(t *testing.T) {
	c, fs, _ := newConnectedClient(t, nil)
	defer fs.close()

	go func() {
		pollUntil(time.Second, func() bool { return len(fs.linesContaining("WHOIS bob")) > 0 })
		fs.send(":fakeserver 311 alice bob bobuser bobhost * :Bob Realname")
		fs.send(":fakeserver 319 alice bob :@#room1 #room2")
		fs.send(":fakeserver 318 alice bob :End of /WHOIS list.")
	}()

	info, err := c.Whois("bob")
	if err != nil {
		t.Fatalf("Whois: %v", err)
	}
	if !strings.Contains(info.Msg, "bobuser@bobhost") {
		t.Fatalf("msg = %q, want it to contain bobuser@bobhost", info.Msg)
	}
	if !strings.Contains(info.Msg, "#room1") {
		t.Fatalf("msg = %q, want it to contain the channel list", info.Msg)
	}
}

func TestGetNicksParsesPrefixes(t *testing.T) {
	c, fs, _ := newConnectedClient(t, nil)
	defer fs.close()

	go func() {
		pollUntil(time.Second, func() bool { return len(fs.linesContaining("NAMES #room")) > 0 })
		fs.send(":fakeserver 353 alice = #room :@op1 +voiced1 plain1")
		fs.send(":fakeserver 366 alice #room :End of /NAMES list.")
	}()

	result, err := c.GetNicks("#room")
	if err != nil {
		t.Fatalf("GetNicks: %v", err)
	}
	if result.Names["op1"] != "@" {
		t.Fatalf("op1 prefix = %q, want @", result.Names["op1"])
	}
	if result.Names["voiced1"] != "+" {
		t.Fatalf("voiced1 prefix = %q, want +", result.Names["voiced1"])
	}
	if result.Names["plain1"] != "" {
		t.Fatalf("plain1 prefix = %q, want empty", result.Names["plain1"])
	}
}

func TestGetOperatorsUsesCacheWhenConfigured(t *testing.T) {
	c, fs, _ := newConnectedClient(t, nil)
	defer fs.close()
	c.opStore = opcache.NewInProcess()

	seed := opcache.Snapshot{Nicks: []string{"op1"}, Names: map[string]string{"op1": "@"}, OperatorNicks: []string{"op1"}}
	c.opStore.Set(c.instanceID+":#room", seed, time.Minute)

	result, err := c.GetOperators("#room", GetOperatorsOpts{CacheDurationMs: 60000})
	if err != nil {
		t.Fatalf("GetOperators: %v", err)
	}
	if len(result.OperatorNicks) != 1 || result.OperatorNicks[0] != "op1" {
		t.Fatalf("OperatorNicks = %v, want [op1] from cache", result.OperatorNicks)
	}
	// No JOIN/NAMES/PART should have hit the wire since the cache served it.
	if len(fs.linesContaining("JOIN #room")) != 0 {
		t.Fatal("GetOperators issued a network JOIN despite a cache hit")
	}
}

func TestGetOperatorsRejectsNegativeCacheDuration(t *testing.T) {
	c, fs, _ := newConnectedClient(t, nil)
	defer fs.close()

	if _, err := c.GetOperators("#room", GetOperatorsOpts{CacheDurationMs: -1}); err == nil {
		t.Fatal("expected an error for a negative cacheDurationMs")
	}
}
