package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hostacl/hostacl"
	"github.com/hostacl/hostacl/slogc"
	"github.com/hostacl/hostacl/statusc"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigs(t *testing.T) {
	base := writeConfig(t, "base.toml", `
log-level = "debug"

[access]
order = "deny,allow"
rules = ["deny % from all", "allow % from 10.0.0.0/8"]

[access.trusted-proxies]
"10.0.0.2" = "X-Forwarded-For"

[serve]
addr = ":8080"
`)
	local := writeConfig(t, "local.toml", `
[access]
server-addr = "10.0.0.1"
rules = ["allow % from localnetC"]

[access.trusted-proxies]
"10.0.0.3" = "X-Real-IP"

[serve]
status-addr = ":8081"
`)

	cfg, err := loadConfigs([]string{base, local})
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "deny,allow", cfg.Access.Order)
	require.Equal(t, "10.0.0.1", cfg.Access.ServerAddr)
	require.Equal(t, []string{"allow % from localnetC"}, cfg.Access.Rules)
	require.Equal(t, map[string]string{"10.0.0.2": "X-Forwarded-For", "10.0.0.3": "X-Real-IP"}, cfg.Access.TrustedProxies)
	require.Equal(t, ":8080", cfg.Serve.Addr)
	require.Equal(t, ":8081", cfg.Serve.StatusAddr)
}

func TestLoadConfigUnknownField(t *testing.T) {
	_, err := loadConfigs([]string{writeConfig(t, "bad.toml", "[access]\nodrer = \"explicit\"\n")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "odrer")
}

func TestPolicy(t *testing.T) {
	rulesFile := writeConfig(t, "rules.txt", "# extra\nallow bob from 192.168.0.0/16\n")
	access := AccessConfig{
		Order:     "explicit",
		Rules:     []string{"allow % from 10.0.0.0/8", "broken"},
		RulesFile: rulesFile,
	}

	policy, err := access.policy()
	require.NoError(t, err)
	require.Equal(t, hostacl.Explicit, policy.Order)
	require.Len(t, policy.Rules, 3)
	require.Error(t, policy.Rules[1].Err)
	require.Equal(t, "allow bob from 192.168.0.0/16", policy.Rules[2].Line)

	_, err = AccessConfig{}.policy()
	require.ErrorIs(t, err, hostacl.ErrNoOrder)

	_, err = AccessConfig{Order: "allow"}.policy()
	require.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	cfg := writeConfig(t, "hostacl.toml", `
[access]
order = "allowlist"
rules = ["allow % from 10.0.0.0/8", "allow % from 10.0.0.0/40"]
`)

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "--config", cfg})
	err := cmd.Execute()
	require.Error(t, err)
	require.Contains(t, out.String(), "rule 1 'allow % from 10.0.0.0/40'")
	require.Contains(t, out.String(), "rules=2 invalid=1")

	cmd = rootCmd()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "--order", "explicit", "--rule", "allow % from all"})
	require.NoError(t, cmd.Execute())
	require.True(t, strings.HasPrefix(out.String(), "order=explicit rules=1 invalid=0"))
}

func TestDecideCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"decide", "--order", "explicit", "--rule", "allow % from 10.0.0.0/8", "--addr", "10.1.2.3"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), `"allowed": true`)

	cmd = rootCmd()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"decide", "--order", "explicit", "--rule", "allow % from 10.0.0.0/8"})
	err := cmd.Execute()
	require.ErrorIs(t, err, errDenied)
	require.Contains(t, out.String(), `"reason": "unknown-client-address"`)
}

func TestDecideHandler(t *testing.T) {
	guard, err := hostacl.NewGuard(hostacl.GuardOrder(hostacl.Explicit),
		hostacl.GuardRules("allow alice from 10.0.0.0/8"), hostacl.GuardLogger(slogc.Discard()))
	require.NoError(t, err)
	h := decideHandler(guard)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/decide", strings.NewReader(`{"user":"alice","addr":"10.0.0.1"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"allowed":true`)
	require.Contains(t, rec.Body.String(), `"reason":"allow-rule-matched"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/decide", strings.NewReader(`{"usr":"alice"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReloadConfig(t *testing.T) {
	guard, err := hostacl.NewGuard(hostacl.GuardOrder(hostacl.AllowDeny),
		hostacl.GuardRules("allow % from all"), hostacl.GuardLogger(slogc.Discard()))
	require.NoError(t, err)

	requireStatus := func(status statusc.Status, failures uint64) {
		stat, err := guard.Status(context.Background())
		require.NoError(t, err)
		require.Equal(t, status, stat.Status)
		require.Equal(t, failures, stat.ReloadFailures)
	}

	reloadConfig(guard, func() (Config, error) { return Config{}, errors.New("cannot read config") })
	requireStatus(statusc.ReloadFailed, 1)
	require.True(t, guard.Decide(hostacl.Request{Addr: "10.0.0.1"}).Allowed)

	reloadConfig(guard, func() (Config, error) {
		return Config{Access: AccessConfig{Rules: []string{"deny % from all"}}}, nil
	})
	requireStatus(statusc.ReloadFailed, 2)
	require.True(t, guard.Decide(hostacl.Request{Addr: "10.0.0.1"}).Allowed)

	reloadConfig(guard, func() (Config, error) {
		return Config{Access: AccessConfig{Order: "allow,deny", Rules: []string{"deny % from all"}}}, nil
	})
	requireStatus(statusc.Loaded, 2)
	require.False(t, guard.Decide(hostacl.Request{Addr: "10.0.0.1"}).Allowed)
}
