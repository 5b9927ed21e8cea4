package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func baseArgs() []string {
	return []string{"--relay", "ws://localhost:8080/v1/calls/signal", "--token", "tok", "--tenant", "mkt", "--self-id", "agent-1"}
}

func TestLoadConfig_FlagsOnly(t *testing.T) {
	cfg, err := loadConfig(baseArgs())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AutoAnswer != answerNever || cfg.DialTimeout != 60*time.Second || cfg.RingTimeout != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.ICEServers) == 0 {
		t.Fatalf("expected default ICE servers")
	}
}

func TestLoadConfig_FileWithFlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	yml := `
relay_url: wss://relay.example.com/v1/calls/signal
token: file-token
tenant_id: mkt
self_id: agent-1
auto_answer: allowlist
allow: [cust-1, cust-2]
ring_timeout: 20s
ice_servers:
  - urls: ["turn:turn.example.com:3478"]
    username: u
    credential: p
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := loadConfig([]string{"--config", path, "--token", "flag-token"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Token != "flag-token" {
		t.Fatalf("flag must override file, got %q", cfg.Token)
	}
	if cfg.RelayURL != "wss://relay.example.com/v1/calls/signal" || cfg.RingTimeout != 20*time.Second {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.DialTimeout != 60*time.Second {
		t.Fatalf("expected default dial timeout, got %s", cfg.DialTimeout)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].Username != "u" {
		t.Fatalf("unexpected ICE servers: %+v", cfg.ICEServers)
	}
	if !cfg.shouldAnswer("cust-2") || cfg.shouldAnswer("cust-3") {
		t.Fatalf("allowlist not applied")
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	cases := map[string][]string{
		"relay scheme":     {"--relay", "http://x"},
		"ring over dial":   {"--ring-timeout", "90s"},
		"bad mode":         {"--auto-answer", "sometimes"},
		"empty allowlist":  {"--auto-answer", "allowlist"},
		"call self":        {"--call", "agent-1"},
		"bad call type":    {"--call-type", "fax"},
		"slow auto-answer": {"--auto-answer", "always", "--answer-delay", "45s"},
		"api scheme":       {"--api", "ftp://x"},
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadConfig(append(baseArgs(), extra...)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfig_MissingIdentity(t *testing.T) {
	t.Setenv("CALLAGENT_TOKEN", "")
	_, err := loadConfig([]string{"--relay", "ws://x"})
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"token is required", "tenant and self-id are required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestLoadConfig_TokenFromEnv(t *testing.T) {
	t.Setenv("CALLAGENT_TOKEN", "env-token")
	cfg, err := loadConfig([]string{"--relay", "ws://x", "--tenant", "mkt", "--self-id", "a"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Token != "env-token" {
		t.Fatalf("expected env token, got %q", cfg.Token)
	}
}

func TestShouldAnswer(t *testing.T) {
	never := agentConfig{AutoAnswer: answerNever}
	always := agentConfig{AutoAnswer: answerAlways}
	if never.shouldAnswer("x") || !always.shouldAnswer("x") {
		t.Fatalf("unexpected policy result")
	}
}
