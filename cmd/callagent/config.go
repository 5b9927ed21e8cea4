package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"commerce-calls/internal/media"
)

// answerMode decides what the agent does with a ringing call.
type answerMode string

const (
	answerNever     answerMode = "never"
	answerAlways    answerMode = "always"
	answerAllowlist answerMode = "allowlist"
)

type agentConfig struct {
	Env string `yaml:"env"`

	RelayURL string `yaml:"relay_url"`
	// APIURL receives call records. Empty keeps history local only.
	APIURL string `yaml:"api_url"`
	Token  string `yaml:"token"`

	TenantID   string `yaml:"tenant_id"`
	SelfID     string `yaml:"self_id"`
	SelfName   string `yaml:"self_name"`
	SelfAvatar string `yaml:"self_avatar"`

	ICEServers []media.ICEServer `yaml:"ice_servers"`

	AutoAnswer  answerMode    `yaml:"auto_answer"`
	Allow       []string      `yaml:"allow"`
	AnswerDelay time.Duration `yaml:"answer_delay"`
	// HangupAfter ends connected calls after this long. Zero keeps them up.
	HangupAfter time.Duration `yaml:"hangup_after"`

	HistoryDB string `yaml:"history_db"`

	DialTimeout time.Duration `yaml:"dial_timeout"`
	RingTimeout time.Duration `yaml:"ring_timeout"`

	// Call places one outgoing call at startup.
	Call     string `yaml:"call"`
	CallType string `yaml:"call_type"`
}

func defaultConfig() agentConfig {
	return agentConfig{
		Env:         "dev",
		AutoAnswer:  answerNever,
		HistoryDB:   "callagent.db",
		DialTimeout: 60 * time.Second,
		RingTimeout: 30 * time.Second,
		CallType:    "voice",
	}
}

// loadConfig merges the YAML file named by --config with flags. Flags win.
func loadConfig(args []string) (agentConfig, error) {
	cfg := defaultConfig()

	fs := pflag.NewFlagSet("callagent", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "environment: local, dev, staging, production")
	fs.StringVar(&cfg.RelayURL, "relay", "", "signaling websocket URL")
	fs.StringVar(&cfg.APIURL, "api", "", "API base URL for call records")
	fs.StringVar(&cfg.Token, "token", "", "access token (default $CALLAGENT_TOKEN)")
	fs.StringVar(&cfg.TenantID, "tenant", "", "tenant id of the token")
	fs.StringVar(&cfg.SelfID, "self-id", "", "user id of the token")
	fs.StringVar(&cfg.SelfName, "self-name", "", "display name sent on offers")
	fs.StringVar((*string)(&cfg.AutoAnswer), "auto-answer", string(cfg.AutoAnswer), "never, always or allowlist")
	fs.StringSliceVar(&cfg.Allow, "allow", nil, "caller ids answered in allowlist mode")
	fs.DurationVar(&cfg.AnswerDelay, "answer-delay", 0, "wait before auto-answering")
	fs.DurationVar(&cfg.HangupAfter, "hangup-after", 0, "end connected calls after this long")
	fs.StringVar(&cfg.HistoryDB, "history-db", cfg.HistoryDB, "SQLite file for local call history")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "how long an outgoing call may ring")
	fs.DurationVar(&cfg.RingTimeout, "ring-timeout", cfg.RingTimeout, "how long an incoming call rings")
	fs.StringVar(&cfg.Call, "call", "", "user id to call at startup")
	fs.StringVar(&cfg.CallType, "call-type", cfg.CallType, "voice or video")
	stun := fs.StringSlice("stun", nil, "STUN/TURN URLs, replacing the configured ICE servers")

	if err := fs.Parse(args); err != nil {
		return agentConfig{}, err
	}
	if fs.NArg() > 0 {
		return agentConfig{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	if *configPath != "" {
		fromFile, err := readConfigFile(*configPath)
		if err != nil {
			return agentConfig{}, err
		}
		// Re-apply only the flags the user set on top of the file.
		flagged := cfg
		cfg = fromFile
		fs.Visit(func(f *pflag.Flag) { overlay(&cfg, flagged, f.Name) })
	}
	if len(*stun) > 0 {
		cfg.ICEServers = []media.ICEServer{{URLs: *stun}}
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("CALLAGENT_TOKEN")
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = media.DefaultICEServers()
	}
	return cfg, cfg.validate()
}

func readConfigFile(path string) (agentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return agentConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return agentConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func overlay(dst *agentConfig, src agentConfig, flag string) {
	switch flag {
	case "env":
		dst.Env = src.Env
	case "relay":
		dst.RelayURL = src.RelayURL
	case "api":
		dst.APIURL = src.APIURL
	case "token":
		dst.Token = src.Token
	case "tenant":
		dst.TenantID = src.TenantID
	case "self-id":
		dst.SelfID = src.SelfID
	case "self-name":
		dst.SelfName = src.SelfName
	case "auto-answer":
		dst.AutoAnswer = src.AutoAnswer
	case "allow":
		dst.Allow = src.Allow
	case "answer-delay":
		dst.AnswerDelay = src.AnswerDelay
	case "hangup-after":
		dst.HangupAfter = src.HangupAfter
	case "history-db":
		dst.HistoryDB = src.HistoryDB
	case "dial-timeout":
		dst.DialTimeout = src.DialTimeout
	case "ring-timeout":
		dst.RingTimeout = src.RingTimeout
	case "call":
		dst.Call = src.Call
	case "call-type":
		dst.CallType = src.CallType
	}
}

func (c agentConfig) validate() error {
	var errs []error
	if c.RelayURL == "" {
		errs = append(errs, errors.New("relay url is required"))
	} else if u, err := url.Parse(c.RelayURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("relay url must be ws:// or wss://: %q", c.RelayURL))
	}
	if c.APIURL != "" {
		if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("api url must be http:// or https://: %q", c.APIURL))
		}
	}
	if c.Token == "" {
		errs = append(errs, errors.New("token is required"))
	}
	if c.TenantID == "" || c.SelfID == "" {
		errs = append(errs, errors.New("tenant and self-id are required"))
	}
	switch c.AutoAnswer {
	case answerNever, answerAlways:
	case answerAllowlist:
		if len(c.Allow) == 0 {
			errs = append(errs, errors.New("allowlist mode needs at least one --allow id"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auto-answer mode %q", c.AutoAnswer))
	}
	if c.DialTimeout <= 0 || c.RingTimeout <= 0 {
		errs = append(errs, errors.New("dial and ring timeouts must be positive"))
	} else if c.RingTimeout > c.DialTimeout {
		errs = append(errs, errors.New("ring timeout must not exceed dial timeout"))
	}
	if c.AnswerDelay < 0 || c.HangupAfter < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.AnswerDelay >= c.RingTimeout && c.AutoAnswer != answerNever {
		errs = append(errs, errors.New("answer delay must be shorter than the ring timeout"))
	}
	if c.CallType != "voice" && c.CallType != "video" {
		errs = append(errs, fmt.Errorf("unknown call type %q", c.CallType))
	}
	if c.Call != "" && c.Call == c.SelfID {
		errs = append(errs, errors.New("cannot call yourself"))
	}
	if strings.TrimSpace(c.HistoryDB) == "" {
		errs = append(errs, errors.New("history db path is required"))
	}
	return errors.Join(errs...)
}

// shouldAnswer applies the auto-answer policy to a caller.
func (c agentConfig) shouldAnswer(callerID string) bool {
	switch c.AutoAnswer {
	case answerAlways:
		return true
	case answerAllowlist:
		for _, id := range c.Allow {
			if id == callerID {
				return true
			}
		}
	}
	return false
}
