package media

import (
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// ICEServer is the YAML/JSON shape of one STUN or TURN server.
type ICEServer struct {
	URLs       []string `yaml:"urls" json:"urls"`
	Username   string   `yaml:"username,omitempty" json:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty" json:"credential,omitempty"`
}

type Config struct {
	ICEServers []ICEServer
	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host tests.
	IncludeLoopback bool
	Logger          *slog.Logger
}

// DefaultICEServers is a single public STUN server.
func DefaultICEServers() []ICEServer {
	return []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}

func (c Config) pionServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}
