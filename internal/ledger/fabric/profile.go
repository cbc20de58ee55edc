package fabric

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"titleregistry/internal/ledger"
)

const serverNameOverride = "ssl-target-name-override"

// ProfileLoader reads common connection profiles as JSON (comments and
// trailing commas allowed) or YAML, chosen by file extension.
type ProfileLoader struct {
	// AsLocalhost rewrites every peer host to localhost.
	AsLocalhost bool
}

type rawProfile struct {
	Name          string                     `json:"name" yaml:"name"`
	Version       string                     `json:"version" yaml:"version"`
	Organizations map[string]rawOrganization `json:"organizations" yaml:"organizations"`
	Peers         map[string]rawPeer         `json:"peers" yaml:"peers"`
}

type rawOrganization struct {
	MSPID string   `json:"mspid" yaml:"mspid"`
	Peers []string `json:"peers" yaml:"peers"`
}

type rawPeer struct {
	URL        string `json:"url" yaml:"url"`
	TLSCACerts struct {
		PEM  string `json:"pem" yaml:"pem"`
		Path string `json:"path" yaml:"path"`
	} `json:"tlsCACerts" yaml:"tlsCACerts"`
	GRPCOptions map[string]any `json:"grpcOptions" yaml:"grpcOptions"`
}

// Load implements ledger.ProfileLoader.
func (l ProfileLoader) Load(path string) (*ledger.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading connection profile %s: %w", path, err)
	}

	var raw rawProfile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing connection profile %s: %w", path, err)
	}
	if len(raw.Peers) == 0 {
		return nil, fmt.Errorf("connection profile %s declares no peers", path)
	}

	profile := &ledger.Profile{
		Name:          raw.Name,
		Version:       raw.Version,
		Organizations: make(map[string]ledger.Organization, len(raw.Organizations)),
		Peers:         make(map[string]ledger.Peer, len(raw.Peers)),
	}
	for name, org := range raw.Organizations {
		profile.Organizations[name] = ledger.Organization{
			Name:  name,
			MSPID: org.MSPID,
			Peers: org.Peers,
		}
	}

	base := filepath.Dir(path)
	for name, p := range raw.Peers {
		peer, err := l.peer(base, name, p)
		if err != nil {
			return nil, fmt.Errorf("connection profile %s: %w", path, err)
		}
		profile.Peers[name] = peer
	}
	return profile, nil
}

func (l ProfileLoader) peer(base, name string, p rawPeer) (ledger.Peer, error) {
	if p.URL == "" {
		return ledger.Peer{}, fmt.Errorf("peer %s has no url", name)
	}
	peer := ledger.Peer{Name: name, URL: p.URL}

	switch {
	case p.TLSCACerts.PEM != "":
		peer.TLSCACertPEM = []byte(p.TLSCACerts.PEM)
	case p.TLSCACerts.Path != "":
		certPath := p.TLSCACerts.Path
		if !filepath.IsAbs(certPath) {
			certPath = filepath.Join(base, certPath)
		}
		pem, err := os.ReadFile(certPath)
		if err != nil {
			return ledger.Peer{}, fmt.Errorf("peer %s tls ca: %w", name, err)
		}
		peer.TLSCACertPEM = pem
	}

	if override, ok := p.GRPCOptions[serverNameOverride].(string); ok {
		peer.ServerNameOverride = override
	}

	if l.AsLocalhost {
		rewritten, err := toLocalhost(p.URL)
		if err != nil {
			return ledger.Peer{}, fmt.Errorf("peer %s: %w", name, err)
		}
		peer.URL = rewritten
		if peer.ServerNameOverride == "" {
			peer.ServerNameOverride = hostOf(p.URL)
		}
	}
	return peer, nil
}

func toLocalhost(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid peer url %q", raw)
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort("localhost", port)
	} else {
		u.Host = "localhost"
	}
	return u.String(), nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
