package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/rpc-dashboard/internal/types"
)

// Sentinel values for providers without a WebSocket endpoint
var wsUnsupported = map[string]bool{"": true, "not_supported": true, "none": true}

// ProviderConfig is one configured RPC endpoint
type ProviderConfig struct {
	Blockchain        string         `json:"blockchain" yaml:"blockchain"`
	Name              string         `json:"name" yaml:"name"`
	Region            string         `json:"region,omitempty" yaml:"region,omitempty"`
	HTTPEndpoint      string         `json:"http_endpoint" yaml:"http_endpoint"`
	WebSocketEndpoint string         `json:"websocket_endpoint,omitempty" yaml:"websocket_endpoint,omitempty"`
	TxEndpoint        string         `json:"tx_endpoint,omitempty" yaml:"tx_endpoint,omitempty"`
	Data              map[string]any `json:"data,omitempty" yaml:"data,omitempty"`

	chain types.Blockchain
}

// Chain returns the resolved blockchain. Valid only after Validate.
func (p ProviderConfig) Chain() types.Blockchain {
	return p.chain
}

// SupportsWebSocket reports whether a usable WebSocket endpoint is configured
func (p ProviderConfig) SupportsWebSocket() bool {
	return !wsUnsupported[strings.ToLower(strings.TrimSpace(p.WebSocketEndpoint))]
}

// ChainSettings holds per-blockchain tuning
type ChainSettings struct {
	// Offsets is the (low, high) pair of blocks behind latest used for historical probes
	Offsets []uint64 `json:"offsets,omitempty" yaml:"offsets,omitempty"`

	// Regions restricts collection to these source regions, empty means all
	Regions []string `json:"regions,omitempty" yaml:"regions,omitempty"`
}

// Endpoints is the provider document loaded from ENDPOINTS or ENDPOINTS_FILE
type Endpoints struct {
	// Region is the fallback target region for providers without one
	Region    string                   `json:"region,omitempty" yaml:"region,omitempty"`
	Providers []ProviderConfig         `json:"providers" yaml:"providers"`
	Chains    map[string]ChainSettings `json:"chains,omitempty" yaml:"chains,omitempty"`

	chainSettings map[types.Blockchain]ChainSettings
}

// LoadEndpoints loads the endpoints document, inline JSON first, then the file
func LoadEndpoints(inline, path string) (*Endpoints, error) {
	if strings.TrimSpace(inline) != "" {
		endpoints, err := ParseEndpoints([]byte(inline), "json")
		if err != nil {
			return nil, fmt.Errorf("failed to parse ENDPOINTS: %w", err)
		}
		logrus.Infof("Loaded %d providers from ENDPOINTS", len(endpoints.Providers))
		return endpoints, nil
	}

	if path == "" {
		return nil, errors.New("no endpoints configured: set ENDPOINTS or ENDPOINTS_FILE")
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read endpoints file: %w", err)
	}

	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}

	endpoints, err := ParseEndpoints(fileData, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoints file %s: %w", path, err)
	}

	logrus.Infof("Loaded %d providers from %s", len(endpoints.Providers), path)
	return endpoints, nil
}

// ParseEndpoints decodes and validates an endpoints document
func ParseEndpoints(data []byte, format string) (*Endpoints, error) {
	var endpoints Endpoints

	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &endpoints); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &endpoints); err != nil {
			return nil, err
		}
	}

	if err := endpoints.Validate(); err != nil {
		return nil, err
	}
	return &endpoints, nil
}

// Validate resolves blockchain names and checks required fields.
// Every violation is reported; no entry is ever dropped.
func (e *Endpoints) Validate() error {
	var errs []error

	for i := range e.Providers {
		p := &e.Providers[i]
		chain, err := types.Parse(p.Blockchain)
		if err != nil {
			errs = append(errs, fmt.Errorf("provider #%d (%s): %w", i, p.Name, err))
		} else {
			p.chain = chain
		}

		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("provider #%d: empty name", i))
		}

		if strings.TrimSpace(p.HTTPEndpoint) == "" {
			errs = append(errs, fmt.Errorf("provider #%d (%s): empty http_endpoint", i, p.Name))
		} else if err := checkURL(p.HTTPEndpoint, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("provider #%d (%s): http_endpoint: %w", i, p.Name, err))
		}

		if p.SupportsWebSocket() {
			if err := checkURL(p.WebSocketEndpoint, "ws", "wss"); err != nil {
				errs = append(errs, fmt.Errorf("provider #%d (%s): websocket_endpoint: %w", i, p.Name, err))
			}
		}

		if p.TxEndpoint != "" {
			if err := checkURL(p.TxEndpoint, "http", "https"); err != nil {
				errs = append(errs, fmt.Errorf("provider #%d (%s): tx_endpoint: %w", i, p.Name, err))
			}
		}
	}

	e.chainSettings = make(map[types.Blockchain]ChainSettings, len(e.Chains))
	for name, settings := range e.Chains {
		chain, err := types.Parse(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("chains.%s: %w", name, err))
			continue
		}
		if len(settings.Offsets) > 0 {
			if len(settings.Offsets) != 2 {
				errs = append(errs, fmt.Errorf("chains.%s: offsets must be [low, high]", name))
			} else if settings.Offsets[0] > settings.Offsets[1] {
				errs = append(errs, fmt.Errorf("chains.%s: offset low %d exceeds high %d",
					name, settings.Offsets[0], settings.Offsets[1]))
			}
		}
		e.chainSettings[chain] = settings
	}

	return errors.Join(errs...)
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("expected %s URL, got %q", strings.Join(schemes, "/"), raw)
}

// ProvidersFor returns the providers of a blockchain in configured order
func (e *Endpoints) ProvidersFor(chain types.Blockchain) []ProviderConfig {
	var out []ProviderConfig
	for _, p := range e.Providers {
		if p.chain == chain {
			out = append(out, p)
		}
	}
	return out
}

// Blockchains returns the configured blockchains in first-appearance order
func (e *Endpoints) Blockchains() []types.Blockchain {
	seen := make(map[types.Blockchain]bool)
	var out []types.Blockchain
	for _, p := range e.Providers {
		if p.chain == "" || seen[p.chain] {
			continue
		}
		seen[p.chain] = true
		out = append(out, p.chain)
	}
	return out
}

// OffsetsFor returns the configured offsets or the blockchain defaults
func (e *Endpoints) OffsetsFor(chain types.Blockchain) types.Offsets {
	if s, ok := e.chainSettings[chain]; ok && len(s.Offsets) == 2 {
		return types.Offsets{Low: s.Offsets[0], High: s.Offsets[1]}
	}
	return chain.DefaultOffsets()
}

// RegionAllowed reports whether collection for chain may run in region
func (e *Endpoints) RegionAllowed(chain types.Blockchain, region string) bool {
	s, ok := e.chainSettings[chain]
	if !ok || len(s.Regions) == 0 {
		return true
	}
	for _, r := range s.Regions {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

// TargetRegion returns the region label for a provider
func (e *Endpoints) TargetRegion(p ProviderConfig) string {
	if p.Region != "" {
		return p.Region
	}
	if e.Region != "" {
		return e.Region
	}
	return "default"
}
