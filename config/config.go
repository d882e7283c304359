// Package config loads the RLPx and SSB service options from a TOML file,
// the same [section]-based shape the teacher's hand-rolled parser used, with
// BurntSushi/toml doing the actual parsing instead of a line-by-line scanner.
package config

import (
	"crypto/ed25519"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/eth2030/netp2p/crypto"
)

// SubProtocol describes one sub-protocol this node advertises during Hello
// negotiation.
type SubProtocol struct {
	Name    string `toml:"name"`
	Version uint   `toml:"version"`
	Length  uint64 `toml:"length"`
}

// RLPx holds the configuration for the devp2p/RLPx service.
type RLPx struct {
	ListenPort     uint16        `toml:"listen_port"`
	AdvertisedPort uint16        `toml:"advertised_port"`
	BindAddress    string        `toml:"bind_address"`
	ClientID       string        `toml:"client_id"`
	IdentityKeyHex string        `toml:"identity_key"`
	SubProtocols   []SubProtocol `toml:"sub_protocols"`
}

// PrivateKey parses IdentityKeyHex into a secp256k1 private key.
func (r RLPx) PrivateKey() (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(r.IdentityKeyHex)
}

// SSB holds the configuration for the Secure Scuttlebutt service.
type SSB struct {
	BindAddress       string `toml:"bind_address"`
	IdentityKeyHex    string `toml:"identity_key"`
	NetworkIDHex      string `toml:"network_identifier"`
}

// PrivateKey parses IdentityKeyHex into an Ed25519 private key.
func (s SSB) PrivateKey() (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(s.IdentityKeyHex)
	if err != nil {
		return nil, fmt.Errorf("config: invalid ssb identity_key: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("config: ssb identity_key must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return ed25519.PrivateKey(b), nil
}

// NetworkID parses NetworkIDHex into the 32-byte network identifier.
func (s SSB) NetworkID() ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s.NetworkIDHex)
	if err != nil {
		return out, fmt.Errorf("config: invalid network_identifier: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("config: network_identifier must be 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// Log holds logging configuration, independent of either service.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the top-level configuration document.
type Config struct {
	DataDir string `toml:"datadir"`
	Log     Log    `toml:"log"`
	RLPx    RLPx   `toml:"rlpx"`
	SSB     SSB    `toml:"ssb"`
}

// Default returns a Config with sensible defaults; identity keys and
// network identifier are left empty and must be supplied before use.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Log:     Log{Level: "info", Format: "text"},
		RLPx: RLPx{
			ListenPort:     30303,
			AdvertisedPort: 30303,
			BindAddress:    "0.0.0.0",
			ClientID:       "netp2p/1.0",
		},
		SSB: SSB{
			BindAddress: "0.0.0.0:8008",
		},
	}
}

// Load reads and parses a TOML configuration file at path, starting from
// Default and overlaying whatever the file specifies.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against the constraints both services
// require: valid ports and a non-empty client id for RLPx.
func (c *Config) Validate() error {
	if c.RLPx.ClientID == "" {
		return errors.New("config: rlpx client_id must not be empty")
	}
	// ListenPort/AdvertisedPort are uint16, so any value is already in
	// 0..65535; nothing further to check there.
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "trace":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}
