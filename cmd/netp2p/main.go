// Command netp2p runs the RLPx (devp2p) and Secure Scuttlebutt session-layer
// services as a single process.
//
// Usage:
//
//	netp2p [global options]
//
// Configuration is loaded from a TOML file via --config; any of the flags
// below override the corresponding field after the file is loaded.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/eth2030/netp2p/config"
	"github.com/eth2030/netp2p/node"
	"github.com/urfave/cli/v2"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to a TOML configuration file",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "data directory path",
	}
	rlpxBindFlag = &cli.StringFlag{
		Name:  "rlpx.bind",
		Usage: "RLPx bind address (no port)",
	}
	rlpxPortFlag = &cli.UintFlag{
		Name:  "rlpx.port",
		Usage: "RLPx listen port",
	}
	rlpxClientIDFlag = &cli.StringFlag{
		Name:  "rlpx.clientid",
		Usage: "RLPx client identifier string advertised in Hello",
	}
	rlpxKeyFlag = &cli.StringFlag{
		Name:  "rlpx.key",
		Usage: "hex-encoded secp256k1 node identity key",
	}
	ssbBindFlag = &cli.StringFlag{
		Name:  "ssb.bind",
		Usage: "SSB bind address (host:port)",
	}
	ssbKeyFlag = &cli.StringFlag{
		Name:  "ssb.key",
		Usage: "hex-encoded Ed25519 node identity key",
	}
	ssbNetworkFlag = &cli.StringFlag{
		Name:  "ssb.network",
		Usage: "hex-encoded 32-byte SSB network identifier",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "log level (debug, info, warn, error, trace)",
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log.format",
		Usage: "log format (text, json)",
	}
)

func main() {
	app := &cli.App{
		Name:    "netp2p",
		Usage:   "run the RLPx and Secure Scuttlebutt session-layer services",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
		Flags: []cli.Flag{
			configFlag, dataDirFlag,
			rlpxBindFlag, rlpxPortFlag, rlpxClientIDFlag, rlpxKeyFlag,
			ssbBindFlag, ssbKeyFlag, ssbNetworkFlag,
			logLevelFlag, logFormatFlag,
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// run is the CLI action: load configuration, apply flag overrides, start
// the node, and block until an interrupt triggers graceful shutdown.
func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("netp2p %s starting", c.App.Version)
	log.Printf("  datadir:     %s", cfg.DataDir)
	log.Printf("  rlpx bind:   %s:%d", cfg.RLPx.BindAddress, cfg.RLPx.ListenPort)
	log.Printf("  rlpx client: %s", cfg.RLPx.ClientID)
	log.Printf("  ssb bind:    %s", cfg.SSB.BindAddress)
	log.Printf("  log level:   %s (%s)", cfg.Log.Level, cfg.Log.Format)

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	if err := n.Stop(); err != nil {
		return fmt.Errorf("stop node: %w", err)
	}
	log.Println("shutdown complete")
	return nil
}

// loadConfig builds a *config.Config from --config (if given, else
// defaults) and applies any explicitly-set flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if c.IsSet(dataDirFlag.Name) {
		cfg.DataDir = c.String(dataDirFlag.Name)
	}
	if c.IsSet(rlpxBindFlag.Name) {
		cfg.RLPx.BindAddress = c.String(rlpxBindFlag.Name)
	}
	if c.IsSet(rlpxPortFlag.Name) {
		cfg.RLPx.ListenPort = uint16(c.Uint(rlpxPortFlag.Name))
	}
	if c.IsSet(rlpxClientIDFlag.Name) {
		cfg.RLPx.ClientID = c.String(rlpxClientIDFlag.Name)
	}
	if c.IsSet(rlpxKeyFlag.Name) {
		cfg.RLPx.IdentityKeyHex = c.String(rlpxKeyFlag.Name)
	}
	if c.IsSet(ssbBindFlag.Name) {
		cfg.SSB.BindAddress = c.String(ssbBindFlag.Name)
	}
	if c.IsSet(ssbKeyFlag.Name) {
		cfg.SSB.IdentityKeyHex = c.String(ssbKeyFlag.Name)
	}
	if c.IsSet(ssbNetworkFlag.Name) {
		cfg.SSB.NetworkIDHex = c.String(ssbNetworkFlag.Name)
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.Log.Level = c.String(logLevelFlag.Name)
	}
	if c.IsSet(logFormatFlag.Name) {
		cfg.Log.Format = c.String(logFormatFlag.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
