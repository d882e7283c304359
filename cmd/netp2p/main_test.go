package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eth2030/netp2p/config"
	"github.com/urfave/cli/v2"
)

// captureApp builds an App identical in flags to main's, but with an Action
// that hands the loaded config back to the caller instead of starting a node.
func captureApp(capture *[]*config.Config) *cli.App {
	return &cli.App{
		Name: "netp2p",
		Flags: []cli.Flag{
			configFlag, dataDirFlag,
			rlpxBindFlag, rlpxPortFlag, rlpxClientIDFlag, rlpxKeyFlag,
			ssbBindFlag, ssbKeyFlag, ssbNetworkFlag,
			logLevelFlag, logFormatFlag,
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			*capture = append(*capture, cfg)
			return nil
		},
	}
}

func TestLoadConfigDefaultsWhenNoFlags(t *testing.T) {
	var captured []*config.Config
	app := captureApp(&captured)

	if err := app.Run([]string{"netp2p"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(captured) != 1 {
		t.Fatalf("expected one captured config, got %d", len(captured))
	}
	if captured[0].RLPx.ClientID != config.Default().RLPx.ClientID {
		t.Fatalf("expected default client id, got %q", captured[0].RLPx.ClientID)
	}
}

func TestLoadConfigAppliesFlagOverrides(t *testing.T) {
	var captured []*config.Config
	app := captureApp(&captured)

	dir := t.TempDir()
	args := []string{
		"netp2p",
		"--datadir", dir,
		"--rlpx.bind", "127.0.0.1",
		"--rlpx.port", "40404",
		"--rlpx.clientid", "test-client/9.9",
		"--ssb.bind", "127.0.0.1:9009",
		"--log.level", "debug",
		"--log.format", "json",
	}
	if err := app.Run(args); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(captured) != 1 {
		t.Fatalf("expected one captured config, got %d", len(captured))
	}

	cfg := captured[0]
	if cfg.DataDir != dir {
		t.Errorf("datadir = %q, want %q", cfg.DataDir, dir)
	}
	if cfg.RLPx.BindAddress != "127.0.0.1" {
		t.Errorf("rlpx bind = %q", cfg.RLPx.BindAddress)
	}
	if cfg.RLPx.ListenPort != 40404 {
		t.Errorf("rlpx port = %d", cfg.RLPx.ListenPort)
	}
	if cfg.RLPx.ClientID != "test-client/9.9" {
		t.Errorf("rlpx client id = %q", cfg.RLPx.ClientID)
	}
	if cfg.SSB.BindAddress != "127.0.0.1:9009" {
		t.Errorf("ssb bind = %q", cfg.SSB.BindAddress)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
}

func TestLoadConfigRejectsInvalidOverride(t *testing.T) {
	var captured []*config.Config
	app := captureApp(&captured)

	err := app.Run([]string{"netp2p", "--rlpx.clientid", ""})
	if err == nil {
		t.Fatalf("expected error for empty client id")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	var captured []*config.Config
	app := captureApp(&captured)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	toml := `
datadir = "` + dir + `"

[rlpx]
client_id = "from-file/1.0"
bind_address = "0.0.0.0"
listen_port = 30310

[ssb]
bind_address = "0.0.0.0:8008"
`
	if err := os.WriteFile(path, []byte(toml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := app.Run([]string{"netp2p", "--config", path}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(captured) != 1 {
		t.Fatalf("expected one captured config, got %d", len(captured))
	}
	if captured[0].RLPx.ClientID != "from-file/1.0" {
		t.Errorf("client id = %q, want %q", captured[0].RLPx.ClientID, "from-file/1.0")
	}
}
