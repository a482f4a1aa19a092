package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-i2p/dbpool/lib/config"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		command string
		wantErr bool
	}{
		{"default command", nil, "serve", false},
		{"command first", []string{"check", "-max", "3"}, "check", false},
		{"command last", []string{"-max", "3", "init-config"}, "init-config", false},
		{"two commands", []string{"check", "serve"}, "", true},
		{"bad flag", []string{"-nope"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if err == nil && opts.command != tt.command {
				t.Errorf("command = %q, want %q", opts.command, tt.command)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	opts, err := parseFlags([]string{"-driver", "mysql", "-url", "tcp(db:3306)/app", "-min", "0", "-listen", ":9090"})
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	opts.apply(cfg)

	if cfg.Database.Driver != "mysql" || cfg.Database.URL != "tcp(db:3306)/app" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Pool.MinSize != 0 {
		t.Errorf("min = %d, want 0", cfg.Pool.MinSize)
	}
	if cfg.Pool.MaxSize != config.DefaultMaxSize {
		t.Errorf("unset -max should keep %d, got %d", config.DefaultMaxSize, cfg.Pool.MaxSize)
	}
	if cfg.Web.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Web.Listen)
	}
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "dbpool.yaml")

	if code := run([]string{"init-config", "-config", path, "-max", "4"}); code != 0 {
		t.Fatalf("init-config exit code = %d", code)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Pool.MaxSize != 4 {
		t.Errorf("max = %d, want 4", cfg.Pool.MaxSize)
	}

	if code := run([]string{"init-config", "-config", path}); code == 0 {
		t.Error("init-config should refuse to overwrite an existing file")
	}
}

func TestInitConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbpool.toml")

	if code := run([]string{"init-config", "-config", path, "-min", "5", "-max", "1"}); code == 0 {
		t.Error("expected failure for min > max")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid config should not be written")
	}
}

func TestCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	url := "file:dbpool_cli_check?mode=memory&cache=shared"

	if code := run([]string{"check", "-config", path, "-url", url}); code != 0 {
		t.Errorf("check exit code = %d", code)
	}
}

func TestCheckUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	if code := run([]string{"check", "-config", path, "-driver", "nosuchdriver"}); code == 0 {
		t.Error("check should fail for an unregistered driver")
	}
}

func TestVersionFlag(t *testing.T) {
	if code := run([]string{"-version"}); code != 0 {
		t.Errorf("exit code = %d", code)
	}
}
