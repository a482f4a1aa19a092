package factory

import (
	"errors"
	"testing"

	"github.com/go-i2p/dbpool/lib/config"
	apperrors "github.com/go-i2p/dbpool/lib/errors"
)

func TestForConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		wantErr error
	}{
		{"sql", config.DatabaseConfig{Kind: config.KindSQL, Driver: "sqlite3"}, nil},
		{"empty kind is sql", config.DatabaseConfig{Driver: "sqlite3"}, nil},
		{"redis", config.DatabaseConfig{Kind: config.KindRedis}, nil},
		{"unknown driver", config.DatabaseConfig{Kind: config.KindSQL, Driver: "oracle"}, apperrors.ErrUnknownDriver},
		{"unknown kind", config.DatabaseConfig{Kind: "mongo"}, apperrors.ErrConfiguration},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ForConfig(tc.cfg)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ForConfig failed: %v", err)
			}
			switch tc.cfg.Kind {
			case config.KindRedis:
				if _, ok := f.(*Redis); !ok {
					t.Errorf("expected *Redis, got %T", f)
				}
			default:
				if _, ok := f.(*SQL); !ok {
					t.Errorf("expected *SQL, got %T", f)
				}
			}
		})
	}
}

func TestNewPoolFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.URL = memoryDSN(t)

	p, b, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer p.Close()

	if b == nil {
		t.Fatal("expected a breaker when enabled")
	}
	if b.Name() != "sql:sqlite3" {
		t.Errorf("breaker name = %q", b.Name())
	}
	if p.MinSize() != cfg.Pool.MinSize || p.MaxSize() != cfg.Pool.MaxSize {
		t.Errorf("bounds = %d/%d", p.MinSize(), p.MaxSize())
	}
	if p.Len() != cfg.Pool.MinSize {
		t.Errorf("expected %d idle, got %d", cfg.Pool.MinSize, p.Len())
	}

	h, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := p.Release(h); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
}

func TestNewPoolWithoutBreaker(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.URL = memoryDSN(t)
	cfg.Breaker.Enabled = false

	p, b, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer p.Close()

	if b != nil {
		t.Error("expected no breaker when disabled")
	}
}

func TestNewPoolBadBounds(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pool.MinSize = 4
	cfg.Pool.MaxSize = 1

	if _, _, err := NewPool(cfg); !apperrors.IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
