package db

import (
	"testing"
	"time"
)

func TestNewMySQLWithConfigValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewMySQLWithConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := NewMySQLWithConfig(&MySQLConfig{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestMySQLConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := &MySQLConfig{DSN: "user:pw@tcp(localhost:3306)/db"}
	cfg.applyDefaults()
	if cfg.MaxOpenConnections != 25 || cfg.MaxIdleConnections != 5 {
		t.Fatalf("unexpected pool defaults: %+v", cfg)
	}
	if cfg.ConnMaxLifetime != 5*time.Minute || cfg.ConnMaxIdleTime != 10*time.Minute {
		t.Fatalf("unexpected lifetime defaults: %+v", cfg)
	}

	custom := &MySQLConfig{
		DSN:                "user:pw@tcp(localhost:3306)/db",
		MaxOpenConnections: 50,
		ConnMaxLifetime:    time.Hour,
	}
	custom.applyDefaults()
	if custom.MaxOpenConnections != 50 || custom.ConnMaxLifetime != time.Hour {
		t.Fatalf("explicit settings must survive: %+v", custom)
	}
	if custom.MaxIdleConnections != 5 {
		t.Fatalf("unset fields still get defaults: %+v", custom)
	}
}
