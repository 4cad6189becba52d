package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q, want %q", cfg.GRPCAddr(), "0.0.0.0:50051")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.UserHeader != "X-User" || cfg.RolesHeader != "X-Roles" {
		t.Fatalf("identity headers = %q %q", cfg.UserHeader, cfg.RolesHeader)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLINICSLOTS_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("CLINICSLOTS_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("CLINICSLOTS_DATABASE_URL", "postgres://u:p@db:5432/x")
	t.Setenv("CLINICSLOTS_GRPC_REQUEST_TIMEOUT", "3s")
	t.Setenv("CLINICSLOTS_IDENTITY_USER_HEADER", "X-Forwarded-User")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCHost != "127.0.0.1" || cfg.GRPCPort != 6000 {
		t.Fatalf("grpc = %s:%d, want 127.0.0.1:6000", cfg.GRPCHost, cfg.GRPCPort)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DatabaseURL != "postgres://u:p@db:5432/x" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.GRPCRequestTimeout != 3*time.Second {
		t.Fatalf("GRPCRequestTimeout = %v, want 3s", cfg.GRPCRequestTimeout)
	}
	if cfg.UserHeader != "X-Forwarded-User" {
		t.Fatalf("UserHeader = %q", cfg.UserHeader)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("CLINICSLOTS_SHUTDOWN_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}
