package interview

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("interview", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.RecordDir != "data/records" {
		t.Fatalf("expected default record dir, got %q", cfg.RecordDir)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected default session ttl, got %v", cfg.SessionTTL)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("DEVREADY_HTTP_ADDR", "env-addr")
	t.Setenv("DEVREADY_RECORD_DIR", "env-records")
	t.Setenv("DEVREADY_SESSION_TTL", "5m")

	fs := flag.NewFlagSet("interview", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-addr",
		"-record-dir", "flag-records",
		"-session-ttl", "10m",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-addr" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.RecordDir != "flag-records" {
		t.Fatalf("expected flag record dir, got %q", cfg.RecordDir)
	}
	if cfg.SessionTTL != 10*time.Minute {
		t.Fatalf("expected flag session ttl, got %v", cfg.SessionTTL)
	}
}
